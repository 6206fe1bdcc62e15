package headless

import (
	"context"

	"github.com/quantfeed/linkharvest/internal/links"
)

// Unavailable implements links.Fetcher for builds or configurations without
// browser automation. It always fails with ErrAutomationUnavailable so the
// dispatcher records an explicit capability gap instead of a silent skip.
type Unavailable struct{}

// NewUnavailable creates the stub fetcher.
func NewUnavailable() *Unavailable {
	return &Unavailable{}
}

// Fetch always returns links.ErrAutomationUnavailable.
func (Unavailable) Fetch(_ context.Context, _ links.FetchRequest) (links.FetchResponse, error) {
	return links.FetchResponse{}, links.ErrAutomationUnavailable
}
