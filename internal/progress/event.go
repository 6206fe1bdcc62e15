// Package progress defines the lifecycle events emitted while a batch moves
// through the pipeline.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/quantfeed/linkharvest/internal/links"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageBatchStart     Stage = "BATCH_START"
	StageBatchDone      Stage = "BATCH_DONE"
	StageLinkClassified Stage = "LINK_CLASSIFIED"
	StageFetchStart     Stage = "FETCH_START"
	StageFetchRetry     Stage = "FETCH_RETRY"
	StageFetchDone      Stage = "FETCH_DONE"
	StageCacheHit       Stage = "CACHE_HIT"
	StagePortalExpanded Stage = "PORTAL_EXPANDED"
)

// Event captures a single pipeline milestone.
type Event struct {
	// BatchID identifies the batch the event belongs to.
	BatchID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// URL is the link the event concerns, empty for batch-level stages.
	URL string
	// Host scopes fetch events to a host label.
	Host string
	// Category and Tier carry the classification for link-level stages.
	Category links.Category
	Tier     links.Tier
	// Status is the terminal disposition for FETCH_DONE events.
	Status links.Status
	// Bytes carries the response size for fetch completions.
	Bytes int64
	// Dur captures latency for fetches and batch completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.BatchID == "" {
		return errors.New("batch id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBatchStart, StageBatchDone:
	case StageLinkClassified, StageCacheHit, StagePortalExpanded:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StageFetchStart, StageFetchRetry:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StageFetchDone:
		if e.URL == "" {
			return errors.New("fetch done requires url")
		}
		if e.Status == "" {
			return errors.New("fetch done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Emitter publishes individual events; sinks satisfy this interface so the
// dispatcher can remain agnostic about where events land.
type Emitter interface {
	Emit(evt Event)
}

// Multi fans one event out to several emitters.
type Multi []Emitter

// Emit sends the event to every wrapped emitter.
func (m Multi) Emit(evt Event) {
	for _, e := range m {
		e.Emit(evt)
	}
}

// Nop discards all events.
type Nop struct{}

// Emit implements Emitter; it performs no action.
func (Nop) Emit(Event) {}
