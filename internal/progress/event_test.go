package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantfeed/linkharvest/internal/links"
)

func validEvent(stage Stage) Event {
	return Event{
		BatchID: "batch-1",
		TS:      time.Now().UTC(),
		Stage:   stage,
		URL:     "https://example.com/a.pdf",
		Host:    "example.com",
		Status:  links.StatusSuccess,
	}
}

func TestValidateAcceptsLifecycleStages(t *testing.T) {
	t.Parallel()

	for _, stage := range []Stage{
		StageBatchStart, StageBatchDone, StageLinkClassified,
		StageFetchStart, StageFetchRetry, StageFetchDone,
		StageCacheHit, StagePortalExpanded,
	} {
		require.NoError(t, validEvent(stage).Validate(), string(stage))
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	t.Parallel()

	evt := validEvent(StageFetchDone)
	evt.BatchID = ""
	require.Error(t, evt.Validate())

	evt = validEvent(StageFetchDone)
	evt.URL = ""
	require.Error(t, evt.Validate())

	evt = validEvent(StageFetchDone)
	evt.Status = ""
	require.Error(t, evt.Validate())

	evt = validEvent("BOGUS")
	require.Error(t, evt.Validate())
}

type countingEmitter struct{ n int }

func (c *countingEmitter) Emit(Event) { c.n++ }

func TestMultiFansOut(t *testing.T) {
	t.Parallel()

	a := &countingEmitter{}
	b := &countingEmitter{}
	Multi{a, b, Nop{}}.Emit(validEvent(StageBatchStart))
	require.Equal(t, 1, a.n)
	require.Equal(t, 1, b.n)
}
