package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertResearchOverwritesSameTickerAndDate(t *testing.T) {
	s := newTestStore(t)

	row := &ResearchRow{
		Ticker: "ABC", ResearchDate: "2026-07-28",
		CurrentPrice: nullFloatTest(100), Status: ResearchLibraryReady, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.UpsertResearch(row))

	row.CurrentPrice = nullFloatTest(110)
	row.Status = ResearchPartial
	require.NoError(t, s.UpsertResearch(row))

	ready, err := s.ResearchReadyForAnalysis(10)
	require.NoError(t, err)
	require.Len(t, ready, 1, "upsert must overwrite, not duplicate, the (ticker, research_date) row")
	assert.Equal(t, 110.0, ready[0].CurrentPrice.Float64)
}

func TestExpireStaleResearchOnlyTouchesLibraryReady(t *testing.T) {
	s := newTestStore(t)

	old := time.Now().UTC().AddDate(0, 0, -10)
	require.NoError(t, s.UpsertResearch(&ResearchRow{
		Ticker: "OLD", ResearchDate: old.Format("2006-01-02"),
		Status: ResearchLibraryReady, CreatedAt: old,
	}))
	fresh := time.Now().UTC()
	require.NoError(t, s.UpsertResearch(&ResearchRow{
		Ticker: "NEW", ResearchDate: fresh.Format("2006-01-02"),
		Status: ResearchLibraryReady, CreatedAt: fresh,
	}))

	require.NoError(t, s.ExpireStaleResearch(3))

	ready, err := s.ResearchReadyForAnalysis(10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "NEW", ready[0].Ticker)
}

func TestResearchReadyForAnalysisOrdersFIFO(t *testing.T) {
	s := newTestStore(t)

	first := time.Now().UTC().Add(-2 * time.Hour)
	second := time.Now().UTC().Add(-1 * time.Hour)
	require.NoError(t, s.UpsertResearch(&ResearchRow{
		Ticker: "SECOND", ResearchDate: "2026-07-29", Status: ResearchPartial, CreatedAt: second,
	}))
	require.NoError(t, s.UpsertResearch(&ResearchRow{
		Ticker: "FIRST", ResearchDate: "2026-07-28", Status: ResearchLibraryReady, CreatedAt: first,
	}))

	ready, err := s.ResearchReadyForAnalysis(10)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, "FIRST", ready[0].Ticker, "FIFO by created_at, not insertion order")
	assert.Equal(t, "SECOND", ready[1].Ticker)
}

func TestInsertConditionalEntrySupersedesPriorActive(t *testing.T) {
	s := newTestStore(t)

	first := &ConditionalEntry{
		Ticker: "XYZ", DateCreated: "2026-07-20", WatchTag: "breakout",
		PositionSizePct: 0.1, ResearchConfidence: 0.8,
	}
	firstID, err := s.InsertConditionalEntry(first)
	require.NoError(t, err)

	second := &ConditionalEntry{
		Ticker: "XYZ", DateCreated: "2026-07-29", WatchTag: "momentum",
		PositionSizePct: 0.15, ResearchConfidence: 0.9,
	}
	_, err = s.InsertConditionalEntry(second)
	require.NoError(t, err)

	actives, err := s.ActiveConditionalEntries()
	require.NoError(t, err)
	require.Len(t, actives, 1, "fresh analyst run must supersede, not duplicate, the prior active conditional")
	assert.NotEqual(t, firstID, actives[0].ID)
}

func TestConditionalEntryVerificationTransitions(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertConditionalEntry(&ConditionalEntry{
		Ticker: "ABC", DateCreated: "2026-07-29", WatchTag: "momentum",
		PositionSizePct: 0.1, ResearchConfidence: 0.8,
	})
	require.NoError(t, err)

	require.NoError(t, s.ConfirmConditionalEntry(id))
	require.NoError(t, s.FlagConditionalEntry(id, "price diverging from thesis"))

	actives, err := s.ActiveConditionalEntries()
	require.NoError(t, err)
	require.Len(t, actives, 1)
	assert.Equal(t, 2, actives[0].VerificationCount)
	assert.Equal(t, "price diverging from thesis", actives[0].VerificationNotes.String)

	require.NoError(t, s.InvalidateConditionalEntry(id, "thesis failed"))
	actives, err = s.ActiveConditionalEntries()
	require.NoError(t, err)
	assert.Len(t, actives, 0, "invalidated conditionals drop out of the active set")

	err = s.InvalidateConditionalEntry(id, "again")
	assert.Error(t, err, "invalidating an already-invalidated entry must fail")
}

func TestTriggerConditionalEntryIsTerminal(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertConditionalEntry(&ConditionalEntry{
		Ticker: "ABC", DateCreated: "2026-07-29", WatchTag: "momentum",
		PositionSizePct: 0.1, ResearchConfidence: 0.8,
	})
	require.NoError(t, err)

	require.NoError(t, s.TriggerConditionalEntry(id))
	err = s.TriggerConditionalEntry(id)
	assert.Error(t, err, "triggering an already-triggered entry must fail")
}

func nullFloatTest(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}
