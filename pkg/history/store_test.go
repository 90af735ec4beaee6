package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecall(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &Entry{
		ID:           uuid.New().String(),
		PatientID:    "1",
		Query:        "assess diabetes risk",
		Intent:       "diagnosis",
		TerminalKind: "report",
		ResultText:   "High risk of diabetes",
		Rounds:       1,
		Steps:        []string{"intent-classifier", "data-fetch", "sufficiency-gate", "clarification-round-1", "diagnosis"},
	}
	require.NoError(t, store.Record(ctx, entry))

	entries, err := store.RecentByPatient(ctx, "1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.Query, entries[0].Query)
	assert.Equal(t, entry.Steps, entries[0].Steps)
	assert.Equal(t, 1, entries[0].Rounds)
}

func TestRecentByPatientOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, &Entry{
			ID:           uuid.New().String(),
			PatientID:    "7",
			Query:        "show me vitals",
			Intent:       "information_retrieval",
			TerminalKind: "summary",
		}))
	}
	require.NoError(t, store.Record(ctx, &Entry{
		ID:           uuid.New().String(),
		PatientID:    "8",
		Query:        "other patient",
		Intent:       "information_retrieval",
		TerminalKind: "summary",
	}))

	entries, err := store.RecentByPatient(ctx, "7", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "7", e.PatientID)
	}
}

func TestRecordValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Record(ctx, &Entry{PatientID: "1"})
	assert.Error(t, err, "missing id must be rejected")

	err = store.Record(ctx, &Entry{ID: uuid.New().String()})
	assert.Error(t, err, "missing patient id must be rejected")
}

func TestSummarizeSteps(t *testing.T) {
	assert.Equal(t, "a > b", SummarizeSteps([]string{"a", "b"}))
	assert.Equal(t, "", SummarizeSteps(nil))
}
