package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStateHistory_RecordAndGet(t *testing.T) {
	hist := NewSQLiteStateHistoryRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, hist.RecordStateChange(ctx, "tcp-1", State{"on": true}, ""))
	require.NoError(t, hist.RecordStateChange(ctx, "tcp-1", State{"on": false}, StateHistorySourceSeed))
	require.NoError(t, hist.RecordStateChange(ctx, "tcp-2", nil, ""))

	entries, err := hist.GetHistory(ctx, "tcp-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, StateHistorySourceSeed, entries[0].Source)
	assert.Equal(t, StateHistorySourceBridge, entries[1].Source)
	assert.False(t, entries[0].CreatedAt.IsZero())

	other, err := hist.GetHistory(ctx, "tcp-2", 10)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Empty(t, other[0].State)
}

func TestSQLiteStateHistory_Limit(t *testing.T) {
	hist := NewSQLiteStateHistoryRepository(setupTestDB(t))
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, hist.RecordStateChange(ctx, "tcp-1", State{"brightness": i}, ""))
	}

	entries, err := hist.GetHistory(ctx, "tcp-1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, float64(4), entries[0].State["brightness"])

	entries, err = hist.GetHistory(ctx, "tcp-1", MaxHistoryLimit+1)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestSQLiteStateHistory_RequiresDeviceID(t *testing.T) {
	hist := NewSQLiteStateHistoryRepository(setupTestDB(t))
	ctx := context.Background()

	assert.Error(t, hist.RecordStateChange(ctx, "", State{}, ""))
	_, err := hist.GetHistory(ctx, "", 10)
	assert.Error(t, err)
}

func TestSQLiteStateHistory_Prune(t *testing.T) {
	db := setupTestDB(t)
	hist := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	_, err := db.Exec(
		"INSERT INTO state_history (device_id, state, source, created_at) VALUES (?, ?, ?, ?)",
		"tcp-1", `{"on":true}`, StateHistorySourceBridge, old,
	)
	require.NoError(t, err)
	require.NoError(t, hist.RecordStateChange(ctx, "tcp-1", State{"on": false}, ""))

	n, err := hist.PruneHistory(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := hist.GetHistory(ctx, "tcp-1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = hist.PruneHistory(ctx, 0)
	assert.Error(t, err)
}
