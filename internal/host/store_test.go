package host

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewRestoreStore(openTestDB(t).DB)

	data, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.Save(ctx, "u1", map[string]any{
		"fan:speed": 3,
		"label":     "bedroom",
		"nested":    map[string]any{"on": true},
	}))

	data, err = store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), data["fan:speed"])
	assert.Equal(t, "bedroom", data["label"])
	assert.Equal(t, map[string]any{"on": true}, data["nested"])

	require.NoError(t, store.Save(ctx, "u1", map[string]any{"fan:speed": 4}))
	data, err = store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"fan:speed": int64(4)}, data)

	require.NoError(t, store.Delete(ctx, "u1"))
	require.NoError(t, store.Delete(ctx, "u1"))
	data, err = store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestHistoryStore_RecordAndQuery(t *testing.T) {
	ctx := context.Background()
	store := NewHistoryStore(openTestDB(t).DB)
	base := time.Now().Add(-time.Hour)

	for i := range 5 {
		require.NoError(t, store.Record(ctx, "u1", "sensor.one", HistoryState{
			State:     float64(i),
			Unit:      "rpm",
			Available: true,
		}, base.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, store.Record(ctx, "u2", "sensor.two", HistoryState{State: "x"}, base))

	entries, err := store.History(ctx, "u1", 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, 4.0, entries[0].State.State, "newest first")
	assert.Equal(t, "rpm", entries[0].State.Unit)
	assert.Equal(t, "sensor.one", entries[0].EntityID)

	entries, err = store.History(ctx, "u1", 2, time.Time{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.History(ctx, "u1", 0, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = store.History(ctx, "", 0, time.Time{})
	assert.Error(t, err)
}

func TestHistoryStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := NewHistoryStore(openTestDB(t).DB)

	require.NoError(t, store.Record(ctx, "u1", "sensor.one", HistoryState{State: 1.0}, time.Now().Add(-48*time.Hour)))
	require.NoError(t, store.Record(ctx, "u1", "sensor.one", HistoryState{State: 2.0}, time.Now()))

	n, err := store.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := store.History(ctx, "u1", 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2.0, entries[0].State.State)

	_, err = store.Prune(ctx, 0)
	assert.Error(t, err)
}

func TestHistoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewHistoryStore(openTestDB(t).DB)

	require.NoError(t, store.Record(ctx, "u1", "sensor.one", HistoryState{State: 1.0}, time.Now()))
	require.NoError(t, store.Record(ctx, "u2", "sensor.two", HistoryState{State: 2.0}, time.Now()))
	require.NoError(t, store.Delete(ctx, "u1"))

	entries, err := store.History(ctx, "u1", 0, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	entries, err = store.History(ctx, "u2", 0, time.Time{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
