package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/weather/bme280"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{Source: filepath.Join(t.TempDir(), "weather.db")})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestStore_EmitAndRecent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tick := start
	store.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Emit(ctx, bme280.Reading{Temperature: 20 + float64(i), Pressure: 100000, Humidity: 40}))
	}

	records, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, start.Add(3*time.Second), records[0].Time)
	assert.Equal(t, 22.0, records[0].Temperature)
	assert.Equal(t, 21.0, records[1].Temperature)
	assert.Equal(t, 100000.0, records[1].Pressure)
}

func TestStore_RecentEmpty(t *testing.T) {
	records, err := newStore(t).Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_ReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "weather.db")
	store, err := New(ctx, Config{Source: src})
	require.NoError(t, err)
	require.NoError(t, store.Emit(ctx, bme280.Reading{Temperature: 18}))
	store.Close()

	store, err = New(ctx, Config{Source: src})
	require.NoError(t, err)
	defer store.Close()
	records, err := store.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 18.0, records[0].Temperature)
}

func TestNew_EmptySource(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
