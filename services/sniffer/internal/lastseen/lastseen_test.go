package lastseen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
)

type memKV struct {
	data   map[string]string
	ttls   map[string]time.Duration
	setErr error
	closed bool
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	if m.setErr != nil {
		return redis.NewStatusResult("", m.setErr)
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (m *memKV) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memKV) Close() error { m.closed = true; return nil }

func TestCache_RecordAndGet(t *testing.T) {
	store := newMemKV()
	c := newCache(store, time.Hour)
	at := time.Date(2024, 1, 1, 12, 0, 1, 0, time.UTC)
	fix := telemetry.Fix{DeviceID: 2, Latitude: 10.5, Longitude: -74.2, Date: "2024-01-01", Time: "12:00:00", RPM: 900}

	require.NoError(t, c.Record(context.Background(), fix, at))
	assert.Equal(t, time.Hour, store.ttls["sniffer:last:2"])

	got, err := c.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, fix, got.Fix)
	assert.True(t, at.Equal(got.ReceivedAt))
}

func TestCache_LatestWins(t *testing.T) {
	c := newCache(newMemKV(), 0)
	assert.Equal(t, DefaultTTL, c.ttl)

	first := telemetry.Fix{DeviceID: 1, Latitude: 1, Longitude: 1, Date: "2024-01-01", Time: "00:00:00"}
	second := first
	second.Latitude = 2
	require.NoError(t, c.Record(context.Background(), first, time.Now()))
	require.NoError(t, c.Record(context.Background(), second, time.Now()))

	got, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Latitude)
}

func TestCache_Missing(t *testing.T) {
	c := newCache(newMemKV(), time.Minute)
	_, err := c.Get(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_SetFailure(t *testing.T) {
	store := newMemKV()
	store.setErr = errors.New("READONLY")
	c := newCache(store, time.Minute)

	err := c.Record(context.Background(), telemetry.Fix{DeviceID: 1}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sniffer:last:1")
}

func TestCache_CorruptEntry(t *testing.T) {
	store := newMemKV()
	store.data["sniffer:last:3"] = "{not json"
	c := newCache(store, time.Minute)

	_, err := c.Get(context.Background(), 3)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCache_Close(t *testing.T) {
	store := newMemKV()
	require.NoError(t, newCache(store, time.Minute).Close())
	assert.True(t, store.closed)
}
