package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"jobmate/allocation-service/internal/events"
)

var at = time.Date(2026, 3, 2, 9, 0, 0, 0, time.FixedZone("CET", 3600))

func TestEvent_Encode(t *testing.T) {
	evt := events.New(events.TypeOfferCreated, at, map[string]string{"offerId": "o1"})

	var got map[string]any
	require.NoError(t, json.Unmarshal(evt.Encode(), &got))
	require.Equal(t, events.TypeOfferCreated, got["type"])
	require.EqualValues(t, 1, got["v"])
	require.Equal(t, "2026-03-02T08:00:00Z", got["at"])
	require.Equal(t, map[string]any{"offerId": "o1"}, got["data"])

	require.NotContains(t, string(events.New("ping", at, nil).Encode()), `"data"`)
}

// ── Hub ────────────────────────────────────────────────────────────────────

func TestHub_FanOut(t *testing.T) {
	hub := events.NewHub()
	a, b := hub.Subscribe(), hub.Subscribe()
	require.Equal(t, 2, hub.Subscribers())

	require.NoError(t, hub.Publish(context.Background(), events.New(events.TypeOfferAccepted, at, nil)))
	require.Contains(t, <-a, events.TypeOfferAccepted)
	require.Contains(t, <-b, events.TypeOfferAccepted)

	hub.Unsubscribe(a)
	hub.Unsubscribe(a)
	require.Equal(t, 1, hub.Subscribers())
	_, open := <-a
	require.False(t, open)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe()
	for n := 0; n < 100; n++ {
		require.NoError(t, hub.Publish(context.Background(), events.New("x", at, nil)))
	}
	require.Len(t, ch, cap(ch))
}

// ── Fanout ─────────────────────────────────────────────────────────────────

type failing struct{ err error }

func (f failing) Publish(context.Context, events.Event) error { return f.err }

func TestFanout_JoinsErrors(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe()
	boom := errors.New("boom")

	f := events.Fanout{hub, nil, failing{boom}, events.Discard{}}
	err := f.Publish(context.Background(), events.New(events.TypeGroupStateChanged, at, nil))
	require.ErrorIs(t, err, boom)
	require.Contains(t, <-ch, events.TypeGroupStateChanged)

	require.NoError(t, events.Fanout{hub}.Publish(context.Background(), events.New("x", at, nil)))
}

// ── Redis ──────────────────────────────────────────────────────────────────

func TestRedisPublisher_WrapsErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	err := events.NewRedisPublisher(rdb).Publish(context.Background(), events.New(events.TypeOfferRejected, at, nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "publish "+events.TypeOfferRejected)
}
