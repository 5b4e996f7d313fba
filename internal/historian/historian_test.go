// internal/historian/historian_test.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/hideandseek/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueue hands out queued payloads and then behaves like an empty list.
type fakeQueue struct {
	mu    sync.Mutex
	items []string
}

func (q *fakeQueue) push(t *testing.T, ev cache.RoundEvent) {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, string(data))
}

func (q *fakeQueue) BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	q.mu.Lock()
	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return redis.NewStringSliceResult([]string{keys[0], item}, nil)
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return redis.NewStringSliceResult(nil, ctx.Err())
	case <-time.After(10 * time.Millisecond):
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
}

type fakeStore struct {
	mu        sync.Mutex
	saved     [][]cache.RoundEvent
	abandoned []uuid.UUID
	fail      bool
}

func (s *fakeStore) SaveEvents(_ context.Context, events []cache.RoundEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("database unavailable")
	}
	s.saved = append(s.saved, events)
	return nil
}

func (s *fakeStore) MarkAbandoned(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = append(s.abandoned, id)
	return nil
}

func (s *fakeStore) events() []cache.RoundEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []cache.RoundEvent
	for _, batch := range s.saved {
		out = append(out, batch...)
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.FlushInterval = 20 * time.Millisecond
	cfg.PopTimeout = 10 * time.Millisecond
	return cfg
}

func TestIngestFlushesFullBatches(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := &fakeStore{}
	s := New(&fakeQueue{}, store, testConfig(), logger)

	round := uuid.New()
	for seq := 1; seq <= 3; seq++ {
		data, err := json.Marshal(cache.RoundEvent{RoundID: round, Seq: seq, Kind: "hider_caught"})
		require.NoError(t, err)
		s.Ingest(context.Background(), data)
	}

	require.Len(t, store.saved, 1, "the third event waits for the next flush")
	assert.Len(t, store.saved[0], 2)

	s.flush(context.Background())
	assert.Len(t, store.events(), 3)
}

func TestIngestSkipsGarbage(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := &fakeStore{}
	s := New(&fakeQueue{}, store, testConfig(), logger)

	s.Ingest(context.Background(), []byte(`{not json`))
	s.flush(context.Background())
	assert.Empty(t, store.events())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "invalid round event", hook.LastEntry().Message)
}

func TestRunDrainsQueue(t *testing.T) {
	logger, _ := test.NewNullLogger()
	queue := &fakeQueue{}
	store := &fakeStore{}

	round := uuid.New()
	queue.push(t, cache.RoundEvent{RoundID: round, Seq: 1, Kind: "round_hider_wait"})
	queue.push(t, cache.RoundEvent{RoundID: round, Seq: 2, Kind: "round_running"})
	queue.push(t, cache.RoundEvent{RoundID: round, Seq: 3, Kind: "round_over", Payload: map[string]any{"result": "seeker_wins"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(queue, store, testConfig(), logger).Run(ctx) }()

	assert.Eventually(t, func() bool { return len(store.events()) == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	events := store.events()
	assert.Equal(t, "round_over", events[2].Kind)
	assert.Equal(t, "seeker_wins", events[2].Payload["result"])
}

func TestSweepMarksSilentRoundsAbandoned(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := &fakeStore{}
	cfg := testConfig()
	cfg.Inactivity = 10 * time.Minute
	s := New(&fakeQueue{}, store, cfg, logger)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	silent, finished := uuid.New(), uuid.New()
	for _, ev := range []cache.RoundEvent{
		{RoundID: silent, Seq: 1, Kind: "round_running"},
		{RoundID: finished, Seq: 1, Kind: "round_running"},
		{RoundID: finished, Seq: 2, Kind: "round_over"},
	} {
		data, err := json.Marshal(ev)
		require.NoError(t, err)
		s.Ingest(context.Background(), data)
	}

	now = now.Add(5 * time.Minute)
	s.sweepInactive(context.Background())
	assert.Empty(t, store.abandoned)

	now = now.Add(6 * time.Minute)
	s.sweepInactive(context.Background())
	assert.Equal(t, []uuid.UUID{silent}, store.abandoned)

	// only once
	now = now.Add(time.Hour)
	s.sweepInactive(context.Background())
	assert.Len(t, store.abandoned, 1)
}

func TestFailedBatchIsDropped(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := &fakeStore{fail: true}
	s := New(&fakeQueue{}, store, testConfig(), logger)

	data, err := json.Marshal(cache.RoundEvent{RoundID: uuid.New(), Seq: 1, Kind: "round_running"})
	require.NoError(t, err)
	s.Ingest(context.Background(), data)
	s.flush(context.Background())

	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "dropping 1 round events")

	store.fail = false
	s.flush(context.Background())
	assert.Empty(t, store.events())
}
