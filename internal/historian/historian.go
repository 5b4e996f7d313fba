// internal/historian/historian.go is the consumer side of the round history queue: it pops
// events pushed by the game server and persists them in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/hideandseek/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Queue is the subset of the Redis client the service reads from.
type Queue interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Store persists round history.
type Store interface {
	SaveEvents(ctx context.Context, events []cache.RoundEvent) error
	MarkAbandoned(ctx context.Context, roundID uuid.UUID) error
}

type Config struct {
	QueueName     string
	BatchSize     int
	FlushInterval time.Duration
	PopTimeout    time.Duration
	// Inactivity is how long a round may go without events before it is marked abandoned.
	Inactivity    time.Duration
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueName:     cache.DefaultQueueName,
		BatchSize:     20,
		FlushInterval: 500 * time.Millisecond,
		PopTimeout:    3 * time.Second,
		Inactivity:    45 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Service batches queue entries into the store and tracks rounds that stopped reporting.
type Service struct {
	queue Queue
	store Store
	cfg   Config
	log   logrus.FieldLogger
	now   func() time.Time

	batchMu sync.Mutex
	batch   []cache.RoundEvent

	activityMu   sync.Mutex
	lastActivity map[uuid.UUID]time.Time
}

func New(queue Queue, store Store, cfg Config, logger logrus.FieldLogger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Service{
		queue:        queue,
		store:        store,
		cfg:          cfg,
		log:          logger,
		now:          time.Now,
		batch:        make([]cache.RoundEvent, 0, cfg.BatchSize),
		lastActivity: make(map[uuid.UUID]time.Time),
	}
}

// Run reads the queue until ctx is cancelled. Whatever is still batched is flushed on the way
// out.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.flushLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.inactivityLoop(ctx)
	}()

	s.log.WithField("queue", s.cfg.QueueName).Info("historian started")
	for ctx.Err() == nil {
		s.popOnce(ctx)
	}
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(flushCtx)
	s.log.Info("historian stopped")
	return nil
}

// popOnce waits up to PopTimeout for one entry.
func (s *Service) popOnce(ctx context.Context) {
	res, err := s.queue.BLPop(ctx, s.cfg.PopTimeout, s.cfg.QueueName).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			s.log.WithError(err).Error("BLPop failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		return
	}
	// res[0] is the key, res[1] the payload
	if len(res) < 2 {
		return
	}
	s.Ingest(ctx, []byte(res[1]))
}

// Ingest parses one queue payload and adds it to the batch, flushing when the batch is full.
func (s *Service) Ingest(ctx context.Context, payload []byte) {
	var ev cache.RoundEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.log.WithError(err).Warn("invalid round event")
		return
	}

	s.activityMu.Lock()
	if ev.Kind == "round_over" {
		delete(s.lastActivity, ev.RoundID)
	} else {
		s.lastActivity[ev.RoundID] = s.now()
	}
	s.activityMu.Unlock()

	s.batchMu.Lock()
	s.batch = append(s.batch, ev)
	full := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if full {
		s.flush(ctx)
	}
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// flush writes the current batch in one call. A failed batch is logged and dropped.
func (s *Service) flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := make([]cache.RoundEvent, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.store.SaveEvents(ctx, pending); err != nil {
		s.log.WithError(err).Errorf("dropping %d round events", len(pending))
		return
	}
	s.log.Debugf("flushed %d round events", len(pending))
}

func (s *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepInactive(ctx)
		}
	}
}

// sweepInactive marks rounds without events for longer than Inactivity as abandoned.
func (s *Service) sweepInactive(ctx context.Context) {
	now := s.now()
	var stale []uuid.UUID
	s.activityMu.Lock()
	for id, last := range s.lastActivity {
		if now.Sub(last) > s.cfg.Inactivity {
			stale = append(stale, id)
			delete(s.lastActivity, id)
		}
	}
	s.activityMu.Unlock()

	for _, id := range stale {
		if err := s.store.MarkAbandoned(ctx, id); err != nil {
			s.log.WithError(err).WithField("round_id", id).Error("could not mark round abandoned")
			continue
		}
		s.log.WithField("round_id", id).Info("round marked abandoned after inactivity")
	}
}
