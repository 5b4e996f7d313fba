// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list that round history records are appended to.
const DefaultQueueName = "hideandseek_rounds"

// RoundEvent is one entry of a round's history: start, catches, completions, the result.
type RoundEvent struct {
	RoundID   uuid.UUID      `json:"round_id"`
	Seq       int            `json:"seq"`
	Kind      string         `json:"kind"`
	PlayerID  string         `json:"player_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Historian ships round events to a Redis list for offline analysis. A consumer drains the list;
// the game server never reads it back.
//
// Events are pushed by a single sender goroutine so the list keeps the order they were recorded
// in.
type Historian struct {
	rdb     listClient
	queue   string
	timeout time.Duration
	log     logrus.FieldLogger

	mu     sync.Mutex
	closed bool
	events chan RoundEvent
	done   chan struct{}
}

// listClient is the part of the Redis client the historian uses.
type listClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// historianBuffer is the number of events waiting for Redis before new ones are dropped.
const historianBuffer = 1024

// ConnectRedis opens a client for addr and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NewHistorian wraps an open client. An empty queue name selects DefaultQueueName.
func NewHistorian(rdb *redis.Client, queue string, logger logrus.FieldLogger) *Historian {
	return newHistorian(rdb, queue, logger)
}

func newHistorian(rdb listClient, queue string, logger logrus.FieldLogger) *Historian {
	if queue == "" {
		queue = DefaultQueueName
	}
	h := &Historian{
		rdb:     rdb,
		queue:   queue,
		timeout: 2 * time.Second,
		log:     logger,
		events:  make(chan RoundEvent, historianBuffer),
		done:    make(chan struct{}),
	}
	go h.send()
	return h
}

// Publish serializes the record and appends it to the queue.
func (h *Historian) Publish(ctx context.Context, ev RoundEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal RoundEvent: %w", err)
	}
	if err := h.rdb.RPush(ctx, h.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", h.queue, err)
	}
	return nil
}

// Record queues ev for publishing without blocking. Callers hold the game lock, so a full queue
// drops the event instead of waiting on the network.
func (h *Historian) Record(ev RoundEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.events <- ev:
	default:
		h.eventLog(ev).Warn("round history queue full, dropping event")
	}
}

func (h *Historian) send() {
	defer close(h.done)
	for ev := range h.events {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		err := h.Publish(ctx, ev)
		cancel()
		if err != nil {
			h.eventLog(ev).Warnf("could not record round event: %v", err)
		}
	}
}

func (h *Historian) eventLog(ev RoundEvent) logrus.FieldLogger {
	return h.log.WithFields(logrus.Fields{
		"round_id": ev.RoundID,
		"seq":      ev.Seq,
		"kind":     ev.Kind,
	})
}

// Close publishes the events still queued and releases the Redis client.
func (h *Historian) Close() error {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.events)
	}
	h.mu.Unlock()
	<-h.done
	return h.rdb.Close()
}
