// internal/database/rounds.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jason-s-yu/hideandseek/internal/cache"
)

// Schema creates the round history tables if they are missing.
const Schema = `
CREATE TABLE IF NOT EXISTS rounds (
	id         UUID PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'in_progress',
	result     TEXT,
	message    TEXT,
	started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	ended_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS round_events (
	round_id    UUID NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	player_id   TEXT,
	payload     JSONB,
	occurred_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (round_id, seq)
);
`

// DB is what the round store needs from a pgx pool.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RoundStore persists round history written by the historian.
type RoundStore struct {
	db DB
}

func NewRoundStore(db DB) *RoundStore {
	return &RoundStore{db: db}
}

// EnsureSchema creates the tables used by SaveEvents.
func (s *RoundStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create round tables: %w", err)
	}
	return nil
}

// SaveEvents inserts a batch in one transaction. Rounds are created on first sight and
// finalized by their round_over event. Replayed events are ignored.
func (s *RoundStore) SaveEvents(ctx context.Context, events []cache.RoundEvent) error {
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, ev := range events {
			if err := insertRoundEventTx(ctx, tx, ev); err != nil {
				return fmt.Errorf("round %s seq %d: %w", ev.RoundID, ev.Seq, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx save round events: %w", err)
	}
	return nil
}

func insertRoundEventTx(ctx context.Context, tx pgx.Tx, ev cache.RoundEvent) error {
	occurred := time.UnixMilli(ev.Timestamp)

	upsertRound := `
		INSERT INTO rounds (id, status, started_at)
		VALUES ($1, 'in_progress', $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertRound, ev.RoundID, occurred); err != nil {
		return err
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	var playerID *string
	if ev.PlayerID != "" {
		playerID = &ev.PlayerID
	}
	insertEvent := `
		INSERT INTO round_events (round_id, seq, kind, player_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (round_id, seq) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insertEvent, ev.RoundID, ev.Seq, ev.Kind, playerID, payload, occurred); err != nil {
		return err
	}

	if ev.Kind == "round_over" {
		result, _ := ev.Payload["result"].(string)
		message, _ := ev.Payload["message"].(string)
		finalize := `
			UPDATE rounds
			SET status = 'completed', result = $2, message = $3, ended_at = $4
			WHERE id = $1 AND status = 'in_progress'
		`
		if _, err := tx.Exec(ctx, finalize, ev.RoundID, result, message, occurred); err != nil {
			return err
		}
	}
	return nil
}

// MarkAbandoned closes a round that stopped reporting before it was decided.
func (s *RoundStore) MarkAbandoned(ctx context.Context, roundID uuid.UUID) error {
	q := `
		UPDATE rounds
		SET status = 'abandoned', ended_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`
	if _, err := s.db.Exec(ctx, q, roundID); err != nil {
		return fmt.Errorf("mark round %s abandoned: %w", roundID, err)
	}
	return nil
}
