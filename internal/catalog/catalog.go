// internal/catalog/catalog.go
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/hideandseek/internal/models"
)

// Default is the task list shipped with the game.
func Default() []models.Task {
	return []models.Task{
		{ID: 1, Description: "Mache ein Foto von einem roten Briefkasten.", TimeLimit: 300, Points: 10},
		{ID: 2, Description: "Finde eine Parkbank und setze dich für 1 Minute darauf.", TimeLimit: 480, Points: 15},
		{ID: 3, Description: "Kaufe einen Kaugummi an einem Kiosk.", TimeLimit: 600, Points: 20},
		{ID: 4, Description: "Frage eine fremde Person nach der Uhrzeit.", TimeLimit: 240, Points: 5},
		{ID: 5, Description: "Berühre einen Baum, der älter als du aussieht.", TimeLimit: 180, Points: 8},
	}
}

// Validate rejects an empty list, duplicate ids and tasks without a time limit.
func Validate(tasks []models.Task) error {
	if len(tasks) == 0 {
		return errors.New("task catalog is empty")
	}
	seen := make(map[int]struct{}, len(tasks))
	for _, t := range tasks {
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate task id %d", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.TimeLimit <= 0 {
			return fmt.Errorf("task %d: time limit must be positive", t.ID)
		}
		if t.Points < 0 {
			return fmt.Errorf("task %d: points must not be negative", t.ID)
		}
		if t.Description == "" {
			return fmt.Errorf("task %d: description is empty", t.ID)
		}
	}
	return nil
}

// LoadFile reads a JSON array of tasks.
func LoadFile(path string) ([]models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task catalog: %w", err)
	}
	var tasks []models.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse task catalog %s: %w", path, err)
	}
	if err := Validate(tasks); err != nil {
		return nil, fmt.Errorf("invalid task catalog %s: %w", path, err)
	}
	return tasks, nil
}

// Querier is the subset of pgxpool.Pool used to load tasks.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LoadPostgres reads the catalog from a table with columns id, description, time_limit_seconds
// and points.
func LoadPostgres(ctx context.Context, db Querier, table string) ([]models.Task, error) {
	query := fmt.Sprintf(
		`SELECT id, description, time_limit_seconds, points FROM %s ORDER BY id`,
		pgx.Identifier{table}.Sanitize(),
	)
	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Task, error) {
		var t models.Task
		err := row.Scan(&t.ID, &t.Description, &t.TimeLimit, &t.Points)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tasks: %w", err)
	}
	if err := Validate(tasks); err != nil {
		return nil, fmt.Errorf("invalid task table %s: %w", table, err)
	}
	return tasks, nil
}
