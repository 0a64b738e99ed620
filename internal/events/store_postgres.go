package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	// Postgres driver registration for database/sql.
	_ "github.com/lib/pq"
)

// PostgresStore persists events to an outbox table. Deployments that need a
// durable audit trail alongside Kafka point a Publisher at this store; a
// relay process drains the outbox.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool to the given DSN and verifies it.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	const q = `
		INSERT INTO clearing_event_outbox (event_id, event_type, token_holder, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, q, event.ID, string(event.Type), string(event.TokenHolder), payload, event.Timestamp); err != nil {
		return fmt.Errorf("insert event outbox row: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
