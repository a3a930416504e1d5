// Package ledger records index builds in PostgreSQL: one row per build with
// its input, target, state and submitted count.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/status-indexer/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_builds (
	build_id    TEXT PRIMARY KEY,
	input       TEXT NOT NULL,
	index_loc   TEXT NOT NULL,
	state       TEXT NOT NULL,
	doc_count   BIGINT NOT NULL DEFAULT 0,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
)`

const stateIndex = `CREATE INDEX IF NOT EXISTS index_builds_state_idx ON index_builds (state, started_at)`

// Build is one row of the ledger. Timestamps are set by the store.
type Build struct {
	ID    string
	Input string
	Index string
	State string
	Count int64
	Error string
}

type Store struct {
	client *postgres.Client
}

func NewStore(client *postgres.Client) *Store {
	return &Store{client: client}
}

// Migrate creates the ledger table and its index if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{schema, stateIndex} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrating ledger: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) Start(ctx context.Context, b Build) error {
	now := time.Now().UTC()
	_, err := s.client.DB.ExecContext(ctx, `
		INSERT INTO index_builds (build_id, input, index_loc, state, doc_count, started_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)`,
		b.ID, b.Input, b.Index, b.State, now,
	)
	if err != nil {
		return fmt.Errorf("recording build start: %w", err)
	}
	return nil
}

func (s *Store) Progress(ctx context.Context, id string, count int64) error {
	_, err := s.client.DB.ExecContext(ctx, `
		UPDATE index_builds SET doc_count = $2, updated_at = $3 WHERE build_id = $1`,
		id, count, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording build progress: %w", err)
	}
	return nil
}

// Finish stores the terminal state of a build. errMsg is empty on success.
func (s *Store) Finish(ctx context.Context, id, state string, count int64, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.client.DB.ExecContext(ctx, `
		UPDATE index_builds
		SET state = $2, doc_count = $3, error = NULLIF($4, ''), updated_at = $5, finished_at = $5
		WHERE build_id = $1`,
		id, state, count, errMsg, now,
	)
	if err != nil {
		return fmt.Errorf("recording build finish: %w", err)
	}
	return nil
}
