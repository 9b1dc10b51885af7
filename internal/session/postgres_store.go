package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mbd888/copysentry/internal/pagination"
	"github.com/mbd888/copysentry/internal/signals"
)

// PostgresStore persists sessions and visit events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// Migrate creates the sessions and visit_events tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			session_key     VARCHAR(128) PRIMARY KEY,
			store_id        VARCHAR(128) NOT NULL,
			visitor_id      VARCHAR(128) NOT NULL,
			paths           JSONB NOT NULL DEFAULT '[]',
			first_activity  TIMESTAMPTZ NOT NULL,
			last_activity   TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_visitor
			ON sessions (store_id, visitor_id);

		CREATE TABLE IF NOT EXISTS visit_events (
			id             VARCHAR(40) PRIMARY KEY,
			store_id       VARCHAR(128) NOT NULL,
			visitor_id     VARCHAR(128) NOT NULL,
			session_key    VARCHAR(128) NOT NULL,
			path           VARCHAR(2048) NOT NULL,
			ts             TIMESTAMPTZ NOT NULL,
			client_flags   JSONB NOT NULL DEFAULT '{}',
			bundle         JSONB,
			risk           JSONB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_visit_events_store_ts
			ON visit_events (store_id, ts DESC, id DESC);

		CREATE INDEX IF NOT EXISTS idx_visit_events_visitor
			ON visit_events (store_id, visitor_id, ts DESC);
	`)
	return err
}

func (s *PostgresStore) RecordVisit(ctx context.Context, event *VisitEvent) (bool, error) {
	clientJSON, err := json.Marshal(event.ClientFlags)
	if err != nil {
		return false, fmt.Errorf("failed to marshal client flags: %w", err)
	}
	riskJSON, err := json.Marshal(event.Risk)
	if err != nil {
		return false, fmt.Errorf("failed to marshal risk analysis: %w", err)
	}
	var bundleJSON []byte
	if event.Bundle != nil {
		if bundleJSON, err = json.Marshal(event.Bundle); err != nil {
			return false, fmt.Errorf("failed to marshal signal bundle: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Atomic get-or-create: xmax = 0 only on freshly inserted rows, so
	// the loser of a same-key race observes isNewSession = false.
	var isNew bool
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sessions (session_key, store_id, visitor_id, paths, first_activity, last_activity)
		VALUES ($1, $2, $3, jsonb_build_array($4::text), $5, $5)
		ON CONFLICT (session_key) DO UPDATE SET
			paths = CASE
				WHEN sessions.paths ? $4 THEN sessions.paths
				ELSE sessions.paths || to_jsonb($4::text)
			END,
			last_activity = GREATEST(sessions.last_activity, EXCLUDED.last_activity)
		RETURNING (xmax = 0) AS inserted
	`,
		event.SessionKey,
		event.StoreID,
		event.VisitorID,
		event.Path,
		event.Timestamp,
	).Scan(&isNew)
	if err != nil {
		return false, fmt.Errorf("failed to upsert session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO visit_events (id, store_id, visitor_id, session_key, path, ts, client_flags, bundle, risk)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		event.ID,
		event.StoreID,
		event.VisitorID,
		event.SessionKey,
		event.Path,
		event.Timestamp,
		clientJSON,
		nullableBytes(bundleJSON),
		riskJSON,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert visit event: %w", err)
	}

	// Keep only the most recent window per store.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM visit_events
		WHERE store_id = $1 AND id IN (
			SELECT id FROM visit_events
			WHERE store_id = $1
			ORDER BY ts DESC, id DESC
			OFFSET $2
		)
	`, event.StoreID, MaxVisitsPerStore)
	if err != nil {
		return false, fmt.Errorf("failed to evict old visit events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit visit: %w", err)
	}
	return isNew, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, key string) (*Session, error) {
	var sess Session
	var pathsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT session_key, store_id, visitor_id, paths, first_activity, last_activity
		FROM sessions
		WHERE session_key = $1
	`, key).Scan(&sess.Key, &sess.StoreID, &sess.VisitorID, &pathsJSON, &sess.FirstActivity, &sess.LastActivity)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if err := json.Unmarshal(pathsJSON, &sess.Paths); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session paths: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) CountSessionsByVisitor(ctx context.Context, storeID, visitorID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE store_id = $1 AND visitor_id = $2
	`, storeID, visitorID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListVisitsByVisitor(ctx context.Context, storeID, visitorID string, limit int) ([]*VisitEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, visitor_id, session_key, path, ts, client_flags, bundle, risk
		FROM visit_events
		WHERE store_id = $1 AND visitor_id = $2
		ORDER BY ts DESC, id DESC
		LIMIT $3
	`, storeID, visitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return scanVisits(rows)
}

func (s *PostgresStore) ListRecentVisits(ctx context.Context, storeID string, before *pagination.Cursor, limit int) ([]*VisitEvent, error) {
	query := `
		SELECT id, store_id, visitor_id, session_key, path, ts, client_flags, bundle, risk
		FROM visit_events
		WHERE store_id = $1
	`
	args := []any{storeID}
	if before != nil {
		query += ` AND (ts, id) < ($2, $3)`
		args = append(args, before.Timestamp, before.ID)
	}
	query += fmt.Sprintf(` ORDER BY ts DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent visits: %w", err)
	}
	return scanVisits(rows)
}

func (s *PostgresStore) CountVisitsSince(ctx context.Context, storeID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM visit_events WHERE store_id = $1 AND ts >= $2
	`, storeID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return count, nil
}

func scanVisits(rows *sql.Rows) ([]*VisitEvent, error) {
	defer func() { _ = rows.Close() }()

	var result []*VisitEvent
	for rows.Next() {
		var e VisitEvent
		var clientJSON, riskJSON []byte
		var bundleJSON sql.NullString

		if err := rows.Scan(&e.ID, &e.StoreID, &e.VisitorID, &e.SessionKey, &e.Path, &e.Timestamp,
			&clientJSON, &bundleJSON, &riskJSON); err != nil {
			continue
		}
		_ = json.Unmarshal(clientJSON, &e.ClientFlags)
		_ = json.Unmarshal(riskJSON, &e.Risk)
		if bundleJSON.Valid {
			var b signals.Bundle
			if json.Unmarshal([]byte(bundleJSON.String), &b) == nil {
				e.Bundle = &b
			}
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
