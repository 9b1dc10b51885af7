package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists alerts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed alert store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// Migrate creates the alerts table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS alerts (
			id          VARCHAR(40) PRIMARY KEY,
			store_id    VARCHAR(128) NOT NULL,
			visitor_id  VARCHAR(128) NOT NULL,
			score       INTEGER NOT NULL CHECK (score >= 0 AND score <= 100),
			level       VARCHAR(10) NOT NULL CHECK (level IN ('low', 'medium', 'high', 'critical')),
			factors     JSONB NOT NULL DEFAULT '[]',
			status      VARCHAR(10) NOT NULL DEFAULT 'new' CHECK (status IN ('new', 'reviewed', 'dismissed')),
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_store_created
			ON alerts (store_id, created_at DESC, id DESC);

		CREATE INDEX IF NOT EXISTS idx_alerts_store_status
			ON alerts (store_id, status, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, alert *Alert) error {
	factorsJSON, err := json.Marshal(alert.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal alert factors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, store_id, visitor_id, score, level, factors, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		alert.ID,
		alert.StoreID,
		alert.VisitorID,
		alert.Score,
		string(alert.Level),
		factorsJSON,
		string(alert.Status),
		alert.CreatedAt,
		alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Alert, error) {
	row := s.db.QueryRowContext(ctx, alertSelect+` WHERE id = $1`, id)
	a, err := scanAlertRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) List(ctx context.Context, storeID string, status Status, limit, offset int) ([]*Alert, error) {
	query := alertSelect + ` WHERE store_id = $1`
	args := []any{storeID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Alert
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			continue
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, next Status) (*Alert, error) {
	// The allowed source statuses encode the one-way state machine.
	var from []string
	switch next {
	case StatusReviewed:
		from = []string{string(StatusNew)}
	case StatusDismissed:
		from = []string{string(StatusNew), string(StatusReviewed)}
	default:
		// No status moves back to new; unknown ids still report
		// not-found, matching the no-match path below.
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE alerts
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = ANY($4)
		RETURNING id, store_id, visitor_id, score, level, factors, status, created_at, updated_at
	`, string(next), time.Now().UTC(), id, pq.Array(from))

	a, err := scanAlertRow(row)
	if err == sql.ErrNoRows {
		// Distinguish a missing alert from a forbidden transition.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update alert status: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context, storeID string, status Status) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alerts WHERE store_id = $1 AND status = $2
	`, storeID, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

const alertSelect = `
	SELECT id, store_id, visitor_id, score, level, factors, status, created_at, updated_at
	FROM alerts
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlertRow(row rowScanner) (*Alert, error) {
	var a Alert
	var factorsJSON []byte

	err := row.Scan(&a.ID, &a.StoreID, &a.VisitorID, &a.Score, &a.Level,
		&factorsJSON, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(factorsJSON, &a.Factors)
	return &a, nil
}
