package visitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mbd888/copysentry/internal/risk"
	"github.com/mbd888/copysentry/internal/session"
	"github.com/mbd888/copysentry/internal/signals"
)

// PostgresStore persists visitor profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed visitor profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// Migrate creates the visitor_profiles table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS visitor_profiles (
			store_id            VARCHAR(128) NOT NULL,
			visitor_id          VARCHAR(128) NOT NULL,
			first_seen          TIMESTAMPTZ NOT NULL,
			last_seen           TIMESTAMPTZ NOT NULL,
			session_count       INTEGER NOT NULL DEFAULT 0,
			pages               JSONB NOT NULL DEFAULT '[]',
			highest_risk_score  INTEGER NOT NULL DEFAULT 0 CHECK (highest_risk_score >= 0 AND highest_risk_score <= 100),
			risk_level          VARCHAR(10) NOT NULL DEFAULT 'low' CHECK (risk_level IN ('low', 'medium', 'high', 'critical')),
			risk_factors        JSONB NOT NULL DEFAULT '[]',
			latest_bundle       JSONB,
			PRIMARY KEY (store_id, visitor_id)
		);

		CREATE INDEX IF NOT EXISTS idx_visitor_profiles_store_score
			ON visitor_profiles (store_id, highest_risk_score DESC, last_seen DESC);

		CREATE INDEX IF NOT EXISTS idx_visitor_profiles_store_last_seen
			ON visitor_profiles (store_id, last_seen DESC);
	`)
	return err
}

func (s *PostgresStore) ApplyVisit(ctx context.Context, event *session.VisitEvent, sessionCount int) (*Profile, error) {
	// A zero-score visit never owns the risk snapshot, so the insert
	// path gets neutral values. The update path is guarded by the
	// strictly-greater comparison either way.
	level := event.Risk.Level
	factors := event.Risk.Factors
	if event.Risk.Score == 0 {
		level = risk.LevelLow
		factors = nil
	}
	factorsJSON, err := json.Marshal(factorsOrEmpty(factors))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal risk factors: %w", err)
	}
	var bundleJSON []byte
	if event.Bundle != nil {
		if bundleJSON, err = json.Marshal(event.Bundle); err != nil {
			return nil, fmt.Errorf("failed to marshal signal bundle: %w", err)
		}
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO visitor_profiles (
			store_id, visitor_id, first_seen, last_seen, session_count,
			pages, highest_risk_score, risk_level, risk_factors, latest_bundle
		)
		VALUES ($1, $2, $3, $3, $4, jsonb_build_array($5::text), $6, $7, $8, $9)
		ON CONFLICT (store_id, visitor_id) DO UPDATE SET
			last_seen = GREATEST(visitor_profiles.last_seen, EXCLUDED.last_seen),
			session_count = GREATEST(visitor_profiles.session_count, $4),
			pages = CASE
				WHEN visitor_profiles.pages ? $5 THEN visitor_profiles.pages
				ELSE visitor_profiles.pages || to_jsonb($5::text)
			END,
			highest_risk_score = CASE
				WHEN EXCLUDED.highest_risk_score > visitor_profiles.highest_risk_score
				THEN EXCLUDED.highest_risk_score ELSE visitor_profiles.highest_risk_score
			END,
			risk_level = CASE
				WHEN EXCLUDED.highest_risk_score > visitor_profiles.highest_risk_score
				THEN EXCLUDED.risk_level ELSE visitor_profiles.risk_level
			END,
			risk_factors = CASE
				WHEN EXCLUDED.highest_risk_score > visitor_profiles.highest_risk_score
				THEN EXCLUDED.risk_factors ELSE visitor_profiles.risk_factors
			END,
			latest_bundle = COALESCE(EXCLUDED.latest_bundle, visitor_profiles.latest_bundle)
		RETURNING store_id, visitor_id, first_seen, last_seen, session_count,
			pages, highest_risk_score, risk_level, risk_factors, latest_bundle
	`,
		event.StoreID,
		event.VisitorID,
		event.Timestamp,
		sessionCount,
		event.Path,
		event.Risk.Score,
		string(level),
		factorsJSON,
		nullableBytes(bundleJSON),
	)

	p, err := scanProfileRow(row)
	if err != nil {
		return nil, fmt.Errorf("failed to apply visit: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Get(ctx context.Context, storeID, visitorID string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, profileSelect+`
		WHERE store_id = $1 AND visitor_id = $2
	`, storeID, visitorID)

	p, err := scanProfileRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrVisitorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visitor: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context, storeID string, limit, offset int) ([]*Profile, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM visitor_profiles WHERE store_id = $1
	`, storeID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count visitors: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, profileSelect+`
		WHERE store_id = $1
		ORDER BY highest_risk_score DESC, last_seen DESC
		LIMIT $2 OFFSET $3
	`, storeID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list visitors: %w", err)
	}

	profiles, err := scanProfiles(rows)
	if err != nil {
		return nil, 0, err
	}
	return profiles, total, nil
}

func (s *PostgresStore) ListRecentlyActive(ctx context.Context, storeID string, limit int) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, profileSelect+`
		WHERE store_id = $1
		ORDER BY last_seen DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent visitors: %w", err)
	}
	return scanProfiles(rows)
}

func (s *PostgresStore) ListTopThreats(ctx context.Context, storeID string, minScore, limit int) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, profileSelect+`
		WHERE store_id = $1 AND highest_risk_score >= $2
		ORDER BY highest_risk_score DESC, last_seen DESC
		LIMIT $3
	`, storeID, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top threats: %w", err)
	}
	return scanProfiles(rows)
}

func (s *PostgresStore) CountAll(ctx context.Context, storeID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM visitor_profiles WHERE store_id = $1
	`, storeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count visitors: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountWithMinScore(ctx context.Context, storeID string, minScore int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM visitor_profiles
		WHERE store_id = $1 AND highest_risk_score >= $2
	`, storeID, minScore).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count visitors by score: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountWithScoreBetween(ctx context.Context, storeID string, minScore, maxScore int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM visitor_profiles
		WHERE store_id = $1 AND highest_risk_score >= $2 AND highest_risk_score < $3
	`, storeID, minScore, maxScore).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count visitors by score band: %w", err)
	}
	return count, nil
}

const profileSelect = `
	SELECT store_id, visitor_id, first_seen, last_seen, session_count,
		pages, highest_risk_score, risk_level, risk_factors, latest_bundle
	FROM visitor_profiles
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfileRow(row rowScanner) (*Profile, error) {
	var p Profile
	var pagesJSON, factorsJSON []byte
	var bundleJSON sql.NullString

	err := row.Scan(&p.StoreID, &p.VisitorID, &p.FirstSeen, &p.LastSeen, &p.SessionCount,
		&pagesJSON, &p.HighestRiskScore, &p.RiskLevel, &factorsJSON, &bundleJSON)
	if err != nil {
		return nil, err
	}

	_ = json.Unmarshal(pagesJSON, &p.Pages)
	_ = json.Unmarshal(factorsJSON, &p.RiskFactors)
	if bundleJSON.Valid {
		var b signals.Bundle
		if json.Unmarshal([]byte(bundleJSON.String), &b) == nil {
			p.LatestBundle = &b
		}
	}
	return &p, nil
}

func scanProfiles(rows *sql.Rows) ([]*Profile, error) {
	defer func() { _ = rows.Close() }()

	var result []*Profile
	for rows.Next() {
		p, err := scanProfileRow(rows)
		if err != nil {
			continue
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func factorsOrEmpty(factors []risk.Factor) []risk.Factor {
	if factors == nil {
		return []risk.Factor{}
	}
	return factors
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
