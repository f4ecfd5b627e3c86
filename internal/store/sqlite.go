package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sarbstats/econ-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reporting_snapshots (
	snapshot_date      TEXT PRIMARY KEY,
	indicators         TEXT NOT NULL,
	trends             TEXT NOT NULL,
	policy_stance      TEXT,
	health_score       REAL,
	risk_level         TEXT,
	missing_indicators TEXT,
	generated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS insight_annotations (
	snapshot_date  TEXT PRIMARY KEY,
	narrative_text TEXT NOT NULL,
	provider       TEXT NOT NULL,
	confidence     REAL NOT NULL DEFAULT 0,
	generated_at   TEXT NOT NULL
);
`

// Migrate creates the local tables if needed.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const dateLayout = "2006-01-02"

// SaveSnapshot upserts a snapshot keyed by its date.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *model.ReportingSnapshot) error {
	indicators, err := json.Marshal(snap.Indicators)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal indicators")
	}
	trends, err := json.Marshal(snap.Trends)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal trends")
	}
	var missing []byte
	if len(snap.MissingIndicators) > 0 {
		missing, err = json.Marshal(snap.MissingIndicators)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal missing indicators")
		}
	}

	var stance, risk *string
	if snap.PolicyStance != nil {
		v := string(*snap.PolicyStance)
		stance = &v
	}
	if snap.RiskLevel != nil {
		v := string(*snap.RiskLevel)
		risk = &v
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reporting_snapshots
		   (snapshot_date, indicators, trends, policy_stance, health_score, risk_level, missing_indicators, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (snapshot_date) DO UPDATE SET
		   indicators = excluded.indicators,
		   trends = excluded.trends,
		   policy_stance = excluded.policy_stance,
		   health_score = excluded.health_score,
		   risk_level = excluded.risk_level,
		   missing_indicators = excluded.missing_indicators,
		   generated_at = excluded.generated_at`,
		snap.SnapshotDate.Format(dateLayout), string(indicators), string(trends),
		stance, snap.HealthScore, risk, nullableString(missing),
		snap.GeneratedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: save snapshot")
	}
	return nil
}

// LatestSnapshot returns the snapshot with the most recent date, or nil.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*model.ReportingSnapshot, error) {
	snaps, err := s.ListSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// ListSnapshots returns snapshots most recent first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, limit int) ([]model.ReportingSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot_date, indicators, trends, policy_stance, health_score, risk_level, missing_indicators, generated_at
		 FROM reporting_snapshots ORDER BY snapshot_date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var out []model.ReportingSnapshot
	for rows.Next() {
		var snap model.ReportingSnapshot
		var dateStr, indicators, trends, generatedAt string
		var stance, risk, missing *string
		if err := rows.Scan(&dateStr, &indicators, &trends, &stance,
			&snap.HealthScore, &risk, &missing, &generatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}

		snap.SnapshotDate, err = time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse snapshot date")
		}
		if t, err := time.Parse(time.RFC3339, generatedAt); err == nil {
			snap.GeneratedAt = t
		}
		if err := json.Unmarshal([]byte(indicators), &snap.Indicators); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal indicators")
		}
		if err := json.Unmarshal([]byte(trends), &snap.Trends); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal trends")
		}
		if stance != nil {
			v := model.PolicyStance(*stance)
			snap.PolicyStance = &v
		}
		if risk != nil {
			v := model.RiskLevel(*risk)
			snap.RiskLevel = &v
		}
		if missing != nil {
			_ = json.Unmarshal([]byte(*missing), &snap.MissingIndicators)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// SaveAnnotation upserts an annotation keyed by snapshot date.
func (s *SQLiteStore) SaveAnnotation(ctx context.Context, a *model.InsightAnnotation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO insight_annotations (snapshot_date, narrative_text, provider, confidence, generated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (snapshot_date) DO UPDATE SET
		   narrative_text = excluded.narrative_text,
		   provider = excluded.provider,
		   confidence = excluded.confidence,
		   generated_at = excluded.generated_at`,
		a.SnapshotDate.Format(dateLayout), a.Narrative, a.Provider, a.Confidence,
		a.GeneratedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: save annotation")
	}
	return nil
}

// GetAnnotation returns the annotation for a snapshot date, or nil.
func (s *SQLiteStore) GetAnnotation(ctx context.Context, snapshotDate time.Time) (*model.InsightAnnotation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT snapshot_date, narrative_text, provider, confidence, generated_at
		 FROM insight_annotations WHERE snapshot_date = ?`,
		snapshotDate.Format(dateLayout))

	var a model.InsightAnnotation
	var dateStr, generatedAt string
	err := row.Scan(&dateStr, &a.Narrative, &a.Provider, &a.Confidence, &generatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get annotation")
	}

	a.SnapshotDate, err = time.Parse(dateLayout, dateStr)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse annotation date")
	}
	if t, err := time.Parse(time.RFC3339, generatedAt); err == nil {
		a.GeneratedAt = t
	}
	return &a, nil
}

func nullableString(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}
