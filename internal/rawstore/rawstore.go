// Package rawstore implements the append-only bronze landing layer.
package rawstore

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sarbstats/econ-cli/internal/db"
	"github.com/sarbstats/econ-cli/internal/model"
)

const rawTable = "observations_raw"

var rawColumns = []string{
	"indicator_name", "category", "value", "unit", "observed_date",
	"source", "ingestion_timestamp", "source_tag", "content_hash",
}

// Store lands observations into econ_bronze.observations_raw. The table is
// append-only: Land never updates or deletes, so the row count grows
// monotonically across any sequence of calls.
type Store struct {
	pool db.Pool
}

// New creates a Store backed by the given connection pool.
func New(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Land appends a batch of observations with lineage metadata. Malformed
// observations (missing indicator name, value, or observed date) are rejected
// per-record and collected in the result; one bad record never aborts the
// batch. Observations whose content hash already exists in the store (or
// earlier in the same batch) are still appended but flagged as duplicates;
// deduplication happens in the validator, not at landing.
func (s *Store) Land(ctx context.Context, observations []model.Observation, sourceTag string) (*model.LandResult, error) {
	log := zap.L().With(zap.String("component", "rawstore"), zap.String("source_tag", sourceTag))

	result := &model.LandResult{}
	now := time.Now().UTC()

	var rows [][]any
	var hashes []string
	for _, obs := range observations {
		if reason := malformed(obs); reason != "" {
			result.Malformed = append(result.Malformed, model.Rejection{
				Identity: obs.Identity(),
				Reason:   model.ReasonMalformedInput,
				Detail:   reason,
			})
			continue
		}
		hashes = append(hashes, obs.ContentHash())
	}

	existing, err := s.existingHashes(ctx, hashes)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(hashes))
	for _, obs := range observations {
		if malformed(obs) != "" {
			continue
		}
		hash := obs.ContentHash()
		if existing[hash] || seen[hash] {
			result.Duplicates++
		}
		seen[hash] = true

		rows = append(rows, []any{
			obs.IndicatorName, obs.Category, obs.Value, obs.Unit, obs.ObservedDate,
			obs.Source, now, sourceTag, hash,
		})
	}

	n, err := db.CopyFrom(ctx, s.pool, "econ_bronze", rawTable, rawColumns, rows)
	if err != nil {
		return nil, eris.Wrap(err, "rawstore: land batch")
	}
	result.Accepted = int(n)

	log.Info("landed batch",
		zap.Int("accepted", result.Accepted),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("malformed", len(result.Malformed)),
	)
	return result, nil
}

// List returns every raw record, oldest ingestion first. The validator
// consumes this to rebuild the silver layer from scratch on each run.
func (s *Store) List(ctx context.Context) ([]model.RawRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT indicator_name, category, value, unit, observed_date, source,
		        ingestion_timestamp, source_tag, content_hash
		 FROM econ_bronze.observations_raw
		 ORDER BY ingestion_timestamp, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "rawstore: list")
	}
	defer rows.Close()

	var records []model.RawRecord
	for rows.Next() {
		var r model.RawRecord
		if err := rows.Scan(
			&r.IndicatorName, &r.Category, &r.Value, &r.Unit, &r.ObservedDate,
			&r.Source, &r.IngestionTimestamp, &r.SourceTag, &r.ContentHash,
		); err != nil {
			return nil, eris.Wrap(err, "rawstore: scan record")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the total number of landed rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM econ_bronze.observations_raw").Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "rawstore: count")
	}
	return n, nil
}

// existingHashes returns which of the given content hashes are already landed.
func (s *Store) existingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(hashes) == 0 {
		return existing, nil
	}

	rows, err := s.pool.Query(ctx,
		"SELECT DISTINCT content_hash FROM econ_bronze.observations_raw WHERE content_hash = ANY($1)",
		hashes,
	)
	if err != nil {
		return nil, eris.Wrap(err, "rawstore: query existing hashes")
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, eris.Wrap(err, "rawstore: scan hash")
		}
		existing[h] = true
	}
	return existing, rows.Err()
}

// malformed returns a reason string if the observation is structurally
// invalid for landing, or "" if it is acceptable.
func malformed(obs model.Observation) string {
	switch {
	case obs.IndicatorName == "":
		return "missing indicator_name"
	case obs.Value == nil:
		return "missing value"
	case obs.ObservedDate.IsZero():
		return "missing observed_date"
	}
	return ""
}
