package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Observation is a single raw indicator reading as delivered by an ingest source.
// Immutable once landed; identity is (IndicatorName, ObservedDate, Value).
type Observation struct {
	IndicatorName string    `json:"indicator_name"`
	Category      string    `json:"category"`
	Value         *float64  `json:"value"`
	Unit          string    `json:"unit"`
	ObservedDate  time.Time `json:"observed_date"`
	Source        string    `json:"source"`
}

// Identity returns the raw deduplication key for this observation.
func (o Observation) Identity() string {
	v := "null"
	if o.Value != nil {
		v = fmt.Sprintf("%g", *o.Value)
	}
	return fmt.Sprintf("%s|%s|%s", o.IndicatorName, o.ObservedDate.Format("2006-01-02"), v)
}

// ContentHash returns a hex sha256 digest of the observation fields,
// used for idempotent re-ingestion detection at landing time.
func (o Observation) ContentHash() string {
	v := "null"
	if o.Value != nil {
		v = fmt.Sprintf("%g", *o.Value)
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		o.IndicatorName, o.Category, v, o.Unit, o.ObservedDate.Format("2006-01-02"), o.Source)))
	return hex.EncodeToString(h[:])
}

// RawRecord is an Observation plus landing metadata. Rows in the bronze
// table are append-only; they are never updated or deleted.
type RawRecord struct {
	Observation
	IngestionTimestamp time.Time `json:"ingestion_timestamp"`
	SourceTag          string    `json:"source_tag"`
	ContentHash        string    `json:"content_hash"`
}

// RejectionReason classifies why a record was excluded from a stage.
type RejectionReason string

const (
	ReasonMalformedInput RejectionReason = "MALFORMED_INPUT"
	ReasonNullValue      RejectionReason = "NULL_VALUE"
	ReasonNegativeValue  RejectionReason = "NEGATIVE_VALUE"
)

// Rejection records an excluded record and why, so data-quality issues
// are auditable instead of silently dropped.
type Rejection struct {
	Identity string          `json:"identity"`
	Reason   RejectionReason `json:"reason"`
	Detail   string          `json:"detail,omitempty"`
}

// LandResult summarizes one Land() call on the raw store.
type LandResult struct {
	Accepted   int         `json:"accepted"`
	Duplicates int         `json:"duplicates"`
	Malformed  []Rejection `json:"malformed,omitempty"`
}
