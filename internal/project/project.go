// Package project builds the gold-layer reporting snapshot from validated
// records. It is a pure function over the validator's output and never reads
// the raw landing layer; any data-quality rule lives upstream in exactly one
// place.
package project

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sarbstats/econ-cli/internal/model"
)

// ErrNoRecords is returned when there is nothing to project.
var ErrNoRecords = eris.New("project: no validated records")

// Config carries every business threshold the projector consumes. Values
// come from configuration, not constants baked into code paths.
type Config struct {
	// Policy stance bands on the prime rate.
	StanceAccommodativeBelow float64
	StanceRestrictiveAbove   float64

	// Inflation target midpoint for health and risk scoring.
	InflationTargetMid float64

	// Health score weights.
	HealthBase         float64
	GDPWeight          float64
	InflationWeight    float64
	UnemploymentWeight float64
	UnemploymentOffset float64
	PMIExpansion       float64
	PMIBonus           float64

	// Risk buckets on |inflation - target midpoint|.
	RiskMediumAbove float64
	RiskHighAbove   float64
}

// DefaultConfig returns the SARB-calibrated thresholds.
func DefaultConfig() Config {
	return Config{
		StanceAccommodativeBelow: 8.0,
		StanceRestrictiveAbove:   10.0,
		InflationTargetMid:       4.5,
		HealthBase:               50.0,
		GDPWeight:                8.0,
		InflationWeight:          4.0,
		UnemploymentWeight:       0.8,
		UnemploymentOffset:       20.0,
		PMIExpansion:             50.0,
		PMIBonus:                 5.0,
		RiskMediumAbove:          1.5,
		RiskHighAbove:            3.0,
	}
}

// Project pivots the validated record set into a single current-state
// snapshot: the latest value per indicator plus composite scores.
//
// For each indicator the record with the maximum observed date is selected;
// when two sources deliver the same date, the lexicographically smallest
// source wins, so repeated runs pick the same record.
//
// Composite fields that depend on an indicator with no validated record are
// left nil and the indicator is listed in MissingIndicators. A missing input
// is reported, never papered over with a default value.
func Project(validated []model.ValidatedRecord, cfg Config) (*model.ReportingSnapshot, error) {
	if len(validated) == 0 {
		return nil, ErrNoRecords
	}

	latest := latestPerIndicator(validated)

	snap := &model.ReportingSnapshot{
		Indicators:  make(map[string]float64, len(latest)),
		Trends:      make(map[string]model.Trend, len(latest)),
		GeneratedAt: time.Now().UTC(),
	}

	for name, rec := range latest {
		snap.Indicators[name] = rec.Value
		snap.Trends[name] = rec.Trend
		if rec.ObservedDate.After(snap.SnapshotDate) {
			snap.SnapshotDate = rec.ObservedDate
		}
	}

	missing := map[string]bool{}

	snap.PolicyStance = policyStance(snap.Indicators, cfg, missing)
	snap.HealthScore = healthScore(snap.Indicators, cfg, missing)
	snap.RiskLevel = riskLevel(snap.Indicators, cfg, missing)

	for name := range missing {
		snap.MissingIndicators = append(snap.MissingIndicators, name)
	}
	sort.Strings(snap.MissingIndicators)

	return snap, nil
}

// latestPerIndicator selects the validated record with the maximum observed
// date for each indicator, breaking date ties on the smallest source.
func latestPerIndicator(validated []model.ValidatedRecord) map[string]model.ValidatedRecord {
	latest := make(map[string]model.ValidatedRecord)
	for _, rec := range validated {
		cur, ok := latest[rec.IndicatorName]
		if !ok {
			latest[rec.IndicatorName] = rec
			continue
		}
		switch {
		case rec.ObservedDate.After(cur.ObservedDate):
			latest[rec.IndicatorName] = rec
		case rec.ObservedDate.Equal(cur.ObservedDate) && rec.Source < cur.Source:
			latest[rec.IndicatorName] = rec
		}
	}
	return latest
}

// policyStance classifies the prime rate against the configured bands.
func policyStance(indicators map[string]float64, cfg Config, missing map[string]bool) *model.PolicyStance {
	prime, ok := indicators[model.IndicatorPrimeRate]
	if !ok {
		missing[model.IndicatorPrimeRate] = true
		return nil
	}

	stance := model.StanceNeutral
	switch {
	case prime > cfg.StanceRestrictiveAbove:
		stance = model.StanceRestrictive
	case prime < cfg.StanceAccommodativeBelow:
		stance = model.StanceAccommodative
	}
	return &stance
}

// healthScore computes the composite economic health score, clamped to
// [0,100]. GDP growth, inflation, and unemployment are required inputs;
// the PMI term contributes only when PMI data exists.
func healthScore(indicators map[string]float64, cfg Config, missing map[string]bool) *float64 {
	gdp, gdpOK := indicators[model.IndicatorGDPGrowth]
	inflation, infOK := indicators[model.IndicatorInflation]
	unemployment, unOK := indicators[model.IndicatorUnemployment]

	if !gdpOK {
		missing[model.IndicatorGDPGrowth] = true
	}
	if !infOK {
		missing[model.IndicatorInflation] = true
	}
	if !unOK {
		missing[model.IndicatorUnemployment] = true
	}
	if !gdpOK || !infOK || !unOK {
		return nil
	}

	score := cfg.HealthBase +
		gdp*cfg.GDPWeight -
		math.Abs(inflation-cfg.InflationTargetMid)*cfg.InflationWeight -
		(unemployment-cfg.UnemploymentOffset)*cfg.UnemploymentWeight

	if pmi, ok := indicators[model.IndicatorPMI]; ok {
		if pmi > cfg.PMIExpansion {
			score += cfg.PMIBonus
		} else {
			score -= cfg.PMIBonus
		}
	}

	score = math.Max(0, math.Min(100, score))
	return &score
}

// riskLevel buckets the inflation deviation from the target midpoint.
func riskLevel(indicators map[string]float64, cfg Config, missing map[string]bool) *model.RiskLevel {
	inflation, ok := indicators[model.IndicatorInflation]
	if !ok {
		missing[model.IndicatorInflation] = true
		return nil
	}

	deviation := math.Abs(inflation - cfg.InflationTargetMid)
	level := model.RiskLow
	switch {
	case deviation >= cfg.RiskHighAbove:
		level = model.RiskHigh
	case deviation >= cfg.RiskMediumAbove:
		level = model.RiskMedium
	}
	return &level
}
