// Package validate turns the raw landing layer into the canonical validated
// record set: deduplication, validity rules, and period-over-period analytics.
package validate

import (
	"sort"

	"github.com/sarbstats/econ-cli/internal/model"
)

// DefaultRollingWindow is the trailing window size for rolling averages.
const DefaultRollingWindow = 4

// Config carries the validator's tunables, hoisted from configuration so the
// same rules apply uniformly instead of drifting across call sites.
type Config struct {
	// RollingWindow is the trailing record count for rolling averages,
	// inclusive of the current record. Zero means DefaultRollingWindow.
	RollingWindow int

	// SourceConfidence maps source name to a confidence weight in [0,1].
	// Unlisted sources get 1.0. Reserved hook for source-quality weighting.
	SourceConfidence map[string]float64
}

func (c Config) window() int {
	if c.RollingWindow <= 0 {
		return DefaultRollingWindow
	}
	return c.RollingWindow
}

func (c Config) confidence(source string) float64 {
	if w, ok := c.SourceConfidence[source]; ok {
		return w
	}
	return 1.0
}

// ValidateAndEnrich produces the validated record set from the raw store's
// current contents. It is a pure function of its input: given the same raw
// records it returns identical output, which is what makes whole-batch
// re-runs safe.
//
// Excluded records are returned as rejections with a reason code, never
// silently dropped.
func ValidateAndEnrich(raw []model.RawRecord, cfg Config) ([]model.ValidatedRecord, []model.Rejection) {
	deduped := Dedupe(raw)

	var valid []model.RawRecord
	var rejections []model.Rejection
	for _, r := range deduped {
		if reason := invalidReason(r); reason != "" {
			rejections = append(rejections, model.Rejection{
				Identity: r.Identity(),
				Reason:   reason,
			})
			continue
		}
		valid = append(valid, r)
	}

	records := enrich(valid, cfg)
	return records, rejections
}

// Dedupe collapses raw records sharing an identity triple down to the
// latest-arriving one (last-write-wins on exact re-delivery). When two
// re-deliveries carry the same ingestion timestamp, the lexicographically
// greatest content hash wins; the tie-break is content-derived so replays
// stay deterministic.
func Dedupe(raw []model.RawRecord) []model.RawRecord {
	latest := make(map[string]model.RawRecord, len(raw))
	for _, r := range raw {
		id := r.Identity()
		cur, ok := latest[id]
		if !ok {
			latest[id] = r
			continue
		}
		switch {
		case r.IngestionTimestamp.After(cur.IngestionTimestamp):
			latest[id] = r
		case r.IngestionTimestamp.Equal(cur.IngestionTimestamp) && r.ContentHash > cur.ContentHash:
			latest[id] = r
		}
	}

	out := make([]model.RawRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity() < out[j].Identity()
	})
	return out
}

// invalidReason returns the rejection reason for a record, or "" if valid.
// A record is valid iff its value is present and non-negative.
func invalidReason(r model.RawRecord) model.RejectionReason {
	switch {
	case r.Value == nil:
		return model.ReasonNullValue
	case *r.Value < 0:
		return model.ReasonNegativeValue
	}
	return ""
}

// enrich partitions valid records by indicator and computes, in ascending
// observed-date order, the derived fields: previous value, absolute and
// percent change, trailing rolling average, and trend.
func enrich(valid []model.RawRecord, cfg Config) []model.ValidatedRecord {
	byIndicator := make(map[string][]model.RawRecord)
	var names []string
	for _, r := range valid {
		if _, ok := byIndicator[r.IndicatorName]; !ok {
			names = append(names, r.IndicatorName)
		}
		byIndicator[r.IndicatorName] = append(byIndicator[r.IndicatorName], r)
	}
	sort.Strings(names)

	window := cfg.window()
	var out []model.ValidatedRecord

	for _, name := range names {
		partition := byIndicator[name]
		sort.Slice(partition, func(i, j int) bool {
			a, b := partition[i], partition[j]
			if !a.ObservedDate.Equal(b.ObservedDate) {
				return a.ObservedDate.Before(b.ObservedDate)
			}
			if *a.Value != *b.Value {
				return *a.Value < *b.Value
			}
			return a.Source < b.Source
		})

		for i, r := range partition {
			rec := model.ValidatedRecord{
				IndicatorName: r.IndicatorName,
				Category:      r.Category,
				Value:         *r.Value,
				Unit:          r.Unit,
				ObservedDate:  r.ObservedDate,
				Source:        r.Source,
				IsValid:       true,
				Confidence:    cfg.confidence(r.Source),
				Trend:         model.TrendStable,
			}

			// Previous value is from the immediately preceding observed
			// date within this indicator, skipping same-date siblings.
			if prev := previousRecord(partition, i); prev != nil {
				pv := *prev.Value
				rec.PreviousValue = &pv

				abs := rec.Value - pv
				rec.AbsoluteChange = &abs

				// Zero previous value means percent change is undefined;
				// emit nil, never a division error or Inf.
				if pv != 0 {
					pct := abs / pv * 100
					rec.PercentChange = &pct
				}

				switch {
				case rec.Value > pv:
					rec.Trend = model.TrendImproving
				case rec.Value < pv:
					rec.Trend = model.TrendDeclining
				}
			}

			// Rolling average over the trailing window of same-indicator
			// records inclusive of this one. Fewer than window records
			// averages over however many exist.
			start := i - window + 1
			if start < 0 {
				start = 0
			}
			var sum float64
			for _, p := range partition[start : i+1] {
				sum += *p.Value
			}
			avg := sum / float64(i+1-start)
			rec.RollingAverage = &avg

			out = append(out, rec)
		}
	}
	return out
}

// previousRecord returns the latest record in the sorted partition whose
// observed date strictly precedes partition[i]'s, or nil if none exists.
func previousRecord(partition []model.RawRecord, i int) *model.RawRecord {
	for j := i - 1; j >= 0; j-- {
		if partition[j].ObservedDate.Before(partition[i].ObservedDate) {
			return &partition[j]
		}
	}
	return nil
}
