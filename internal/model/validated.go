package model

import "time"

// Trend classifies period-over-period movement of an indicator.
type Trend string

const (
	TrendImproving Trend = "IMPROVING"
	TrendDeclining Trend = "DECLINING"
	TrendStable    Trend = "STABLE"
)

// ValidatedRecord is the silver-layer view of one distinct observation:
// deduplicated, validated, and enriched with period-over-period analytics.
// PreviousValue, AbsoluteChange, and PercentChange are nil exactly when no
// earlier-dated record exists for the same indicator. PercentChange is also
// nil when the previous value is zero.
type ValidatedRecord struct {
	IndicatorName  string    `json:"indicator_name"`
	Category       string    `json:"category"`
	Value          float64   `json:"value"`
	Unit           string    `json:"unit"`
	ObservedDate   time.Time `json:"observed_date"`
	Source         string    `json:"source"`
	IsValid        bool      `json:"is_valid"`
	Confidence     float64   `json:"confidence"`
	PreviousValue  *float64  `json:"previous_value,omitempty"`
	AbsoluteChange *float64  `json:"absolute_change,omitempty"`
	PercentChange  *float64  `json:"percent_change,omitempty"`
	RollingAverage *float64  `json:"rolling_average,omitempty"`
	Trend          Trend     `json:"trend"`
}
