package model

import "time"

// PolicyStance classifies the monetary policy implied by the prime rate.
type PolicyStance string

const (
	StanceRestrictive   PolicyStance = "RESTRICTIVE"
	StanceNeutral       PolicyStance = "NEUTRAL"
	StanceAccommodative PolicyStance = "ACCOMMODATIVE"
)

// RiskLevel buckets the primary risk indicator against configured thresholds.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Tracked indicator names. These match the series codes the SARB and
// StatsSA feeds deliver; the gold layer pivots on them.
const (
	IndicatorGDPGrowth      = "GDP_Growth_Rate"
	IndicatorInflation      = "Inflation_Rate"
	IndicatorPrimeRate      = "Prime_Interest_Rate"
	IndicatorUnemployment   = "Unemployment_Rate"
	IndicatorUSDZAR         = "USD_ZAR_Exchange_Rate"
	IndicatorDebtGDP        = "Government_Debt_GDP_Ratio"
	IndicatorCurrentAccount = "Current_Account_Balance"
	IndicatorPMI            = "Manufacturing_PMI"
)

// TrackedIndicators lists every indicator the reporting layer pivots into
// wide columns, in stable output order.
var TrackedIndicators = []string{
	IndicatorGDPGrowth,
	IndicatorInflation,
	IndicatorPrimeRate,
	IndicatorUnemployment,
	IndicatorUSDZAR,
	IndicatorDebtGDP,
	IndicatorCurrentAccount,
	IndicatorPMI,
}

// ReportingSnapshot is the gold-layer record: one wide row per run holding
// the latest value of each tracked indicator plus composite scores.
// Composite fields are nil when a required input indicator has no validated
// record at all; they are never computed against a fabricated default.
type ReportingSnapshot struct {
	SnapshotDate time.Time `json:"snapshot_date"`

	// Latest value per tracked indicator; absent keys mean no data landed.
	Indicators map[string]float64 `json:"indicators"`

	// Per-indicator trend carried over from the validated layer.
	Trends map[string]Trend `json:"trends"`

	PolicyStance *PolicyStance `json:"policy_stance,omitempty"`
	HealthScore  *float64      `json:"health_score,omitempty"`
	RiskLevel    *RiskLevel    `json:"risk_level,omitempty"`

	// Indicators that were required for a composite but had no data.
	MissingIndicators []string `json:"missing_indicators,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// InsightAnnotation is free-text commentary attached to a snapshot by an
// annotation provider. Stored separately from the snapshot so annotator
// failures never block or corrupt the reporting stage.
type InsightAnnotation struct {
	SnapshotDate time.Time `json:"snapshot_date"`
	Narrative    string    `json:"narrative_text"`
	Provider     string    `json:"provider"`
	Confidence   float64   `json:"confidence"`
	GeneratedAt  time.Time `json:"generated_at"`
}
