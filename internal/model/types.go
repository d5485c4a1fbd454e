package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Cost Ledger Types
// -----------------------------------------------------------------------------

// CostComponents holds the raw cost inputs for a variant, as reported by the
// fulfillment vendor.
type CostComponents struct {
	BaseCost      int64 // Provider base cost (cents)
	ShippingCost  int64 // Shipping cost (cents)
	ProcessingFee int64 // Platform processing fee (cents)
}

// Total returns the sum of all components.
func (c CostComponents) Total() int64 {
	return c.BaseCost + c.ShippingCost + c.ProcessingFee
}

// CostObservation is a single time-series point of cost and price for a
// variant. Immutable once recorded; append-only per variant.
type CostObservation struct {
	VariantID     string    // Variant being tracked
	ObservedAt    time.Time // When the costs were observed
	BaseCost      int64     // Provider base cost (cents)
	ShippingCost  int64     // Shipping cost (cents)
	ProcessingFee int64     // Platform processing fee (cents)
	TotalCost     int64     // Derived: sum of components (cents)
	SourcePrice   int64     // Current sale price at observation time (cents)
}

// NewCostObservation builds an observation with the derived total filled in.
func NewCostObservation(variantID string, costs CostComponents, sourcePrice int64, at time.Time) CostObservation {
	return CostObservation{
		VariantID:     variantID,
		ObservedAt:    at,
		BaseCost:      costs.BaseCost,
		ShippingCost:  costs.ShippingCost,
		ProcessingFee: costs.ProcessingFee,
		TotalCost:     costs.Total(),
		SourcePrice:   sourcePrice,
	}
}

// Validate rejects malformed observations before they reach a store.
func (o CostObservation) Validate() error {
	switch {
	case o.VariantID == "":
		return &ValidationError{Field: "variant_id", Reason: "must not be empty"}
	case o.BaseCost < 0:
		return &ValidationError{Field: "base_cost", Reason: "must not be negative"}
	case o.ShippingCost < 0:
		return &ValidationError{Field: "shipping_cost", Reason: "must not be negative"}
	case o.ProcessingFee < 0:
		return &ValidationError{Field: "processing_fee", Reason: "must not be negative"}
	case o.SourcePrice < 0:
		return &ValidationError{Field: "source_price", Reason: "must not be negative"}
	}
	return nil
}

// MarginSnapshot is the margin state of a variant derived from its latest
// observation. Computed on demand, never stored independently.
type MarginSnapshot struct {
	VariantID      string
	SourcePrice    int64   // Sale price (cents)
	TotalCost      int64   // Total cost (cents)
	MarginPercent  float64 // (price - cost) / price, in percent
	MarginAbsolute int64   // price - cost (cents)
	AsOf           time.Time
}

// MarginPercent computes (price - cost) / price in percent.
// A zero cost is defined as a 100% margin; a zero price yields 0.
func MarginPercent(price, cost int64) float64 {
	if cost == 0 {
		return 100
	}
	if price == 0 {
		return 0
	}
	return float64(price-cost) / float64(price) * 100
}

// Snapshot derives the margin snapshot for an observation.
func (o CostObservation) Snapshot() MarginSnapshot {
	return MarginSnapshot{
		VariantID:      o.VariantID,
		SourcePrice:    o.SourcePrice,
		TotalCost:      o.TotalCost,
		MarginPercent:  MarginPercent(o.SourcePrice, o.TotalCost),
		MarginAbsolute: o.SourcePrice - o.TotalCost,
		AsOf:           o.ObservedAt,
	}
}

// -----------------------------------------------------------------------------
// Alerts
// -----------------------------------------------------------------------------

// AlertKind classifies what a ledger alert is reporting.
type AlertKind string

// Alert kind constants.
const (
	AlertCostIncrease         AlertKind = "cost_increase"
	AlertCostDecrease         AlertKind = "cost_decrease"
	AlertMarginBelowThreshold AlertKind = "margin_below_threshold"
	AlertMarginAboveThreshold AlertKind = "margin_above_threshold"
)

// Severity is an ordinal classification of how large/urgent a change is.
type Severity string

// Severity constants, ordered low to critical.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal position of a severity, for comparisons.
// Unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Alert is raised by the Cost Ledger when an observation crosses a configured
// threshold. Immutable except for the Acknowledged flag.
//
// Units of PreviousValue/NewValue depend on Kind: cents for cost kinds,
// margin percent for margin kinds.
type Alert struct {
	ID            uuid.UUID
	VariantID     string
	Kind          AlertKind
	PreviousValue float64
	NewValue      float64
	PercentChange float64 // Signed change that triggered the alert
	Severity      Severity
	Message       string
	CreatedAt     time.Time
	Acknowledged  bool
}

// -----------------------------------------------------------------------------
// Cost Analysis
// -----------------------------------------------------------------------------

// CostBreakdown decomposes a variant's total cost, including configured fee
// allocations. Purely derived; no persisted identity.
type CostBreakdown struct {
	BaseCost            int64 // Provider base cost (cents)
	ShippingCost        int64 // Shipping cost (cents)
	ProcessingFee       int64 // Platform processing fee (cents)
	TransactionFee      int64 // Payment processing fee (cents)
	MarketingAllocation int64 // Marketing/advertising allocation (cents)
	OverheadAllocation  int64 // General overhead allocation (cents)
	TotalCost           int64 // Sum of all of the above (cents)
}

// StrategyKind identifies a pricing strategy.
type StrategyKind string

// Strategy constants.
const (
	StrategyCostPlus    StrategyKind = "cost_plus"
	StrategyCompetitive StrategyKind = "competitive"
	StrategyValueBased  StrategyKind = "value_based"
	StrategyPenetration StrategyKind = "penetration"
	StrategyPremium     StrategyKind = "premium"
)

// MarketPosition is a target competitive stance used to bias strategy
// selection.
type MarketPosition string

// Market position constants.
const (
	PositionBudget   MarketPosition = "budget"
	PositionMidRange MarketPosition = "mid_range"
	PositionPremium  MarketPosition = "premium"
	PositionLuxury   MarketPosition = "luxury"
)

// PricingRecommendation is one strategy's candidate price with its score.
type PricingRecommendation struct {
	Strategy               StrategyKind
	RecommendedPrice       int64   // Candidate price (cents)
	ProjectedMarginPercent float64 // Margin at the candidate price
	Confidence             float64 // 0-1, driven by data volume/freshness
	Rationale              string
	RiskFactors            []string
}

// -----------------------------------------------------------------------------
// Market Tracking
// -----------------------------------------------------------------------------

// CompetitorPricePoint is an externally supplied competitor price
// observation, stored keyed by category.
type CompetitorPricePoint struct {
	CompetitorID string
	Category     string
	Price        int64     // Observed price (cents)
	ObservedAt   time.Time // When the price was observed
	Confidence   float64   // 0-1, data freshness / source reliability
}

// Validate rejects malformed competitor price points.
func (p CompetitorPricePoint) Validate() error {
	switch {
	case p.CompetitorID == "":
		return &ValidationError{Field: "competitor_id", Reason: "must not be empty"}
	case p.Category == "":
		return &ValidationError{Field: "category", Reason: "must not be empty"}
	case p.Price <= 0:
		return &ValidationError{Field: "price", Reason: "must be positive"}
	case p.Confidence < 0 || p.Confidence > 1:
		return &ValidationError{Field: "confidence", Reason: "must be in [0, 1]"}
	}
	return nil
}
