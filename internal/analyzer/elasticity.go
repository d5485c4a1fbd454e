package analyzer

import "math"

// Elasticity bands.
const (
	ElasticityLow    = "low"
	ElasticityMedium = "medium"
	ElasticityHigh   = "high"
)

// Elasticity is a rough read on how much demand risk a price change carries.
// Without sales-volume history the assessment is qualitative only, and the
// flag says so.
type Elasticity struct {
	Band        string
	Qualitative bool
}

// AssessElasticity classifies a proposed percent price change. Larger moves
// carry more demand risk regardless of direction.
func AssessElasticity(percentChange float64) Elasticity {
	abs := math.Abs(percentChange)
	band := ElasticityLow
	switch {
	case abs > 20:
		band = ElasticityHigh
	case abs > 10:
		band = ElasticityMedium
	}
	return Elasticity{Band: band, Qualitative: true}
}
