package analyzer

import (
	"fmt"
	"math"
	"sort"

	"github.com/printops/pricewatch/internal/model"
)

// StrategyInput is everything a strategy may consider when proposing a price.
type StrategyInput struct {
	Breakdown    model.CostBreakdown
	CurrentPrice int64 // cents

	TargetMarginPercent float64
	MinMarginPercent    float64

	// Competitors holds fresh price points for the variant's category.
	// May be empty; strategies that need market data decline then.
	Competitors []model.CompetitorPricePoint

	// Position is the configured target market stance.
	Position model.MarketPosition
}

// Strategy proposes a candidate price for one pricing approach. Evaluate
// reports false when the strategy cannot apply to the input, for example a
// market-anchored strategy with no competitor data.
type Strategy interface {
	Kind() model.StrategyKind
	Evaluate(in StrategyInput) (model.PricingRecommendation, bool)
}

// AllStrategies returns every built-in strategy, in declaration order.
func AllStrategies() []Strategy {
	return []Strategy{
		costPlus{},
		competitive{},
		valueBased{},
		penetration{},
		premium{},
	}
}

func recommendation(kind model.StrategyKind, price, cost int64, confidence float64, rationale string, risks ...string) model.PricingRecommendation {
	return model.PricingRecommendation{
		Strategy:               kind,
		RecommendedPrice:       price,
		ProjectedMarginPercent: model.MarginPercent(price, cost),
		Confidence:             confidence,
		Rationale:              rationale,
		RiskFactors:            risks,
	}
}

// costPlus prices for the configured target margin. Always applicable: it
// depends only on internal cost data.
type costPlus struct{}

func (costPlus) Kind() model.StrategyKind { return model.StrategyCostPlus }

func (costPlus) Evaluate(in StrategyInput) (model.PricingRecommendation, bool) {
	price := priceForMargin(in.Breakdown.TotalCost, in.TargetMarginPercent)
	if price <= 0 {
		return model.PricingRecommendation{}, false
	}
	return recommendation(model.StrategyCostPlus, price, in.Breakdown.TotalCost, 0.95,
		fmt.Sprintf("prices total cost %d cents for a %.0f%% margin", in.Breakdown.TotalCost, in.TargetMarginPercent),
	), true
}

// competitive anchors on the confidence-weighted mean of competitor prices.
type competitive struct{}

func (competitive) Kind() model.StrategyKind { return model.StrategyCompetitive }

func (competitive) Evaluate(in StrategyInput) (model.PricingRecommendation, bool) {
	if len(in.Competitors) == 0 {
		return model.PricingRecommendation{}, false
	}
	anchor := weightedMeanPrice(in.Competitors)
	conf := dataConfidence(in.Competitors)

	var risks []string
	margin := model.MarginPercent(anchor, in.Breakdown.TotalCost)
	if margin < in.MinMarginPercent {
		risks = append(risks, "market price is below the minimum margin")
	}
	return recommendation(model.StrategyCompetitive, anchor, in.Breakdown.TotalCost, conf,
		fmt.Sprintf("matches the weighted mean of %d competitor prices", len(in.Competitors)),
		risks...,
	), true
}

// valueBased multiplies total cost by a position-dependent factor, then
// sanity-checks the result against the market.
type valueBased struct{}

func (valueBased) Kind() model.StrategyKind { return model.StrategyValueBased }

var valueMultipliers = map[model.MarketPosition]float64{
	model.PositionBudget:   1.2,
	model.PositionMidRange: 1.5,
	model.PositionPremium:  2.0,
	model.PositionLuxury:   3.0,
}

func (valueBased) Evaluate(in StrategyInput) (model.PricingRecommendation, bool) {
	if len(in.Competitors) == 0 {
		// The perceived-value anchor comes from the market; without
		// data the multiplier is a guess.
		return model.PricingRecommendation{}, false
	}
	mult, ok := valueMultipliers[in.Position]
	if !ok {
		return model.PricingRecommendation{}, false
	}
	price := roundCents(float64(in.Breakdown.TotalCost) * mult)

	var risks []string
	if max := maxPrice(in.Competitors); price > max {
		risks = append(risks, "priced above every observed competitor")
	}
	return recommendation(model.StrategyValueBased, price, in.Breakdown.TotalCost, 0.6*dataConfidence(in.Competitors)+0.2,
		fmt.Sprintf("applies the %s position multiplier %.1fx to total cost", in.Position, mult),
		risks...,
	), true
}

// penetration prices just above cost to win volume.
type penetration struct{}

func (penetration) Kind() model.StrategyKind { return model.StrategyPenetration }

func (penetration) Evaluate(in StrategyInput) (model.PricingRecommendation, bool) {
	price := roundCents(float64(in.Breakdown.TotalCost) * 1.1)
	if price <= 0 {
		return model.PricingRecommendation{}, false
	}
	return recommendation(model.StrategyPenetration, price, in.Breakdown.TotalCost, 0.7,
		"prices 10% over total cost to build volume",
		"margin near break-even", "hard to raise prices later",
	), true
}

// premium targets a 60% margin regardless of configuration.
type premium struct{}

func (premium) Kind() model.StrategyKind { return model.StrategyPremium }

const premiumMarginPercent = 60.0

func (premium) Evaluate(in StrategyInput) (model.PricingRecommendation, bool) {
	price := priceForMargin(in.Breakdown.TotalCost, premiumMarginPercent)
	if price <= 0 {
		return model.PricingRecommendation{}, false
	}
	risks := []string{"price may exceed market tolerance"}
	if max := maxPrice(in.Competitors); max > 0 && price > max {
		risks = append(risks, "priced above every observed competitor")
	}
	return recommendation(model.StrategyPremium, price, in.Breakdown.TotalCost, 0.6,
		fmt.Sprintf("targets a %.0f%% premium margin", premiumMarginPercent),
		risks...,
	), true
}

// positionRanges are rough retail price bands per market position, in cents.
var positionRanges = map[model.MarketPosition][2]int64{
	model.PositionBudget:   {500, 1500},
	model.PositionMidRange: {1500, 3500},
	model.PositionPremium:  {3500, 7000},
	model.PositionLuxury:   {7000, 20000},
}

// positionDistance measures how far a price sits outside its position's
// band. Zero means inside the band.
func positionDistance(price int64, pos model.MarketPosition) int64 {
	r, ok := positionRanges[pos]
	if !ok {
		return 0
	}
	switch {
	case price < r[0]:
		return r[0] - price
	case price > r[1]:
		return price - r[1]
	}
	return 0
}

// RecommendStrategies evaluates every strategy against the input and returns
// the applicable recommendations, best first. Ranking prefers candidates
// that clear the minimum margin, then higher confidence, then prices closer
// to the target position's band, then fewer risk factors.
func RecommendStrategies(in StrategyInput) []model.PricingRecommendation {
	var recs []model.PricingRecommendation
	for _, s := range AllStrategies() {
		if rec, ok := s.Evaluate(in); ok {
			if in.CurrentPrice > 0 {
				pct := float64(rec.RecommendedPrice-in.CurrentPrice) / float64(in.CurrentPrice) * 100
				if e := AssessElasticity(pct); e.Band == ElasticityHigh {
					rec.RiskFactors = append(rec.RiskFactors, "large change carries high demand risk")
				}
			}
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		aViable := a.ProjectedMarginPercent >= in.MinMarginPercent
		bViable := b.ProjectedMarginPercent >= in.MinMarginPercent
		if aViable != bViable {
			return aViable
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		da := positionDistance(a.RecommendedPrice, in.Position)
		db := positionDistance(b.RecommendedPrice, in.Position)
		if da != db {
			return da < db
		}
		return len(a.RiskFactors) < len(b.RiskFactors)
	})
	return recs
}

func weightedMeanPrice(points []model.CompetitorPricePoint) int64 {
	var sum, weight float64
	for _, p := range points {
		w := p.Confidence
		if w == 0 {
			w = 0.01
		}
		sum += float64(p.Price) * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return roundCents(sum / weight)
}

func maxPrice(points []model.CompetitorPricePoint) int64 {
	var max int64
	for _, p := range points {
		if p.Price > max {
			max = p.Price
		}
	}
	return max
}

// dataConfidence scores how much the market data can be trusted: it rises
// with the number of points and is scaled by their mean confidence.
func dataConfidence(points []model.CompetitorPricePoint) float64 {
	if len(points) == 0 {
		return 0
	}
	volume := math.Min(0.4+0.05*float64(len(points)), 0.85)
	var mean float64
	for _, p := range points {
		mean += p.Confidence
	}
	mean /= float64(len(points))
	return volume * mean
}
