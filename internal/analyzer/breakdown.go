package analyzer

import (
	"math"

	"github.com/printops/pricewatch/internal/config"
	"github.com/printops/pricewatch/internal/model"
)

// AnalyzeCostStructure decomposes a variant's full cost at a given sale
// price. Fee allocations are fractions of the sale price, rounded to the
// nearest cent.
func AnalyzeCostStructure(costs model.CostComponents, sourcePrice int64, fees config.FeeConfig) model.CostBreakdown {
	transaction := roundCents(float64(sourcePrice) * fees.TransactionFeeRate)
	marketing := roundCents(float64(sourcePrice) * fees.MarketingRate)
	overhead := roundCents(float64(sourcePrice) * fees.OverheadRate)

	b := model.CostBreakdown{
		BaseCost:            costs.BaseCost,
		ShippingCost:        costs.ShippingCost,
		ProcessingFee:       costs.ProcessingFee,
		TransactionFee:      transaction,
		MarketingAllocation: marketing,
		OverheadAllocation:  overhead,
	}
	b.TotalCost = b.BaseCost + b.ShippingCost + b.ProcessingFee +
		b.TransactionFee + b.MarketingAllocation + b.OverheadAllocation
	return b
}

func roundCents(v float64) int64 {
	return int64(math.Round(v))
}

// priceForMargin returns the price at which the given cost yields the target
// margin percent: price = cost / (1 - margin/100).
func priceForMargin(cost int64, marginPercent float64) int64 {
	if marginPercent >= 100 {
		return 0
	}
	return roundCents(float64(cost) / (1 - marginPercent/100))
}
