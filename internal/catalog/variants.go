package catalog

import (
	"context"
	"fmt"
	"net/url"
)

// VariantCost is the vendor's current cost and price data for one variant.
// All money fields are cents.
type VariantCost struct {
	VariantID     string `json:"variant_id"`
	BaseCost      int64  `json:"base_cost"`
	ShippingCost  int64  `json:"shipping_cost"`
	ProcessingFee int64  `json:"processing_fee"`
	Price         int64  `json:"price"`
	Currency      string `json:"currency"`
}

type variantCostResponse struct {
	Variant VariantCost `json:"variant"`
}

// GetVariantCost fetches the current costs and sale price for a variant.
func (c *Client) GetVariantCost(ctx context.Context, variantID string) (VariantCost, error) {
	path := fmt.Sprintf("/v1/shops/%s/variants/%s/costs", c.shopID, variantID)

	var resp variantCostResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return VariantCost{}, fmt.Errorf("get variant cost %s: %w", variantID, err)
	}
	return resp.Variant, nil
}

// VariantSummary is one row of the shop's variant listing.
type VariantSummary struct {
	VariantID string `json:"variant_id"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Active    bool   `json:"active"`
}

type listVariantsResponse struct {
	Variants []VariantSummary `json:"variants"`
	Cursor   string           `json:"cursor"`
}

// ListVariants pages through every variant in the shop.
func (c *Client) ListVariants(ctx context.Context) ([]VariantSummary, error) {
	path := fmt.Sprintf("/v1/shops/%s/variants", c.shopID)

	var all []VariantSummary
	cursor := ""
	for {
		query := url.Values{}
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var resp listVariantsResponse
		if err := c.get(ctx, path, query, &resp); err != nil {
			return nil, fmt.Errorf("list variants: %w", err)
		}
		all = append(all, resp.Variants...)

		if resp.Cursor == "" {
			return all, nil
		}
		cursor = resp.Cursor
	}
}
