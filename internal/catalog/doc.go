// Package catalog is the client for the fulfillment vendor's catalog API,
// the source of per-variant costs and current prices.
package catalog
