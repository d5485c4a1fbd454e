// Package market ingests competitor price points and answers where our
// price sits in a category: percentile, competitiveness band, nearest
// neighbors and exploitable gaps.
package market
