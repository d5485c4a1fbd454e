// Package model defines shared data types used across the pricing engine.
//
// Conventions:
//   - Money: int64 cents (1999 = $19.99)
//   - Percentages: float64 in percent units (20.0 = 20%)
//   - Confidence: float64 in [0, 1]
//   - Timestamps: time.Time in UTC
//   - IDs: string for variant/competitor/category identifiers,
//     uuid.UUID for alerts and adjustments
package model
