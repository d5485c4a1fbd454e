// Package adjuster turns alerts into price adjustment proposals and owns
// their lifecycle: pending, approved, rejected, executed, expired.
//
// Invariants enforced here:
//   - at most one pending adjustment per variant
//   - price changes clamped to the configured maximum
//   - an executed adjustment starts the variant's cooldown
package adjuster
