// Package store provides persistence for the pricing engine.
//
// One Store interface, three implementations:
//   - Memory: thread-safe maps, used by tests and throwaway runs
//   - Pebble: embedded file-based store, single-node deployments
//   - Postgres: pgx-backed store for shared deployments
//
// Semantics shared by all implementations:
//   - Observations, alerts and competitor prices are append-only
//   - Adjustments are state-tagged records, upserted by ID
//   - Reads return copies; no reference into internal state escapes
package store
