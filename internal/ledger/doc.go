// Package ledger maintains the append-only cost history per variant and
// raises alerts when an observation crosses a configured threshold.
//
// The ledger is the only writer of cost observations. Margins are always
// derived from the latest observation at read time, never stored.
package ledger
