// Package poller drives the engine: on an interval it pulls current costs
// for every configured variant, records them in the ledger, and hands any
// resulting alerts to the adjuster. A second loop sweeps expired
// adjustments.
package poller
