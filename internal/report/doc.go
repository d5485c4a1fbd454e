// Package report assembles operator-facing snapshots of the engine: current
// margins, open alerts, pending adjustments and market summaries.
package report
