// Package analyzer derives cost breakdowns and pricing recommendations.
//
// Everything here is a pure function of its inputs. The analyzer never
// touches storage; callers feed it observations and competitor prices and
// get candidate prices back.
package analyzer
