package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInsufficientData marks analyses that cannot run for lack of data points.
// Callers treat it as "not available", not as a failure to surface to users.
var ErrInsufficientData = errors.New("insufficient data")

// ErrNotFound marks lookups for entities that do not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed input. Rejected immediately, never
// persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvariantViolationError reports an attempt to create a second pending
// adjustment for a variant. Existing carries the adjustment already pending
// so callers can inspect it.
type InvariantViolationError struct {
	VariantID string
	Existing  PriceAdjustment
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("adjustment %s already pending for variant %s", e.Existing.ID, e.VariantID)
}

// CooldownActiveError reports a non-critical trigger arriving while the
// variant's cooldown has not elapsed.
type CooldownActiveError struct {
	VariantID string
	Until     time.Time
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("cooldown active for variant %s until %s", e.VariantID, e.Until.Format(time.RFC3339))
}

// TransitionError reports an illegal state machine transition.
type TransitionError struct {
	From AdjustmentStatus
	To   AdjustmentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal adjustment transition %s -> %s", e.From, e.To)
}
