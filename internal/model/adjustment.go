package model

import (
	"time"

	"github.com/google/uuid"
)

// AdjustmentStatus is the lifecycle state of a PriceAdjustment.
type AdjustmentStatus string

// Adjustment status constants.
const (
	StatusPending  AdjustmentStatus = "pending"
	StatusApproved AdjustmentStatus = "approved"
	StatusRejected AdjustmentStatus = "rejected"
	StatusExecuted AdjustmentStatus = "executed"
	StatusExpired  AdjustmentStatus = "expired"
)

// TriggerManual marks adjustments created by an operator rather than an alert.
const TriggerManual = "manual"

// statusTransitions is the full state machine. Rejected, executed and expired
// are terminal. Approved may fall back to pending when the execution channel
// reports a failure.
var statusTransitions = map[AdjustmentStatus][]AdjustmentStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved: {StatusExecuted, StatusExpired, StatusPending},
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s AdjustmentStatus) CanTransition(next AdjustmentStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transitions leave this state.
func (s AdjustmentStatus) Terminal() bool {
	return len(statusTransitions[s]) == 0
}

// PriceAdjustment is a proposed price change moving through the approval
// state machine. The central mutable entity of the engine; owned exclusively
// by the Price Adjuster.
type PriceAdjustment struct {
	ID        uuid.UUID
	VariantID string

	// Trigger records what caused the adjustment: an AlertKind value, or
	// TriggerManual. TriggerAlertID is uuid.Nil for manual adjustments.
	Trigger        string
	TriggerAlertID uuid.UUID

	CurrentPrice  int64   // Price at creation time (cents)
	ProposedPrice int64   // Clamped and rounded candidate price (cents)
	PercentChange float64 // (proposed - current) / current, in percent
	Confidence    float64 // 0-1

	Status        AdjustmentStatus
	CreatedAt     time.Time
	DecidedAt     time.Time // Set on approve/reject; zero until then
	ExecutedAt    time.Time // Set only from approved; zero until then
	ExpiresAt     time.Time // Pending/approved past this become expired
	CooldownUntil time.Time // Set on execution; blocks new adjustments
	RetryCount    int       // Incremented on failed execution reports
}
