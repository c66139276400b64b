package requests

import (
	"fmt"

	"github.com/guichet-civil/guichet/internal/platform/httpx"
)

// TransitionPolicy decides whether a status change is allowed. All transition
// validation funnels through here so an ordered graph can be switched on
// without touching any caller.
type TransitionPolicy func(from, to Status) error

// AllowAny permits any staff actor to set any of the six statuses in any
// order, including skips and reversals. Staff rely on backward moves to
// correct triage mistakes, so this is the default.
func AllowAny(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, to)
	}
	return nil
}

// strictGraph is the ordered lifecycle:
// pending → in_review → {approved, rejected}; approved → ready_for_pickup →
// delivered; rejected is terminal.
var strictGraph = map[Status][]Status{
	StatusPending:        {StatusInReview},
	StatusInReview:       {StatusApproved, StatusRejected},
	StatusApproved:       {StatusReadyForPickup},
	StatusReadyForPickup: {StatusDelivered},
	StatusRejected:       {},
	StatusDelivered:      {},
}

// Strict enforces the ordered transition graph. Not wired by default.
func Strict(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, to)
	}
	for _, next := range strictGraph[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: transition %s → %s not allowed", httpx.ErrValidation, from, to)
}
