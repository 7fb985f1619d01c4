package engine

import "errors"

// State-conflict errors. Expected under normal operation (races, retries,
// mis-sequenced commands) and returned to the originating caller only.
var (
	// ErrInvalidState is returned when a transition is requested from a
	// status that does not allow it, e.g. Start on an in-progress draft.
	ErrInvalidState = errors.New("draft is not in a valid state for this operation")

	// ErrNotOnClock is returned when the submitting participant is not the
	// acting seat for the current turn.
	ErrNotOnClock = errors.New("participant is not on the clock")

	// ErrPlayerUnavailable is returned when the target player has already
	// been drafted or fails the roster eligibility check.
	ErrPlayerUnavailable = errors.New("player is not available")

	// ErrStaleTurn is returned when a pick attempt arrives after the turn it
	// was aimed at has already advanced. A normal outcome under races, never
	// retried against the new turn.
	ErrStaleTurn = errors.New("turn has already advanced")

	// ErrDraftStalled is returned when the autopick policy finds no eligible
	// player. Fatal for the affected draft; requires operator intervention.
	ErrDraftStalled = errors.New("draft stalled: no eligible player remains")

	// ErrBadSettings is returned by Start when the draft was configured with
	// an empty order or a non-positive pick time limit.
	ErrBadSettings = errors.New("draft settings are invalid")
)
