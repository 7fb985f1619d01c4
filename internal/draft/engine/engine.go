package engine

import (
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/courtvision/draftroom/internal/models"
)

// Engine is the authoritative draft state machine: status, round/pick
// pointer, draft order and pick history. It is deliberately single-threaded;
// the coordinator's per-draft arbitration section is the only caller of its
// mutating methods.
type Engine struct {
	draftID  uuid.UUID
	leagueID uuid.UUID
	settings models.DraftSettings

	status        models.DraftStatus
	round         int // 1-based while in progress
	pickInRound   int // 1-based while in progress
	timeRemaining int // seconds left on the current turn

	picks   []models.Pick
	drafted map[uuid.UUID]bool

	clock clockwork.Clock
}

// New creates an engine in the NotStarted state.
func New(draftID, leagueID uuid.UUID, settings models.DraftSettings, clock clockwork.Clock) *Engine {
	return &Engine{
		draftID:  draftID,
		leagueID: leagueID,
		settings: settings,
		status:   models.DraftStatusNotStarted,
		drafted:  make(map[uuid.UUID]bool),
		clock:    clock,
	}
}

// Start transitions NotStarted -> InProgress and puts the first seat on the
// clock with a full timer.
func (e *Engine) Start() error {
	if e.status != models.DraftStatusNotStarted {
		return ErrInvalidState
	}
	if len(e.settings.DraftOrder) == 0 || e.settings.TimePerPickSec <= 0 || e.settings.Rounds <= 0 {
		return ErrBadSettings
	}
	e.status = models.DraftStatusInProgress
	e.round = 1
	e.pickInRound = 1
	e.timeRemaining = e.settings.TimePerPickSec
	return nil
}

// CommitPick validates and appends a pick for the acting participant, then
// advances the turn pointer with snake reversal. Duplicate players are
// rejected here; roster eligibility is the coordinator's concern and is
// checked before this call.
func (e *Engine) CommitPick(participantID, playerID uuid.UUID, auto bool) (models.Pick, error) {
	if e.status != models.DraftStatusInProgress {
		return models.Pick{}, ErrInvalidState
	}
	actor := e.onClock()
	if actor.ID != participantID {
		return models.Pick{}, ErrNotOnClock
	}
	if e.drafted[playerID] {
		return models.Pick{}, ErrPlayerUnavailable
	}

	pick := models.Pick{
		ID:            uuid.New(),
		DraftID:       e.draftID,
		Round:         e.round,
		Pick:          e.pickInRound,
		OverallPick:   len(e.picks) + 1,
		ParticipantID: participantID,
		PlayerID:      playerID,
		PickedAt:      e.clock.Now(),
		Auto:          auto,
	}
	e.picks = append(e.picks, pick)
	e.drafted[playerID] = true

	if len(e.picks) >= e.settings.TotalPicks() {
		e.status = models.DraftStatusCompleted
		e.timeRemaining = 0
		return pick, nil
	}

	next := len(e.picks) + 1
	seats := len(e.settings.DraftOrder)
	e.round = RoundOf(next, seats)
	e.pickInRound = PositionOf(next, seats)
	e.timeRemaining = e.settings.TimePerPickSec
	return pick, nil
}

// Tick decrements the turn timer by one second, floored at zero. The second
// return value signals timer expiry on the transition to zero only; acting
// on it belongs to the autopick policy, not the state machine.
func (e *Engine) Tick() (remaining int, expired bool, err error) {
	if e.status != models.DraftStatusInProgress {
		return 0, false, ErrInvalidState
	}
	if e.timeRemaining > 0 {
		e.timeRemaining--
		expired = e.timeRemaining == 0
	}
	return e.timeRemaining, expired, nil
}

// Reset clears all picks and returns to NotStarted. Valid from InProgress or
// Completed. The caller is responsible for cancelling timers and pending
// persistence before invoking it.
func (e *Engine) Reset() error {
	if e.status == models.DraftStatusNotStarted {
		return ErrInvalidState
	}
	e.status = models.DraftStatusNotStarted
	e.round = 0
	e.pickInRound = 0
	e.timeRemaining = 0
	e.picks = nil
	e.drafted = make(map[uuid.UUID]bool)
	return nil
}

func (e *Engine) onClock() models.Participant {
	idx := SeatIndex(e.round, e.pickInRound, len(e.settings.DraftOrder))
	return e.settings.DraftOrder[idx]
}

// OnClock returns the acting participant. The second return value is false
// when no seat is on the clock (draft not in progress).
func (e *Engine) OnClock() (models.Participant, bool) {
	if e.status != models.DraftStatusInProgress {
		return models.Participant{}, false
	}
	return e.onClock(), true
}

// ActorForOverall returns the seat that acts at the given overall pick
// number, independent of current state.
func (e *Engine) ActorForOverall(overall int) models.Participant {
	return e.settings.DraftOrder[seatIndexForOverall(overall, len(e.settings.DraftOrder))]
}

// NextOverallPick returns the 1-based overall number of the turn currently
// on the clock.
func (e *Engine) NextOverallPick() int { return len(e.picks) + 1 }

func (e *Engine) DraftID() uuid.UUID              { return e.draftID }
func (e *Engine) LeagueID() uuid.UUID             { return e.leagueID }
func (e *Engine) Status() models.DraftStatus      { return e.status }
func (e *Engine) Round() int                      { return e.round }
func (e *Engine) PickInRound() int                { return e.pickInRound }
func (e *Engine) TimeRemaining() int              { return e.timeRemaining }
func (e *Engine) Settings() models.DraftSettings  { return e.settings }
func (e *Engine) Drafted(playerID uuid.UUID) bool { return e.drafted[playerID] }

// Picks returns a copy of the pick history in commit order.
func (e *Engine) Picks() []models.Pick {
	out := make([]models.Pick, len(e.picks))
	copy(out, e.picks)
	return out
}
