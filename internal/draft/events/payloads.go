package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/courtvision/draftroom/internal/models"
)

// Snapshot carries the full authoritative draft view. Every state mutation
// produces exactly one snapshot broadcast; a client that joins mid-draft
// reconciles from this alone.
type Snapshot struct {
	DraftID       uuid.UUID            `json:"draft_id"`
	Status        models.DraftStatus   `json:"status"`
	Round         int                  `json:"round"`
	PickInRound   int                  `json:"pick_in_round"`
	OverallPick   int                  `json:"overall_pick"`
	OnClock       *models.Participant  `json:"on_clock,omitempty"`
	TimeRemaining int                  `json:"time_remaining_sec"`
	DraftOrder    []models.Participant `json:"draft_order"`
	Picks         []models.Pick        `json:"picks"`
	Degraded      bool                 `json:"degraded,omitempty"`
}

// PickInProgressPayload is a transient UI affordance emitted when a pick
// attempt enters arbitration. Not authoritative; clients must not infer
// anything from its absence.
type PickInProgressPayload struct {
	ParticipantID uuid.UUID `json:"participant_id"`
}

// DraftStartedPayload is journaled when a draft transitions to InProgress.
type DraftStartedPayload struct {
	DraftID     uuid.UUID `json:"draft_id"`
	StartedAt   time.Time `json:"started_at"`
	TotalRounds int       `json:"total_rounds"`
	TotalPicks  int       `json:"total_picks"`
}

// PickMadePayload is journaled for every committed pick.
type PickMadePayload struct {
	PickID        uuid.UUID `json:"pick_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	PlayerID      uuid.UUID `json:"player_id"`
	Round         int       `json:"round"`
	Pick          int       `json:"pick"`
	OverallPick   int       `json:"overall_pick"`
	Auto          bool      `json:"auto"`
	MadeAt        time.Time `json:"made_at"`
}

// DraftCompletedPayload is journaled when the final pick commits.
type DraftCompletedPayload struct {
	DraftID     uuid.UUID `json:"draft_id"`
	CompletedAt time.Time `json:"completed_at"`
	TotalPicks  int       `json:"total_picks"`
}

// DraftResetPayload is journaled on an administrative reset. Distinct from
// the initial empty state so dependents can tell the two apart.
type DraftResetPayload struct {
	DraftID uuid.UUID `json:"draft_id"`
	ResetAt time.Time `json:"reset_at"`
}

// DraftStalledPayload is journaled when autopick finds no eligible player.
type DraftStalledPayload struct {
	DraftID       uuid.UUID `json:"draft_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	StalledAt     time.Time `json:"stalled_at"`
	Reason        string    `json:"reason"`
}
