package models

import (
	"time"

	"github.com/google/uuid"
)

// DraftStatus defines the status of a draft.
type DraftStatus string

const (
	DraftStatusNotStarted DraftStatus = "NOT_STARTED"
	DraftStatusInProgress DraftStatus = "IN_PROGRESS"
	DraftStatusCompleted  DraftStatus = "COMPLETED"
)

// ControlMode says who is behind a seat. Set at league-configuration time,
// never inferred from account data.
type ControlMode string

const (
	ControlModeHuman ControlMode = "HUMAN"
	ControlModeBot   ControlMode = "BOT"
)

// Participant is one seat in the draft order, resolved once at configure time.
type Participant struct {
	ID          uuid.UUID   `json:"id"`
	DisplayName string      `json:"display_name"`
	ControlMode ControlMode `json:"control_mode"`
}

// IsBot reports whether the seat is driven by the autopick policy on every turn.
func (p Participant) IsBot() bool { return p.ControlMode == ControlModeBot }

// DraftSettings holds the configuration a commissioner locks in before start.
type DraftSettings struct {
	Rounds         int           `json:"rounds"`
	TimePerPickSec int           `json:"time_per_pick_sec"`
	DraftOrder     []Participant `json:"draft_order"`
}

// TotalPicks is the number of picks a completed draft will contain.
func (s DraftSettings) TotalPicks() int {
	return s.Rounds * len(s.DraftOrder)
}

// Draft represents a draft instance. The engine owns all mutation.
type Draft struct {
	ID          uuid.UUID     `json:"id"`
	LeagueID    uuid.UUID     `json:"league_id"`
	Status      DraftStatus   `json:"status"`
	Settings    DraftSettings `json:"settings"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}
