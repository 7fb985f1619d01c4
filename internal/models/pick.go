package models

import (
	"time"

	"github.com/google/uuid"
)

// Pick represents a single committed pick in a draft. Immutable once made.
type Pick struct {
	ID            uuid.UUID `json:"id"`
	DraftID       uuid.UUID `json:"draft_id"`
	Round         int       `json:"round"`
	Pick          int       `json:"pick"`         // pick number within the round
	OverallPick   int       `json:"overall_pick"` // pick number overall, 1-based
	ParticipantID uuid.UUID `json:"participant_id"`
	PlayerID      uuid.UUID `json:"player_id"`
	PickedAt      time.Time `json:"picked_at"`
	Auto          bool      `json:"auto"` // committed by the autopick policy
}
