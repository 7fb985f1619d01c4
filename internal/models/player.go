package models

import "github.com/google/uuid"

// Player is the slice of the player record the coordinator needs: identity
// plus the rank the best-available autopick ranks by.
type Player struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Team      string    `json:"team,omitempty"`
	Positions []string  `json:"positions,omitempty"`
	Rank      int       `json:"rank"`
}
