// Package store is the coordinator's narrow interface to the persistence
// collaborator: league draft configuration, the ranked player pool, roster
// eligibility, and the durable pick mirror.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/courtvision/draftroom/internal/models"
)

// DraftConfig is everything the coordinator needs to materialize a draft,
// resolved once at configure time. Seat display names and control modes are
// part of the order; they are never re-derived per event.
type DraftConfig struct {
	DraftID  uuid.UUID
	LeagueID uuid.UUID
	Settings models.DraftSettings
}

// Store is implemented by the persistence collaborator. All methods may
// block on I/O; the coordinator never calls them inside its arbitration
// section.
type Store interface {
	// LoadDraftConfig returns the configured draft for a league.
	LoadDraftConfig(ctx context.Context, leagueID uuid.UUID) (DraftConfig, error)

	// ListPlayerPool returns the league's draftable players ordered by rank
	// ascending. Loaded once at draft start; availability during the draft
	// is tracked in memory against the pick history.
	ListPlayerPool(ctx context.Context, leagueID uuid.UUID) ([]models.Player, error)

	// IsRosterSlotEligible reports whether the participant's roster can take
	// the player (roster not full, position open).
	IsRosterSlotEligible(ctx context.Context, participantID, playerID uuid.UUID) (bool, error)

	// SavePick mirrors a committed pick durably. Idempotent: saving an
	// already-stored pick is a no-op success.
	SavePick(ctx context.Context, pick models.Pick) error

	// DeletePicks clears the stored mirror for a draft. Used by reset.
	DeletePicks(ctx context.Context, draftID uuid.UUID) error
}
