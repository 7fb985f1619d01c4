package coordinator

import (
	"github.com/google/uuid"

	"github.com/courtvision/draftroom/internal/draft/engine"
	"github.com/courtvision/draftroom/internal/models"
)

// Strategy chooses a player when a seat misses its timer or a bot seat
// comes on the clock. Selection is pure in-memory work so it can run inside
// the arbitration section.
type Strategy interface {
	Select(view SelectionView) (uuid.UUID, error)
}

// SelectionView is everything a strategy may consult: the acting seat, that
// seat's personal queue in priority order, the rank-ordered player pool, and
// the drafted and pool-membership predicates.
type SelectionView struct {
	Seat    models.Participant
	Queue   []uuid.UUID
	Pool    []models.Player // rank ascending, player ID ascending on ties
	Drafted func(uuid.UUID) bool
	InPool  func(uuid.UUID) bool
}

// QueueThenBestAvailable is the default policy: a human seat's personal
// queue is consulted first, highest priority still-available entry wins;
// bot seats and empty queues fall through to best-available by rank, ties
// broken by lowest player ID for determinism. Queue entries outside the
// league pool are skipped; clients can queue arbitrary IDs and only the
// human submit path rejects them eagerly.
type QueueThenBestAvailable struct{}

func (QueueThenBestAvailable) Select(view SelectionView) (uuid.UUID, error) {
	if !view.Seat.IsBot() {
		for _, playerID := range view.Queue {
			if !view.InPool(playerID) || view.Drafted(playerID) {
				continue
			}
			return playerID, nil
		}
	}
	for _, p := range view.Pool {
		if !view.Drafted(p.ID) {
			return p.ID, nil
		}
	}
	return uuid.Nil, engine.ErrDraftStalled
}
