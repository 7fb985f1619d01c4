// Package coordinator runs live snake drafts: it owns the per-draft
// arbitration rooms, the turn clocks, and the autopick policy, and mediates
// between the realtime gateway, the persistence collaborator, and the event
// journal.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/courtvision/draftroom/internal/draft/engine"
	"github.com/courtvision/draftroom/internal/draft/events"
	"github.com/courtvision/draftroom/internal/draft/store"
	"github.com/courtvision/draftroom/internal/models"
)

// Broadcaster is what the coordinator needs from the realtime fan-out.
// Implementations must be non-blocking channel hand-offs; they are called
// inside the arbitration section.
type Broadcaster interface {
	BroadcastSnapshot(draftID uuid.UUID, snap events.Snapshot)
	BroadcastEvent(draftID uuid.UUID, ev events.Event)
}

// Journal is the durable domain-event sink. Append must not block on I/O;
// the outbox worker does the actual writing.
type Journal interface {
	Append(ev events.Event)
}

// ErrUnknownDraft is returned for commands addressed to a draft no room has
// been configured for.
var ErrUnknownDraft = errors.New("unknown draft")

// Coordinator is the registry of active draft rooms plus the administrative
// surface the commissioner tooling calls.
type Coordinator struct {
	store       store.Store
	persister   *store.Persister
	broadcaster Broadcaster
	journal     Journal
	strat       Strategy
	clock       clockwork.Clock

	// baseCtx parents every room clock so timers survive the admin request
	// that started them.
	baseCtx context.Context

	rngMu sync.Mutex
	rng   *rand.Rand

	mu    sync.RWMutex
	rooms map[uuid.UUID]*Room
}

func New(baseCtx context.Context, s store.Store, persister *store.Persister, broadcaster Broadcaster, journal Journal, clock clockwork.Clock) *Coordinator {
	c := &Coordinator{
		store:       s,
		persister:   persister,
		broadcaster: broadcaster,
		journal:     journal,
		strat:       QueueThenBestAvailable{},
		clock:       clock,
		baseCtx:     baseCtx,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		rooms:       make(map[uuid.UUID]*Room),
	}
	persister.OnExhausted = func(draftID uuid.UUID, _ models.Pick, _ error) {
		if room, ok := c.Room(draftID); ok {
			room.MarkDegraded()
		}
	}
	return c
}

// ConfigureDraft materializes a room for a league in the NotStarted state.
// The draft order is resolved once, here: display names and control modes
// come with the settings and are never re-derived per event. With
// shuffleOrder set the seats are shuffled server-side, as the commissioner
// tooling offers alongside manual ordering.
func (c *Coordinator) ConfigureDraft(leagueID uuid.UUID, settings models.DraftSettings, shuffleOrder bool) (*Room, error) {
	if err := validateSettings(settings); err != nil {
		return nil, err
	}
	order := make([]models.Participant, len(settings.DraftOrder))
	copy(order, settings.DraftOrder)
	if shuffleOrder {
		c.rngMu.Lock()
		c.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		c.rngMu.Unlock()
	}
	settings.DraftOrder = order

	cfg := store.DraftConfig{
		DraftID:  uuid.New(),
		LeagueID: leagueID,
		Settings: settings,
	}
	room := c.register(cfg)
	log.Info().
		Str("draft_id", cfg.DraftID.String()).
		Str("league_id", leagueID.String()).
		Int("seats", len(order)).
		Bool("shuffled", shuffleOrder).
		Msg("draft configured")
	return room, nil
}

// LoadDraft materializes a room from the persistence collaborator's stored
// configuration for a league.
func (c *Coordinator) LoadDraft(ctx context.Context, leagueID uuid.UUID) (*Room, error) {
	cfg, err := c.store.LoadDraftConfig(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("load draft config: %w", err)
	}
	if err := validateSettings(cfg.Settings); err != nil {
		return nil, err
	}
	return c.register(cfg), nil
}

// StartDraft loads the league player pool and transitions the draft to
// InProgress.
func (c *Coordinator) StartDraft(ctx context.Context, draftID uuid.UUID) error {
	room, ok := c.Room(draftID)
	if !ok {
		return ErrUnknownDraft
	}
	pool, err := c.store.ListPlayerPool(ctx, room.LeagueID())
	if err != nil {
		return fmt.Errorf("load player pool: %w", err)
	}
	sortPool(pool)
	return room.Start(c.baseCtx, pool)
}

// ResetDraft clears a draft back to NotStarted, cancelling its clock and
// pending mirror writes first.
func (c *Coordinator) ResetDraft(ctx context.Context, draftID uuid.UUID) error {
	room, ok := c.Room(draftID)
	if !ok {
		return ErrUnknownDraft
	}
	return room.Reset(ctx)
}

// Room returns the arbitration room for a draft.
func (c *Coordinator) Room(draftID uuid.UUID) (*Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	room, ok := c.rooms[draftID]
	return room, ok
}

func (c *Coordinator) register(cfg store.DraftConfig) *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.rooms[cfg.DraftID]; ok {
		return existing
	}
	room := newRoom(cfg, roomDeps{
		strat:       c.strat,
		store:       c.store,
		persister:   c.persister,
		broadcaster: c.broadcaster,
		journal:     c.journal,
		clock:       c.clock,
	})
	c.rooms[cfg.DraftID] = room
	return room
}

func validateSettings(s models.DraftSettings) error {
	if len(s.DraftOrder) == 0 {
		return fmt.Errorf("%w: empty draft order", engine.ErrBadSettings)
	}
	if s.Rounds <= 0 {
		return fmt.Errorf("%w: rounds must be positive", engine.ErrBadSettings)
	}
	if s.TimePerPickSec <= 0 {
		return fmt.Errorf("%w: pick time limit must be positive", engine.ErrBadSettings)
	}
	seen := make(map[uuid.UUID]bool, len(s.DraftOrder))
	for _, p := range s.DraftOrder {
		if p.ID == uuid.Nil {
			return fmt.Errorf("%w: seat without participant id", engine.ErrBadSettings)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate participant %s", engine.ErrBadSettings, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// sortPool orders the pool by rank ascending, player ID ascending on ties,
// so best-available selection is deterministic.
func sortPool(pool []models.Player) {
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].Rank != pool[j].Rank {
			return pool[i].Rank < pool[j].Rank
		}
		return pool[i].ID.String() < pool[j].ID.String()
	})
}
