package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/courtvision/draftroom/internal/draft/engine"
	"github.com/courtvision/draftroom/internal/draft/events"
	"github.com/courtvision/draftroom/internal/draft/queue"
	"github.com/courtvision/draftroom/internal/draft/store"
	"github.com/courtvision/draftroom/internal/models"
)

// Room is the per-draft arbitration unit: one state machine, one clock, one
// mutex. All pick attempts for a draft (human submissions, explicit autopick
// requests, timer expirations) funnel through commit, which is the only
// writer of draft state. Rooms for different drafts share nothing mutable.
type Room struct {
	draftID  uuid.UUID
	leagueID uuid.UUID

	eng    *engine.Engine
	queues *queue.Manager
	strat  Strategy

	store       store.Store
	persister   *store.Persister
	broadcaster Broadcaster
	journal     Journal
	clock       clockwork.Clock

	mu      sync.Mutex
	pool    []models.Player // rank ascending; immutable once the draft starts
	poolSet map[uuid.UUID]bool

	// turn mirrors the engine's next overall pick so attempts can be tagged
	// with their target turn without entering the arbitration section.
	turn     atomic.Int64
	degraded atomic.Bool

	clockCancel context.CancelFunc
}

// attempt is a pick attempt tagged with the turn it was aimed at. Attempts
// whose turn has already advanced are rejected with ErrStaleTurn.
type attempt struct {
	participantID uuid.UUID
	playerID      uuid.UUID // Nil for autopick; the strategy chooses
	turn          int
	auto          bool
}

func newRoom(cfg store.DraftConfig, deps roomDeps) *Room {
	return &Room{
		draftID:     cfg.DraftID,
		leagueID:    cfg.LeagueID,
		eng:         engine.New(cfg.DraftID, cfg.LeagueID, cfg.Settings, deps.clock),
		queues:      queue.NewManager(),
		strat:       deps.strat,
		store:       deps.store,
		persister:   deps.persister,
		broadcaster: deps.broadcaster,
		journal:     deps.journal,
		clock:       deps.clock,
		poolSet:     make(map[uuid.UUID]bool),
	}
}

type roomDeps struct {
	strat       Strategy
	store       store.Store
	persister   *store.Persister
	broadcaster Broadcaster
	journal     Journal
	clock       clockwork.Clock
}

func (r *Room) DraftID() uuid.UUID  { return r.draftID }
func (r *Room) LeagueID() uuid.UUID { return r.leagueID }

// Start transitions the draft to InProgress, arms the per-draft clock and,
// when the first seat is bot-controlled, triggers its pick immediately.
// clockCtx must outlive the draft; it is the coordinator's run context, not
// a request context.
func (r *Room) Start(clockCtx context.Context, pool []models.Player) error {
	r.mu.Lock()
	if err := r.eng.Start(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.pool = pool
	r.poolSet = make(map[uuid.UUID]bool, len(pool))
	for _, p := range pool {
		r.poolSet[p.ID] = true
	}
	r.turn.Store(1)
	r.degraded.Store(false)

	r.journalLocked(events.EventTypeDraftStarted, events.DraftStartedPayload{
		DraftID:     r.draftID,
		StartedAt:   r.clock.Now(),
		TotalRounds: r.eng.Settings().Rounds,
		TotalPicks:  r.eng.Settings().TotalPicks(),
	})

	ctx, cancel := context.WithCancel(clockCtx)
	r.clockCancel = cancel
	go r.runClock(ctx)

	r.broadcastLocked()
	first, _ := r.eng.OnClock()
	r.mu.Unlock()

	log.Info().
		Str("draft_id", r.draftID.String()).
		Int("seats", len(r.eng.Settings().DraftOrder)).
		Int("rounds", r.eng.Settings().Rounds).
		Msg("draft started")

	if first.IsBot() {
		go r.autopick(clockCtx, first.ID, 1)
	}
	return nil
}

// SubmitPick is the human pick path. Roster eligibility is checked against
// the persistence collaborator before entering arbitration so no storage
// I/O happens while the room is locked.
func (r *Room) SubmitPick(ctx context.Context, participantID, playerID uuid.UUID) error {
	turn := int(r.turn.Load())

	r.advisePickInProgress(participantID)

	if !r.inPool(playerID) {
		return engine.ErrPlayerUnavailable
	}
	eligible, err := r.store.IsRosterSlotEligible(ctx, participantID, playerID)
	if err != nil {
		return fmt.Errorf("roster eligibility check: %w", err)
	}
	if !eligible {
		return engine.ErrPlayerUnavailable
	}

	return r.commit(ctx, attempt{
		participantID: participantID,
		playerID:      playerID,
		turn:          turn,
		auto:          false,
	})
}

// RequestAutopick lets the on-clock participant hand their turn to the
// policy explicitly. Same arbitration path as every other attempt.
func (r *Room) RequestAutopick(ctx context.Context, participantID uuid.UUID) error {
	turn := int(r.turn.Load())
	r.advisePickInProgress(participantID)
	return r.commit(ctx, attempt{participantID: participantID, turn: turn, auto: true})
}

// Reset cancels the clock and pending mirror writes, then clears all state
// back to NotStarted. Emits DraftReset so dependents can distinguish it
// from a draft that never started.
func (r *Room) Reset(ctx context.Context) error {
	r.mu.Lock()
	// Timer and pending persistence must die before state clears, so a
	// stale autopick or mirror write cannot land on the fresh draft.
	r.stopClockLocked()
	r.persister.CancelDraft(r.draftID)

	if err := r.eng.Reset(); err != nil {
		r.persister.ResumeDraft(r.draftID)
		r.mu.Unlock()
		return err
	}
	r.queues.Clear()
	r.turn.Store(0)
	r.degraded.Store(false)
	r.journalLocked(events.EventTypeDraftReset, events.DraftResetPayload{
		DraftID: r.draftID,
		ResetAt: r.clock.Now(),
	})
	r.broadcastLocked()
	r.mu.Unlock()

	if err := r.store.DeletePicks(ctx, r.draftID); err != nil {
		log.Error().Err(err).Str("draft_id", r.draftID.String()).Msg("failed to clear pick mirror on reset")
	}
	r.persister.ResumeDraft(r.draftID)

	log.Info().Str("draft_id", r.draftID.String()).Msg("draft reset")
	return nil
}

// Snapshot returns the full authoritative view.
func (r *Room) Snapshot() events.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// SyncSnapshot hands the current snapshot to deliver inside the room lock.
// Room broadcasts enqueue under the same lock, so whatever deliver enqueues
// is ordered against them; joining connections resync through this without
// ever receiving a snapshot older than a broadcast already behind it.
func (r *Room) SyncSnapshot(deliver func(events.Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deliver(r.snapshotLocked())
}

// QueueAdd, QueueRemove, QueueReorder and Queue manage the participant's
// personal priority list. Queue mutations are not draft-state mutations and
// do not broadcast.
func (r *Room) QueueAdd(participantID, playerID uuid.UUID)      { r.queues.Add(participantID, playerID) }
func (r *Room) QueueRemove(participantID, playerID uuid.UUID)   { r.queues.Remove(participantID, playerID) }
func (r *Room) QueueReorder(participantID, playerID uuid.UUID, pos int) {
	r.queues.Reorder(participantID, playerID, pos)
}
func (r *Room) Queue(participantID uuid.UUID) []uuid.UUID { return r.queues.Get(participantID) }

// MarkDegraded flags the draft's durable mirror as lagging beyond recovery.
// Turn progression continues; operators resolve out of band.
func (r *Room) MarkDegraded() {
	if r.degraded.Swap(true) {
		return
	}
	r.mu.Lock()
	r.broadcastLocked()
	r.mu.Unlock()
}

// Degraded reports whether the draft is in a degraded or stalled condition.
func (r *Room) Degraded() bool { return r.degraded.Load() }

// commit is the single-writer section. At most one attempt per logical turn
// gets through; everything else exits with a state-conflict error returned
// to its originating caller only.
func (r *Room) commit(ctx context.Context, a attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.eng.Status() != models.DraftStatusInProgress {
		return engine.ErrInvalidState
	}
	if a.turn != r.eng.NextOverallPick() {
		return engine.ErrStaleTurn
	}

	playerID := a.playerID
	if a.auto {
		seat, _ := r.eng.OnClock()
		if seat.ID != a.participantID {
			return engine.ErrNotOnClock
		}
		chosen, err := r.strat.Select(SelectionView{
			Seat:    seat,
			Queue:   r.queues.Get(seat.ID),
			Pool:    r.pool,
			Drafted: r.eng.Drafted,
			InPool:  func(id uuid.UUID) bool { return r.poolSet[id] },
		})
		if err != nil {
			if errors.Is(err, engine.ErrDraftStalled) {
				r.stallLocked(seat)
			}
			return err
		}
		playerID = chosen
	}

	pick, err := r.eng.CommitPick(a.participantID, playerID, a.auto)
	if err != nil {
		return err
	}
	r.turn.Store(int64(r.eng.NextOverallPick()))
	r.queues.PruneDrafted(pick.PlayerID)

	// Durable mirror and journal lag behind; both are channel hand-offs,
	// never storage I/O in here.
	r.persister.Enqueue(pick)
	r.journalLocked(events.EventTypePickMade, events.PickMadePayload{
		PickID:        pick.ID,
		ParticipantID: pick.ParticipantID,
		PlayerID:      pick.PlayerID,
		Round:         pick.Round,
		Pick:          pick.Pick,
		OverallPick:   pick.OverallPick,
		Auto:          pick.Auto,
		MadeAt:        pick.PickedAt,
	})

	completed := r.eng.Status() == models.DraftStatusCompleted
	if completed {
		r.stopClockLocked()
		r.journalLocked(events.EventTypeDraftCompleted, events.DraftCompletedPayload{
			DraftID:     r.draftID,
			CompletedAt: r.clock.Now(),
			TotalPicks:  pick.OverallPick,
		})
	}
	r.broadcastLocked()

	log.Info().
		Str("draft_id", r.draftID.String()).
		Str("participant_id", pick.ParticipantID.String()).
		Str("player_id", pick.PlayerID.String()).
		Int("overall_pick", pick.OverallPick).
		Bool("auto", pick.Auto).
		Msg("pick committed")

	if !completed {
		if next, ok := r.eng.OnClock(); ok && next.IsBot() {
			nextTurn := r.eng.NextOverallPick()
			go r.autopick(ctx, next.ID, nextTurn)
		}
	}
	return nil
}

// autopick funnels a policy-driven attempt through commit. Stale outcomes
// are expected whenever a human beats the timer to the lock.
func (r *Room) autopick(ctx context.Context, seatID uuid.UUID, turn int) {
	err := r.commit(ctx, attempt{participantID: seatID, turn: turn, auto: true})
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrStaleTurn), errors.Is(err, engine.ErrInvalidState):
		log.Debug().
			Str("draft_id", r.draftID.String()).
			Int("turn", turn).
			Msg("autopick lost the race, dropping")
	case errors.Is(err, engine.ErrDraftStalled):
		// Already journaled and flagged inside commit.
	default:
		log.Error().Err(err).
			Str("draft_id", r.draftID.String()).
			Int("turn", turn).
			Msg("autopick failed")
	}
}

// runClock advances the turn timer once per second until cancelled.
func (r *Room) runClock(ctx context.Context) {
	ticker := r.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.tick(ctx)
		}
	}
}

func (r *Room) tick(ctx context.Context) {
	r.mu.Lock()
	_, expired, err := r.eng.Tick()
	if err != nil {
		r.mu.Unlock()
		return
	}
	var (
		seatID uuid.UUID
		turn   int
	)
	if expired {
		seat, _ := r.eng.OnClock()
		seatID = seat.ID
		turn = r.eng.NextOverallPick()
	}
	r.broadcastLocked()
	r.mu.Unlock()

	if expired {
		log.Info().
			Str("draft_id", r.draftID.String()).
			Str("participant_id", seatID.String()).
			Int("turn", turn).
			Msg("pick timer expired")
		go r.autopick(ctx, seatID, turn)
	}
}

func (r *Room) stallLocked(seat models.Participant) {
	r.degraded.Store(true)
	r.stopClockLocked()
	r.journalLocked(events.EventTypeDraftStalled, events.DraftStalledPayload{
		DraftID:       r.draftID,
		ParticipantID: seat.ID,
		StalledAt:     r.clock.Now(),
		Reason:        "no eligible player remains",
	})
	r.broadcastLocked()
	log.Error().
		Str("draft_id", r.draftID.String()).
		Str("participant_id", seat.ID.String()).
		Msg("draft stalled; operator intervention required")
}

func (r *Room) stopClockLocked() {
	if r.clockCancel != nil {
		r.clockCancel()
		r.clockCancel = nil
	}
}

func (r *Room) inPool(playerID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poolSet[playerID]
}

func (r *Room) snapshotLocked() events.Snapshot {
	snap := events.Snapshot{
		DraftID:       r.draftID,
		Status:        r.eng.Status(),
		Round:         r.eng.Round(),
		PickInRound:   r.eng.PickInRound(),
		OverallPick:   r.eng.NextOverallPick(),
		TimeRemaining: r.eng.TimeRemaining(),
		DraftOrder:    r.eng.Settings().DraftOrder,
		Picks:         r.eng.Picks(),
		Degraded:      r.degraded.Load(),
	}
	if seat, ok := r.eng.OnClock(); ok {
		snap.OnClock = &seat
	}
	return snap
}

func (r *Room) broadcastLocked() {
	r.broadcaster.BroadcastSnapshot(r.draftID, r.snapshotLocked())
}

func (r *Room) journalLocked(typ events.EventType, payload any) {
	ev, err := events.New(r.draftID, typ, r.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to build journal event")
		return
	}
	r.journal.Append(ev)
}

// advisePickInProgress emits the transient UI affordance event. Best-effort
// and non-authoritative.
func (r *Room) advisePickInProgress(participantID uuid.UUID) {
	ev, err := events.New(r.draftID, events.EventTypePickInProgress, r.clock.Now(),
		events.PickInProgressPayload{ParticipantID: participantID})
	if err != nil {
		return
	}
	r.broadcaster.BroadcastEvent(r.draftID, ev)
}
