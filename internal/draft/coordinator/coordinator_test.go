package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/courtvision/draftroom/internal/draft/engine"
	"github.com/courtvision/draftroom/internal/draft/events"
	"github.com/courtvision/draftroom/internal/draft/store"
	"github.com/courtvision/draftroom/internal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	cfg      store.DraftConfig
	pool     []models.Player
	saved    []models.Pick
	deleted  []uuid.UUID
	saveErr  error
	eligible map[uuid.UUID]bool // nil means everything is eligible
}

func (f *fakeStore) LoadDraftConfig(ctx context.Context, leagueID uuid.UUID) (store.DraftConfig, error) {
	return f.cfg, nil
}

func (f *fakeStore) ListPlayerPool(ctx context.Context, leagueID uuid.UUID) ([]models.Player, error) {
	return f.pool, nil
}

func (f *fakeStore) IsRosterSlotEligible(ctx context.Context, participantID, playerID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eligible == nil {
		return true, nil
	}
	return f.eligible[playerID], nil
}

func (f *fakeStore) SavePick(ctx context.Context, pick models.Pick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, pick)
	return nil
}

func (f *fakeStore) DeletePicks(ctx context.Context, draftID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, draftID)
	return nil
}

func (f *fakeStore) savedPicks() []models.Pick {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Pick, len(f.saved))
	copy(out, f.saved)
	return out
}

type fakeBroadcaster struct {
	mu        sync.Mutex
	snapshots []events.Snapshot
	eventsLog []events.Event
}

func (f *fakeBroadcaster) BroadcastSnapshot(draftID uuid.UUID, snap events.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
}

func (f *fakeBroadcaster) BroadcastEvent(draftID uuid.UUID, ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventsLog = append(f.eventsLog, ev)
}

func (f *fakeBroadcaster) last() (events.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snapshots) == 0 {
		return events.Snapshot{}, false
	}
	return f.snapshots[len(f.snapshots)-1], true
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []events.Event
}

func (f *fakeJournal) Append(ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, ev)
}

func (f *fakeJournal) types() []events.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.EventType, len(f.entries))
	for i, ev := range f.entries {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	coord     *Coordinator
	store     *fakeStore
	broadcast *fakeBroadcaster
	journal   *fakeJournal
	clock     *clockwork.FakeClock
	cancel    context.CancelFunc
}

func seats(modes ...models.ControlMode) []models.Participant {
	order := make([]models.Participant, len(modes))
	for i, mode := range modes {
		order[i] = models.Participant{
			ID:          uuid.New(),
			DisplayName: fmt.Sprintf("Team %d", i+1),
			ControlMode: mode,
		}
	}
	return order
}

func pool(n int) []models.Player {
	out := make([]models.Player, n)
	for i := range out {
		out[i] = models.Player{ID: uuid.New(), FullName: fmt.Sprintf("Player %d", i+1), Rank: i + 1}
	}
	return out
}

func newFixture(t *testing.T, players []models.Player) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	fs := &fakeStore{pool: players}
	fb := &fakeBroadcaster{}
	fj := &fakeJournal{}
	clock := clockwork.NewFakeClock()

	persister := store.NewPersister(fs, clock, store.PersisterConfig{
		MaxRetries: 0,
		RetryDelay: time.Millisecond,
		BufferSize: 64,
	})
	persister.Start(ctx)

	coord := New(ctx, fs, persister, fb, fj, clock)
	return &fixture{coord: coord, store: fs, broadcast: fb, journal: fj, clock: clock, cancel: cancel}
}

func (fx *fixture) startDraft(t *testing.T, settings models.DraftSettings) *Room {
	t.Helper()
	room, err := fx.coord.ConfigureDraft(uuid.New(), settings, false)
	require.NoError(t, err)
	require.NoError(t, fx.coord.StartDraft(context.Background(), room.DraftID()))
	return room
}

func humanSettings(seatCount, rounds, timePerPick int) models.DraftSettings {
	modes := make([]models.ControlMode, seatCount)
	for i := range modes {
		modes[i] = models.ControlModeHuman
	}
	return models.DraftSettings{Rounds: rounds, TimePerPickSec: timePerPick, DraftOrder: seats(modes...)}
}

func TestConfigureDraftValidation(t *testing.T) {
	dup := uuid.New()
	cases := []struct {
		name     string
		settings models.DraftSettings
	}{
		{name: "empty order", settings: models.DraftSettings{Rounds: 2, TimePerPickSec: 30}},
		{name: "zero rounds", settings: models.DraftSettings{TimePerPickSec: 30, DraftOrder: seats(models.ControlModeHuman)}},
		{name: "zero timer", settings: models.DraftSettings{Rounds: 2, DraftOrder: seats(models.ControlModeHuman)}},
		{name: "duplicate seat", settings: models.DraftSettings{Rounds: 2, TimePerPickSec: 30, DraftOrder: []models.Participant{
			{ID: dup, ControlMode: models.ControlModeHuman},
			{ID: dup, ControlMode: models.ControlModeHuman},
		}}},
		{name: "nil participant", settings: models.DraftSettings{Rounds: 2, TimePerPickSec: 30, DraftOrder: []models.Participant{
			{ControlMode: models.ControlModeHuman},
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t, pool(4))
			_, err := fx.coord.ConfigureDraft(uuid.New(), tc.settings, false)
			require.ErrorIs(t, err, engine.ErrBadSettings)
		})
	}
}

func TestShuffleKeepsSameSeats(t *testing.T) {
	fx := newFixture(t, pool(4))
	settings := humanSettings(8, 1, 30)

	room, err := fx.coord.ConfigureDraft(uuid.New(), settings, true)
	require.NoError(t, err)

	snap := room.Snapshot()
	require.Len(t, snap.DraftOrder, 8)
	want := make(map[uuid.UUID]bool)
	for _, p := range settings.DraftOrder {
		want[p.ID] = true
	}
	for _, p := range snap.DraftOrder {
		require.True(t, want[p.ID])
	}
}

func TestStartDraftBroadcastsOpeningSnapshot(t *testing.T) {
	fx := newFixture(t, pool(6))
	settings := humanSettings(3, 2, 45)
	room := fx.startDraft(t, settings)

	snap, ok := fx.broadcast.last()
	require.True(t, ok)
	require.Equal(t, room.DraftID(), snap.DraftID)
	require.Equal(t, models.DraftStatusInProgress, snap.Status)
	require.Equal(t, 1, snap.Round)
	require.Equal(t, 1, snap.PickInRound)
	require.Equal(t, 45, snap.TimeRemaining)
	require.NotNil(t, snap.OnClock)
	require.Equal(t, settings.DraftOrder[0].ID, snap.OnClock.ID)

	require.Contains(t, fx.journal.types(), events.EventTypeDraftStarted)
}

func TestStartUnknownDraft(t *testing.T) {
	fx := newFixture(t, pool(4))
	err := fx.coord.StartDraft(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrUnknownDraft)
}

func TestSubmitPickCommitsAndMirrors(t *testing.T) {
	players := pool(6)
	fx := newFixture(t, players)
	settings := humanSettings(3, 2, 30)
	room := fx.startDraft(t, settings)

	err := room.SubmitPick(context.Background(), settings.DraftOrder[0].ID, players[2].ID)
	require.NoError(t, err)

	snap, _ := fx.broadcast.last()
	require.Equal(t, 2, snap.OverallPick)
	require.Len(t, snap.Picks, 1)
	require.Equal(t, players[2].ID, snap.Picks[0].PlayerID)
	require.False(t, snap.Picks[0].Auto)
	require.Equal(t, settings.DraftOrder[1].ID, snap.OnClock.ID)
	require.Equal(t, 30, snap.TimeRemaining)

	require.Contains(t, fx.journal.types(), events.EventTypePickMade)

	// The durable mirror catches up off the commit path.
	require.Eventually(t, func() bool {
		saved := fx.store.savedPicks()
		return len(saved) == 1 && saved[0].PlayerID == players[2].ID
	}, time.Second, 5*time.Millisecond)
}

func TestSubmitPickRejections(t *testing.T) {
	players := pool(6)
	ineligible := players[5].ID

	cases := []struct {
		name    string
		seat    int
		player  func() uuid.UUID
		setup   func(fx *fixture)
		wantErr error
	}{
		{name: "off clock", seat: 1, player: func() uuid.UUID { return players[0].ID }, wantErr: engine.ErrNotOnClock},
		{name: "unknown player", seat: 0, player: uuid.New, wantErr: engine.ErrPlayerUnavailable},
		{
			name:   "roster slot ineligible",
			seat:   0,
			player: func() uuid.UUID { return ineligible },
			setup: func(fx *fixture) {
				fx.store.eligible = map[uuid.UUID]bool{}
				for _, p := range players[:5] {
					fx.store.eligible[p.ID] = true
				}
			},
			wantErr: engine.ErrPlayerUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t, players)
			settings := humanSettings(3, 2, 30)
			room := fx.startDraft(t, settings)
			if tc.setup != nil {
				tc.setup(fx)
			}
			err := room.SubmitPick(context.Background(), settings.DraftOrder[tc.seat].ID, tc.player())
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestSubmitBeforeStartRejected(t *testing.T) {
	fx := newFixture(t, pool(4))
	settings := humanSettings(2, 1, 30)
	room, err := fx.coord.ConfigureDraft(uuid.New(), settings, false)
	require.NoError(t, err)

	err = room.SubmitPick(context.Background(), settings.DraftOrder[0].ID, uuid.New())
	require.ErrorIs(t, err, engine.ErrPlayerUnavailable)
}

func TestDuplicatePlayerAcrossTurns(t *testing.T) {
	players := pool(6)
	fx := newFixture(t, players)
	settings := humanSettings(3, 2, 30)
	room := fx.startDraft(t, settings)

	require.NoError(t, room.SubmitPick(context.Background(), settings.DraftOrder[0].ID, players[0].ID))
	err := room.SubmitPick(context.Background(), settings.DraftOrder[1].ID, players[0].ID)
	require.ErrorIs(t, err, engine.ErrPlayerUnavailable)
}

func TestTimerExpiryAutopicksFromQueue(t *testing.T) {
	players := pool(6)
	fx := newFixture(t, players)
	settings := humanSettings(2, 1, 2)
	room := fx.startDraft(t, settings)

	queued := players[4].ID
	room.QueueAdd(settings.DraftOrder[0].ID, queued)

	// One waiter: the room clock ticker. Two seconds expire the turn; wait
	// for the first tick's broadcast before advancing again so the ticker
	// can't drop a beat.
	fx.clock.BlockUntil(1)
	fx.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		snap, ok := fx.broadcast.last()
		return ok && snap.TimeRemaining == 1
	}, time.Second, 5*time.Millisecond)
	fx.clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		snap, ok := fx.broadcast.last()
		return ok && len(snap.Picks) == 1
	}, time.Second, 5*time.Millisecond)

	snap, _ := fx.broadcast.last()
	require.Equal(t, queued, snap.Picks[0].PlayerID)
	require.True(t, snap.Picks[0].Auto)
	require.Equal(t, settings.DraftOrder[0].ID, snap.Picks[0].ParticipantID)
	// The queued player is pruned from every queue once drafted.
	require.Empty(t, room.Queue(settings.DraftOrder[0].ID))
}

func TestRequestAutopickUsesBestAvailable(t *testing.T) {
	players := pool(6)
	fx := newFixture(t, players)
	settings := humanSettings(2, 1, 60)
	room := fx.startDraft(t, settings)

	require.NoError(t, room.RequestAutopick(context.Background(), settings.DraftOrder[0].ID))

	snap, _ := fx.broadcast.last()
	require.Len(t, snap.Picks, 1)
	require.Equal(t, players[0].ID, snap.Picks[0].PlayerID)
	require.True(t, snap.Picks[0].Auto)
}

func TestAutopickNeverCommitsQueuedOutsiders(t *testing.T) {
	players := pool(6)
	fx := newFixture(t, players)
	settings := humanSettings(2, 1, 60)
	room := fx.startDraft(t, settings)

	// A client can queue any UUID it likes; only league-pool players may
	// ever reach the pick history.
	onClock := settings.DraftOrder[0].ID
	ghost := uuid.New()
	room.QueueAdd(onClock, ghost)

	require.NoError(t, room.RequestAutopick(context.Background(), onClock))

	snap, _ := fx.broadcast.last()
	require.Len(t, snap.Picks, 1)
	require.Equal(t, players[0].ID, snap.Picks[0].PlayerID)
	require.NotEqual(t, ghost, snap.Picks[0].PlayerID)
}

func TestRequestAutopickOffClockRejected(t *testing.T) {
	players := pool(6)
	fx := newFixture(t, players)
	settings := humanSettings(2, 1, 60)
	room := fx.startDraft(t, settings)

	err := room.RequestAutopick(context.Background(), settings.DraftOrder[1].ID)
	require.ErrorIs(t, err, engine.ErrNotOnClock)
}

func TestBotSeatsChainToCompletion(t *testing.T) {
	players := pool(8)
	fx := newFixture(t, players)
	settings := models.DraftSettings{
		Rounds:         2,
		TimePerPickSec: 30,
		DraftOrder:     seats(models.ControlModeBot, models.ControlModeBot),
	}
	fx.startDraft(t, settings)

	require.Eventually(t, func() bool {
		snap, ok := fx.broadcast.last()
		return ok && snap.Status == models.DraftStatusCompleted
	}, time.Second, 5*time.Millisecond)

	snap, _ := fx.broadcast.last()
	require.Len(t, snap.Picks, 4)
	for i, pick := range snap.Picks {
		require.True(t, pick.Auto)
		// Best available by rank, so picks come off the board in order.
		require.Equal(t, players[i].ID, pick.PlayerID)
	}
	require.Contains(t, fx.journal.types(), events.EventTypeDraftCompleted)
}

func TestHumanBeatsTimerToTheLock(t *testing.T) {
	players := pool(6)
	fx := newFixture(t, players)
	settings := humanSettings(2, 1, 1)
	room := fx.startDraft(t, settings)

	// Expire the timer and race a human submission for the same turn. One
	// pick lands for turn 1; the loser is dropped or told it was stale.
	fx.clock.BlockUntil(1)
	fx.clock.Advance(time.Second)
	_ = room.SubmitPick(context.Background(), settings.DraftOrder[0].ID, players[3].ID)

	require.Eventually(t, func() bool {
		snap, ok := fx.broadcast.last()
		return ok && len(snap.Picks) >= 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		snap, _ := fx.broadcast.last()
		if len(snap.Picks) < 1 {
			return false
		}
		first := snap.Picks[0]
		return first.OverallPick == 1 && first.ParticipantID == settings.DraftOrder[0].ID
	}, time.Second, 5*time.Millisecond)

	snap, _ := fx.broadcast.last()
	seen := make(map[int]int)
	for _, p := range snap.Picks {
		seen[p.OverallPick]++
	}
	require.LessOrEqual(t, seen[1], 1)
}

func TestAutopickExhaustionStallsDraft(t *testing.T) {
	players := pool(2)
	fx := newFixture(t, players)
	settings := humanSettings(2, 2, 60)
	room := fx.startDraft(t, settings)

	require.NoError(t, room.SubmitPick(context.Background(), settings.DraftOrder[0].ID, players[0].ID))
	require.NoError(t, room.SubmitPick(context.Background(), settings.DraftOrder[1].ID, players[1].ID))

	// Round two: the board is empty, so an autopick request stalls the draft.
	err := room.RequestAutopick(context.Background(), settings.DraftOrder[1].ID)
	require.ErrorIs(t, err, engine.ErrDraftStalled)

	snap, _ := fx.broadcast.last()
	require.True(t, snap.Degraded)
	require.Equal(t, models.DraftStatusInProgress, snap.Status)
	require.Contains(t, fx.journal.types(), events.EventTypeDraftStalled)
}

func TestResetClearsStateAndMirror(t *testing.T) {
	players := pool(6)
	fx := newFixture(t, players)
	settings := humanSettings(3, 2, 30)
	room := fx.startDraft(t, settings)

	require.NoError(t, room.SubmitPick(context.Background(), settings.DraftOrder[0].ID, players[0].ID))
	room.QueueAdd(settings.DraftOrder[1].ID, players[3].ID)

	require.NoError(t, fx.coord.ResetDraft(context.Background(), room.DraftID()))

	snap, _ := fx.broadcast.last()
	require.Equal(t, models.DraftStatusNotStarted, snap.Status)
	require.Empty(t, snap.Picks)
	require.Nil(t, snap.OnClock)
	require.Empty(t, room.Queue(settings.DraftOrder[1].ID))

	fx.store.mu.Lock()
	deleted := append([]uuid.UUID(nil), fx.store.deleted...)
	fx.store.mu.Unlock()
	require.Contains(t, deleted, room.DraftID())
	require.Contains(t, fx.journal.types(), events.EventTypeDraftReset)

	// The room restarts cleanly after a reset.
	require.NoError(t, fx.coord.StartDraft(context.Background(), room.DraftID()))
	snap, _ = fx.broadcast.last()
	require.Equal(t, models.DraftStatusInProgress, snap.Status)
}

func TestResetBeforeStartRejected(t *testing.T) {
	fx := newFixture(t, pool(4))
	settings := humanSettings(2, 1, 30)
	room, err := fx.coord.ConfigureDraft(uuid.New(), settings, false)
	require.NoError(t, err)

	require.ErrorIs(t, fx.coord.ResetDraft(context.Background(), room.DraftID()), engine.ErrInvalidState)
}

func TestMirrorExhaustionMarksDraftDegraded(t *testing.T) {
	players := pool(6)
	fx := newFixture(t, players)
	fx.store.saveErr = errors.New("connection refused")

	settings := humanSettings(3, 2, 30)
	room := fx.startDraft(t, settings)

	require.NoError(t, room.SubmitPick(context.Background(), settings.DraftOrder[0].ID, players[0].ID))

	require.Eventually(t, func() bool {
		return room.Degraded()
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		snap, ok := fx.broadcast.last()
		return ok && snap.Degraded
	}, time.Second, 5*time.Millisecond)

	// Degraded is advisory: the draft keeps accepting picks.
	require.NoError(t, room.SubmitPick(context.Background(), settings.DraftOrder[1].ID, players[1].ID))
}

func TestFullMirrorBufferDegradesWithoutBlockingCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	players := pool(4)
	fs := &fakeStore{pool: players}
	clock := clockwork.NewFakeClock()

	// The worker is never started, so the first mirrored pick fills the
	// buffer and the second finds it full while commit holds the room lock.
	persister := store.NewPersister(fs, clock, store.PersisterConfig{
		MaxRetries: 0,
		RetryDelay: time.Millisecond,
		BufferSize: 1,
	})

	coord := New(ctx, fs, persister, &fakeBroadcaster{}, &fakeJournal{}, clock)
	settings := humanSettings(2, 1, 30)
	room, err := coord.ConfigureDraft(uuid.New(), settings, false)
	require.NoError(t, err)
	require.NoError(t, coord.StartDraft(context.Background(), room.DraftID()))

	require.NoError(t, room.SubmitPick(context.Background(), settings.DraftOrder[0].ID, players[0].ID))

	done := make(chan error, 1)
	go func() {
		done <- room.SubmitPick(context.Background(), settings.DraftOrder[1].ID, players[1].ID)
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pick submission blocked on the full mirror buffer")
	}

	require.Eventually(t, func() bool { return room.Degraded() }, time.Second, 5*time.Millisecond)
	require.Len(t, room.Snapshot().Picks, 2)
}
