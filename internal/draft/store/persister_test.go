package store

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

	"github.com/courtvision/draftroom/internal/models"
)

// flakyStore fails SavePick a configured number of times before succeeding.
type flakyStore struct {
	mu        sync.Mutex
	failTimes int
	attempts  int
	saved     []models.Pick
}

func (f *flakyStore) SavePick(ctx context.Context, pick models.Pick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failTimes {
		return errors.New("connection reset")
	}
	f.saved = append(f.saved, pick)
	return nil
}

func (f *flakyStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func (f *flakyStore) LoadDraftConfig(ctx context.Context, leagueID uuid.UUID) (DraftConfig, error) {
	return DraftConfig{}, errors.New("not implemented")
}

func (f *flakyStore) ListPlayerPool(ctx context.Context, leagueID uuid.UUID) ([]models.Player, error) {
	return nil, nil
}

func (f *flakyStore) IsRosterSlotEligible(ctx context.Context, participantID, playerID uuid.UUID) (bool, error) {
	return true, nil
}

func (f *flakyStore) DeletePicks(ctx context.Context, draftID uuid.UUID) error { return nil }

func testPick(draftID uuid.UUID, overall int) models.Pick {
	return models.Pick{
		ID:            uuid.New(),
		DraftID:       draftID,
		Round:         1,
		Pick:          overall,
		OverallPick:   overall,
		ParticipantID: uuid.New(),
		PlayerID:      uuid.New(),
		Auto:          false,
	}
}

func TestPersisterMirrorsPick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := &flakyStore{}
	p := NewPersister(fs, clockwork.NewFakeClock(), DefaultPersisterConfig())
	p.Start(ctx)

	p.Enqueue(testPick(uuid.New(), 1))

	require.Eventually(t, func() bool { return fs.savedCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPersisterRetriesWithBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := &flakyStore{failTimes: 2}
	clock := clockwork.NewFakeClock()
	p := NewPersister(fs, clock, PersisterConfig{
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		BufferSize: 8,
	})
	p.Start(ctx)

	p.Enqueue(testPick(uuid.New(), 1))

	// Backoff is linear in the attempt number.
	clock.BlockUntil(1)
	clock.Advance(100 * time.Millisecond)
	clock.BlockUntil(1)
	clock.Advance(200 * time.Millisecond)

	require.Eventually(t, func() bool { return fs.savedCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPersisterExhaustionAlertsOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := &flakyStore{failTimes: 100}
	clock := clockwork.NewFakeClock()

	var mu sync.Mutex
	var alerts []uuid.UUID

	p := NewPersister(fs, clock, PersisterConfig{
		MaxRetries: 1,
		RetryDelay: 50 * time.Millisecond,
		BufferSize: 8,
	})
	p.OnExhausted = func(draftID uuid.UUID, pick models.Pick, err error) {
		mu.Lock()
		defer mu.Unlock()
		alerts = append(alerts, draftID)
	}
	p.Start(ctx)

	draftID := uuid.New()
	p.Enqueue(testPick(draftID, 1))

	clock.BlockUntil(1)
	clock.Advance(50 * time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(alerts) == 1 && alerts[0] == draftID
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, fs.savedCount())
}

func TestCancelDraftDropsPendingWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := &flakyStore{}
	p := NewPersister(fs, clockwork.NewFakeClock(), DefaultPersisterConfig())

	cancelled := uuid.New()
	kept := uuid.New()

	// Queue both before the worker starts so the cancelled draft's pick is
	// pending when the cancellation check runs.
	p.CancelDraft(cancelled)
	p.Enqueue(testPick(cancelled, 1))
	p.Enqueue(testPick(kept, 1))
	p.Start(ctx)

	require.Eventually(t, func() bool { return fs.savedCount() == 1 }, time.Second, 5*time.Millisecond)

	fs.mu.Lock()
	got := fs.saved[0].DraftID
	fs.mu.Unlock()
	require.Equal(t, kept, got)

	// After resume, new picks for the draft mirror again.
	p.ResumeDraft(cancelled)
	p.Enqueue(testPick(cancelled, 2))
	require.Eventually(t, func() bool { return fs.savedCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestEnqueueFullBufferRaisesAlert(t *testing.T) {
	fs := &flakyStore{}
	p := NewPersister(fs, clockwork.NewFakeClock(), PersisterConfig{
		MaxRetries: 0,
		RetryDelay: time.Millisecond,
		BufferSize: 1,
	})

	var mu sync.Mutex
	var alerted bool
	p.OnExhausted = func(draftID uuid.UUID, pick models.Pick, err error) {
		mu.Lock()
		defer mu.Unlock()
		alerted = true
	}

	// Worker never started, so the second enqueue finds the buffer full.
	p.Enqueue(testPick(uuid.New(), 1))
	p.Enqueue(testPick(uuid.New(), 2))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return alerted
	}, time.Second, 5*time.Millisecond)
}

// dedupeStore keeps one row per (draft_id, overall_pick), matching the
// conflict-skip insert of the postgres mirror. loseAcks makes SavePick store
// the row but report failure, so the worker replays an already-stored pick.
type dedupeStore struct {
	mu       sync.Mutex
	rows     map[string]models.Pick
	loseAcks int
	attempts int
}

func (d *dedupeStore) SavePick(ctx context.Context, pick models.Pick) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	key := fmt.Sprintf("%s/%d", pick.DraftID, pick.OverallPick)
	if _, ok := d.rows[key]; !ok {
		d.rows[key] = pick
	}
	if d.loseAcks > 0 {
		d.loseAcks--
		return errors.New("write timeout")
	}
	return nil
}

func (d *dedupeStore) LoadDraftConfig(ctx context.Context, leagueID uuid.UUID) (DraftConfig, error) {
	return DraftConfig{}, errors.New("not implemented")
}

func (d *dedupeStore) ListPlayerPool(ctx context.Context, leagueID uuid.UUID) ([]models.Player, error) {
	return nil, nil
}

func (d *dedupeStore) IsRosterSlotEligible(ctx context.Context, participantID, playerID uuid.UUID) (bool, error) {
	return true, nil
}

func (d *dedupeStore) DeletePicks(ctx context.Context, draftID uuid.UUID) error { return nil }

func TestReplayedPickMirrorsExactlyOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ds := &dedupeStore{rows: make(map[string]models.Pick), loseAcks: 1}
	clock := clockwork.NewFakeClock()
	p := NewPersister(ds, clock, PersisterConfig{
		MaxRetries: 2,
		RetryDelay: 50 * time.Millisecond,
		BufferSize: 8,
	})
	p.Start(ctx)

	p.Enqueue(testPick(uuid.New(), 1))

	// First write stores the row but loses the ack; the retry replays it.
	clock.BlockUntil(1)
	clock.Advance(50 * time.Millisecond)

	require.Eventually(t, func() bool {
		ds.mu.Lock()
		defer ds.mu.Unlock()
		return ds.attempts == 2
	}, time.Second, 5*time.Millisecond)

	ds.mu.Lock()
	defer ds.mu.Unlock()
	require.Len(t, ds.rows, 1)
}
