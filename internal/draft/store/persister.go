package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/courtvision/draftroom/internal/models"
)

// PersisterConfig bounds the retry behavior of the pick mirror.
type PersisterConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	BufferSize int
}

func DefaultPersisterConfig() PersisterConfig {
	return PersisterConfig{
		MaxRetries: 3,
		RetryDelay: time.Second,
		BufferSize: 256,
	}
}

// Persister mirrors committed picks to the Store off the commit path. The
// in-memory draft is the source of truth; this worker is the durable mirror
// that may lag. Exhausted retries raise a degraded-mode alert through
// OnExhausted instead of rolling anything back.
type Persister struct {
	store  Store
	clock  clockwork.Clock
	config PersisterConfig

	// OnExhausted is invoked after the final failed attempt for a pick.
	// Optional; the failure is logged either way.
	OnExhausted func(draftID uuid.UUID, pick models.Pick, err error)

	workCh chan models.Pick

	mu        sync.Mutex
	cancelled map[uuid.UUID]bool // drafts whose pending work must be dropped

	wg sync.WaitGroup
}

func NewPersister(s Store, clock clockwork.Clock, cfg PersisterConfig) *Persister {
	return &Persister{
		store:     s,
		clock:     clock,
		config:    cfg,
		workCh:    make(chan models.Pick, cfg.BufferSize),
		cancelled: make(map[uuid.UUID]bool),
	}
}

// Start launches the worker loop. Returns after ctx is done and in-flight
// work has drained.
func (p *Persister) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Wait blocks until the worker loop has exited.
func (p *Persister) Wait() { p.wg.Wait() }

// Enqueue hands a committed pick to the mirror. Never blocks the commit
// path: if the buffer is full the pick is dropped with an alert, which is
// the same degraded condition as retry exhaustion. Callers hold their own
// locks here, so the alert fires on a separate goroutine.
func (p *Persister) Enqueue(pick models.Pick) {
	select {
	case p.workCh <- pick:
	default:
		log.Error().
			Str("draft_id", pick.DraftID.String()).
			Int("overall_pick", pick.OverallPick).
			Msg("persister buffer full, pick mirror degraded")
		if p.OnExhausted != nil {
			go p.OnExhausted(pick.DraftID, pick, context.DeadlineExceeded)
		}
	}
}

// CancelDraft drops all pending and future work for a draft until
// ResumeDraft is called. Reset uses this so a stale mirror write cannot
// land after the state is cleared.
func (p *Persister) CancelDraft(draftID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled[draftID] = true
}

// ResumeDraft re-enables mirroring for a draft after a reset completes.
func (p *Persister) ResumeDraft(draftID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cancelled, draftID)
}

func (p *Persister) isCancelled(draftID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled[draftID]
}

func (p *Persister) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case pick := <-p.workCh:
			if p.isCancelled(pick.DraftID) {
				log.Debug().
					Str("draft_id", pick.DraftID.String()).
					Int("overall_pick", pick.OverallPick).
					Msg("dropping mirror write for cancelled draft")
				continue
			}
			p.saveWithRetry(ctx, pick)
		}
	}
}

func (p *Persister) saveWithRetry(ctx context.Context, pick models.Pick) {
	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-p.clock.After(p.config.RetryDelay * time.Duration(attempt)):
			}
			if p.isCancelled(pick.DraftID) {
				return
			}
		}

		if err := p.store.SavePick(ctx, pick); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("draft_id", pick.DraftID.String()).
				Int("overall_pick", pick.OverallPick).
				Int("attempt", attempt+1).
				Msg("failed to mirror pick, retrying")
			continue
		}
		return
	}

	log.Error().
		Err(lastErr).
		Str("draft_id", pick.DraftID.String()).
		Int("overall_pick", pick.OverallPick).
		Int("attempts", p.config.MaxRetries+1).
		Msg("pick mirror exhausted retries; draft degraded")
	if p.OnExhausted != nil {
		p.OnExhausted(pick.DraftID, pick, lastErr)
	}
}
