package outbox

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/courtvision/draftroom/internal/draft/events"
)

// Journaler is what App needs from the repository.
type Journaler interface {
	InsertEvent(ctx context.Context, ev events.Event) error
}

// App accepts journal appends from the draft coordinator. Append is a pure
// channel hand-off because it is called inside the arbitration section; a
// single writer goroutine does the inserts.
type App struct {
	repo    Journaler
	writeCh chan events.Event

	wg sync.WaitGroup
}

// NewApp creates a journal writer with the given buffer size.
func NewApp(repo Journaler, buffer int) *App {
	if buffer <= 0 {
		buffer = 1024
	}
	return &App{
		repo:    repo,
		writeCh: make(chan events.Event, buffer),
	}
}

// Start launches the writer goroutine. It drains until ctx is done.
func (a *App) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-a.writeCh:
				if err := a.repo.InsertEvent(ctx, ev); err != nil {
					log.Error().
						Err(err).
						Str("event_id", ev.ID.String()).
						Str("event_type", string(ev.Type)).
						Str("draft_id", ev.DraftID.String()).
						Msg("failed to journal draft event")
				}
			}
		}
	}()
}

// Wait blocks until the writer goroutine has exited.
func (a *App) Wait() { a.wg.Wait() }

// Append queues an event for journaling. Never blocks; when the buffer is
// full the event is dropped with a warning, since the in-memory draft state
// is authoritative and the journal is a mirror.
func (a *App) Append(ev events.Event) {
	select {
	case a.writeCh <- ev:
	default:
		log.Warn().
			Str("event_id", ev.ID.String()).
			Str("event_type", string(ev.Type)).
			Str("draft_id", ev.DraftID.String()).
			Msg("journal buffer full, dropping event")
	}
}
