package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// EventPublisher delivers a journaled event to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, rec Record) error
}

// Config holds relay worker tuning.
type Config struct {
	PollInterval time.Duration
	BatchSize    int32
	MaxRetries   int
	RetryDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// RelaySource is what the worker needs from the journal repository.
type RelaySource interface {
	RelayBatch(ctx context.Context, limit int32, send func(Record) error) (total, relayed int, err error)
}

// Worker polls the journal for unsent rows and relays them to the broker.
type Worker struct {
	source    RelaySource
	publisher EventPublisher
	config    Config
	clock     clockwork.Clock

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(source RelaySource, publisher EventPublisher, cfg Config, clock clockwork.Clock) *Worker {
	return &Worker{
		source:    source,
		publisher: publisher,
		config:    cfg,
		clock:     clock,
		stopChan:  make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int32("batch_size", w.config.BatchSize).
		Msg("outbox worker started")
	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("outbox worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start.
	w.processOutbox(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.Chan():
			w.processOutbox(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	total, relayed, err := w.source.RelayBatch(ctx, w.config.BatchSize, func(rec Record) error {
		if err := w.publishWithRetry(ctx, rec); err != nil {
			log.Error().
				Err(err).
				Str("event_id", rec.ID.String()).
				Str("event_type", rec.EventType).
				Msg("failed to relay outbox event")
			return err
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("outbox relay batch failed")
		return
	}
	if total == 0 {
		return
	}

	log.Info().
		Int("total", total).
		Int("relayed", relayed).
		Msg("processed outbox events")
}

func (w *Worker) publishWithRetry(ctx context.Context, rec Record) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}
		if err := w.publisher.Publish(ctx, rec); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("event_id", rec.ID.String()).
				Int("attempt", attempt+1).
				Msg("failed to publish outbox event, retrying")
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
