package main

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/courtvision/draftroom/internal/draft/coordinator"
	"github.com/courtvision/draftroom/internal/draft/gateway"
	"github.com/courtvision/draftroom/internal/draft/outbox"
	"github.com/courtvision/draftroom/internal/draft/publish"
	"github.com/courtvision/draftroom/internal/draft/store"
)

// Services wires the full draft room stack.
type Services struct {
	Coordinator *coordinator.Coordinator
	Connections *gateway.ConnectionManager
	WebSocket   *gateway.WebSocketHandler
	Admin       *gateway.AdminHandler
	Journal     *outbox.App
	Relay       *outbox.Worker
}

// setupServices builds every component and starts the background loops:
// the broadcast fan-out, the pick mirror writer, the journal writer and the
// outbox relay. Goroutine lifetimes hang off ctx.
func setupServices(ctx context.Context, pool *pgxpool.Pool, db *sql.DB, cfg *Config) *Services {
	clock := clockwork.NewRealClock()

	draftStore := store.NewPostgres(pool, getEnvAsInt("ROSTER_SLOTS", 15))

	persister := store.NewPersister(draftStore, clock, store.DefaultPersisterConfig())
	persister.Start(ctx)

	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	go connections.Start(ctx)

	journalRepo := outbox.NewRepository(db)
	journal := outbox.NewApp(journalRepo, 1024)
	journal.Start(ctx)

	coord := coordinator.New(ctx, draftStore, persister, connections, journal, clock)

	dispatcher := gateway.NewCommandDispatcher(coord, connections)
	wsHandler := gateway.NewWebSocketHandler(connections, dispatcher)
	adminHandler := gateway.NewAdminHandler(coord)

	var publisher outbox.EventPublisher = publish.LogPublisher{}
	if cfg.Publish.Enabled {
		jsCfg := publish.DefaultJetStreamConfig()
		jsCfg.URL = getEnv("NATS_URL", jsCfg.URL)
		jsCfg.StreamName = cfg.Publish.StreamName
		jsCfg.SubjectPrefix = cfg.Publish.SubjectPrefix
		js, err := publish.NewJetStreamPublisher(jsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create JetStream publisher")
		}
		publisher = js
	}

	relayCfg := outbox.Config{
		PollInterval: cfg.outboxPollInterval(),
		BatchSize:    cfg.Outbox.BatchSize,
		MaxRetries:   cfg.Outbox.MaxRetries,
		RetryDelay:   cfg.outboxRetryDelay(),
	}
	relay := outbox.NewWorker(journalRepo, publisher, relayCfg, clock)
	if err := relay.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start outbox relay")
	}

	return &Services{
		Coordinator: coord,
		Connections: connections,
		WebSocket:   wsHandler,
		Admin:       adminHandler,
		Journal:     journal,
		Relay:       relay,
	}
}
