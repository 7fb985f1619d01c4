package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courtvision/draftroom/internal/models"
)

// Postgres implements Store on a pgx pool. The schema mirrors what the
// coordinator needs: a drafts table holding settings as JSONB, a league
// player pool, roster slots, and the draft_picks mirror.
type Postgres struct {
	pool *pgxpool.Pool
	// rosterSlots is the per-participant roster capacity from league config.
	rosterSlots int
}

func NewPostgres(pool *pgxpool.Pool, rosterSlots int) *Postgres {
	return &Postgres{pool: pool, rosterSlots: rosterSlots}
}

const loadDraftConfigQuery = `
SELECT id, league_id, settings
FROM drafts
WHERE league_id = $1
ORDER BY created_at DESC
LIMIT 1`

func (p *Postgres) LoadDraftConfig(ctx context.Context, leagueID uuid.UUID) (DraftConfig, error) {
	var (
		cfg           DraftConfig
		settingsBytes []byte
	)
	err := p.pool.QueryRow(ctx, loadDraftConfigQuery, leagueID).Scan(&cfg.DraftID, &cfg.LeagueID, &settingsBytes)
	if err != nil {
		return DraftConfig{}, fmt.Errorf("failed to load draft config: %w", err)
	}
	if err := json.Unmarshal(settingsBytes, &cfg.Settings); err != nil {
		return DraftConfig{}, fmt.Errorf("failed to unmarshal draft settings: %w", err)
	}
	return cfg, nil
}

const listPlayerPoolQuery = `
SELECT p.id, p.full_name, p.team, p.positions, p.rank
FROM league_players lp
JOIN players p ON p.id = lp.player_id
WHERE lp.league_id = $1
ORDER BY p.rank ASC, p.id ASC`

func (p *Postgres) ListPlayerPool(ctx context.Context, leagueID uuid.UUID) ([]models.Player, error) {
	rows, err := p.pool.Query(ctx, listPlayerPoolQuery, leagueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list player pool: %w", err)
	}
	defer rows.Close()

	var pool []models.Player
	for rows.Next() {
		var pl models.Player
		if err := rows.Scan(&pl.ID, &pl.FullName, &pl.Team, &pl.Positions, &pl.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		pool = append(pool, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate player pool: %w", err)
	}
	return pool, nil
}

const countRosterQuery = `
SELECT COUNT(*)
FROM draft_picks
WHERE participant_id = $1`

func (p *Postgres) IsRosterSlotEligible(ctx context.Context, participantID, playerID uuid.UUID) (bool, error) {
	var count int
	if err := p.pool.QueryRow(ctx, countRosterQuery, participantID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count roster: %w", err)
	}
	return count < p.rosterSlots, nil
}

const savePickQuery = `
INSERT INTO draft_picks (id, draft_id, round, pick, overall_pick, participant_id, player_id, picked_at, auto)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (draft_id, overall_pick) DO NOTHING`

// SavePick is idempotent: a replayed save of an already-mirrored pick hits
// the conflict clause and succeeds without a duplicate row.
func (p *Postgres) SavePick(ctx context.Context, pick models.Pick) error {
	_, err := p.pool.Exec(ctx, savePickQuery,
		pick.ID, pick.DraftID, pick.Round, pick.Pick, pick.OverallPick,
		pick.ParticipantID, pick.PlayerID, pick.PickedAt, pick.Auto)
	if err != nil {
		return fmt.Errorf("failed to save pick: %w", err)
	}
	return nil
}

const deletePicksQuery = `DELETE FROM draft_picks WHERE draft_id = $1`

func (p *Postgres) DeletePicks(ctx context.Context, draftID uuid.UUID) error {
	if _, err := p.pool.Exec(ctx, deletePicksQuery, draftID); err != nil {
		return fmt.Errorf("failed to delete picks: %w", err)
	}
	return nil
}

var _ Store = (*Postgres)(nil)

// ErrNoDraft is what LoadDraftConfig callers should test for when a league
// has never been configured.
var ErrNoDraft = pgx.ErrNoRows
