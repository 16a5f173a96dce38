// internal/database/matches.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/nightstake/internal/models"
)

// SaveMatch upserts the snapshot of one match. Snapshots older than the stored version are
// ignored and terminal rows are never reopened.
func (s *Store) SaveMatch(ctx context.Context, rec models.MatchRecord) error {
	q := `
	INSERT INTO matches (
		id, join_code, creator, status, public,
		participants, day, eliminated,
		stake_amount, min_players, max_players, chain_match_id,
		settings, role_commit, role_salt,
		winners, win_reason, settlement_tx,
		created_at, started_at, ended_at, version, updated_at
	)
	VALUES ($1, $2, $3, $4, $5,
	        $6, $7, $8,
	        $9, $10, $11, $12,
	        $13, $14, $15,
	        $16, $17, $18,
	        $19, $20, $21, $22, NOW())
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		public = EXCLUDED.public,
		participants = EXCLUDED.participants,
		day = EXCLUDED.day,
		eliminated = EXCLUDED.eliminated,
		stake_amount = EXCLUDED.stake_amount,
		min_players = EXCLUDED.min_players,
		max_players = EXCLUDED.max_players,
		chain_match_id = EXCLUDED.chain_match_id,
		settings = EXCLUDED.settings,
		role_commit = EXCLUDED.role_commit,
		role_salt = EXCLUDED.role_salt,
		winners = EXCLUDED.winners,
		win_reason = EXCLUDED.win_reason,
		settlement_tx = EXCLUDED.settlement_tx,
		started_at = EXCLUDED.started_at,
		ended_at = EXCLUDED.ended_at,
		version = EXCLUDED.version,
		updated_at = NOW()
	WHERE matches.version < EXCLUDED.version
	  AND matches.status NOT IN ('cancelled', 'abandoned')
	  AND (matches.status <> 'ended' OR EXCLUDED.status = 'ended')
	`
	settings := rec.Settings
	if len(settings) == 0 {
		settings = []byte("{}")
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			rec.ID, rec.JoinCode, rec.Creator, rec.Status, rec.Public,
			nonNil(rec.Participants), rec.Day, nonNil(rec.Eliminated),
			int64(rec.StakeAmount), rec.MinPlayers, rec.MaxPlayers, rec.ChainMatchID,
			settings, rec.RoleCommit, rec.RoleSalt,
			nonNil(rec.Winners), rec.WinReason, rec.SettlementTx,
			rec.CreatedAt, rec.StartedAt, rec.EndedAt, rec.Version,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert match %s: %w", rec.ID, err)
	}
	return nil
}

// ListPublicLobbies returns public matches still in their lobby, newest first.
func (s *Store) ListPublicLobbies(ctx context.Context) ([]models.LobbySummary, error) {
	q := `
	SELECT id, join_code, creator, cardinality(participants),
	       min_players, max_players, stake_amount, created_at
	FROM matches
	WHERE status = 'lobby' AND public AND cardinality(participants) < max_players
	ORDER BY created_at DESC
	LIMIT 100
	`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query lobbies: %w", err)
	}
	defer rows.Close()

	lobbies := []models.LobbySummary{}
	for rows.Next() {
		var (
			l     models.LobbySummary
			stake int64
		)
		if err := rows.Scan(&l.ID, &l.JoinCode, &l.Creator, &l.Participants,
			&l.MinPlayers, &l.MaxPlayers, &stake, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lobby: %w", err)
		}
		l.StakeAmount = uint64(stake)
		lobbies = append(lobbies, l)
	}
	return lobbies, rows.Err()
}

// GetMatch loads one mirrored match, used for matches no longer held in memory.
func (s *Store) GetMatch(ctx context.Context, id uuid.UUID) (*models.MatchRecord, error) {
	q := `
	SELECT id, join_code, creator, status, public,
	       participants, day, eliminated,
	       stake_amount, min_players, max_players, chain_match_id,
	       settings, role_commit, role_salt,
	       winners, win_reason, settlement_tx,
	       created_at, started_at, ended_at, version
	FROM matches
	WHERE id = $1
	`
	var (
		rec   models.MatchRecord
		stake int64
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&rec.ID, &rec.JoinCode, &rec.Creator, &rec.Status, &rec.Public,
		&rec.Participants, &rec.Day, &rec.Eliminated,
		&stake, &rec.MinPlayers, &rec.MaxPlayers, &rec.ChainMatchID,
		&rec.Settings, &rec.RoleCommit, &rec.RoleSalt,
		&rec.Winners, &rec.WinReason, &rec.SettlementTx,
		&rec.CreatedAt, &rec.StartedAt, &rec.EndedAt, &rec.Version,
	)
	if err != nil {
		return nil, err
	}
	rec.StakeAmount = uint64(stake)
	return &rec, nil
}

// MarkAbandoned flags a match that stopped producing events while it was still running.
// It reports whether a row changed.
func (s *Store) MarkAbandoned(ctx context.Context, id uuid.UUID) (bool, error) {
	q := `
	UPDATE matches
	SET status = 'abandoned', ended_at = NOW(), updated_at = NOW()
	WHERE id = $1 AND status NOT IN ('lobby', 'ended', 'cancelled', 'abandoned')
	`
	var changed bool
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q, id)
		changed = tag.RowsAffected() > 0
		return err
	})
	return changed, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
