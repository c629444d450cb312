package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/makerlab/cdp-engine/internal/fix"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. All fixed-point values are stored as NUMERIC for exact
// decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, seed, timesteps, policy, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Seed, run.Timesteps, run.Policy, run.Status, run.Error, run.CreatedAt,
	)
	return err
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus, msg string) error {
	if status != StatusFailed {
		msg = ""
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $2, error = $3 WHERE id = $1`,
		id, status, msg,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.pool.QueryRow(ctx,
		`SELECT id, seed, timesteps, policy, status, error, created_at
		 FROM runs WHERE id = $1`, id).
		Scan(&run.ID, &run.Seed, &run.Timesteps, &run.Policy, &run.Status, &run.Error, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, seed, timesteps, policy, status, error, created_at
		 FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Seed, &run.Timesteps, &run.Policy,
			&run.Status, &run.Error, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) InsertTimestep(ctx context.Context, rec *TimestepRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_timesteps
		     (run_id, timestep, debt, vice, litter, eth_price, dai_price,
		      open_auctions, num_bites, num_bids, num_deals, num_vaults_opened)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC,
		         $8, $9, $10, $11, $12)`,
		rec.RunID, rec.Timestep,
		rec.Debt.String(), rec.Vice.String(), rec.Litter.String(),
		rec.EthPrice.String(), rec.DaiPrice.String(),
		rec.OpenAuctions, rec.Bites, rec.Bids, rec.Deals, rec.VaultsOpened,
	)
	return err
}

func (s *PostgresStore) GetRunHistory(ctx context.Context, runID string) ([]TimestepRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, timestep,
		        debt::TEXT, vice::TEXT, litter::TEXT,
		        eth_price::TEXT, dai_price::TEXT,
		        open_auctions, num_bites, num_bids, num_deals, num_vaults_opened
		 FROM run_timesteps WHERE run_id = $1 ORDER BY timestep`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []TimestepRecord
	for rows.Next() {
		var rec TimestepRecord
		var debt, vice, litter, ethPrice, daiPrice string

		if err := rows.Scan(&rec.RunID, &rec.Timestep,
			&debt, &vice, &litter, &ethPrice, &daiPrice,
			&rec.OpenAuctions, &rec.Bites, &rec.Bids, &rec.Deals, &rec.VaultsOpened); err != nil {
			return nil, err
		}
		if rec.Debt, err = fix.RadFromString(debt); err != nil {
			return nil, fmt.Errorf("run %s timestep %d: %w", runID, rec.Timestep, err)
		}
		if rec.Vice, err = fix.RadFromString(vice); err != nil {
			return nil, fmt.Errorf("run %s timestep %d: %w", runID, rec.Timestep, err)
		}
		if rec.Litter, err = fix.RadFromString(litter); err != nil {
			return nil, fmt.Errorf("run %s timestep %d: %w", runID, rec.Timestep, err)
		}
		if rec.EthPrice, err = fix.WadFromString(ethPrice); err != nil {
			return nil, fmt.Errorf("run %s timestep %d: %w", runID, rec.Timestep, err)
		}
		if rec.DaiPrice, err = fix.WadFromString(daiPrice); err != nil {
			return nil, fmt.Errorf("run %s timestep %d: %w", runID, rec.Timestep, err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
