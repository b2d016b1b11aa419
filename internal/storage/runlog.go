package storage

import (
	"context"
	"time"

	"github.com/KevinKickass/StationCore/internal/sequence"
	"go.uber.org/zap"
)

const insertTimeout = 2 * time.Second

// RunLog is an audit trail of state transitions and operation runs. Inserts
// are fire-and-forget: a database hiccup is logged, never propagated, and
// nothing is ever read back to resume state after a restart.
type RunLog struct {
	client    *PostgresClient
	stationID string
	logger    *zap.Logger
}

func NewRunLog(client *PostgresClient, stationID string, logger *zap.Logger) *RunLog {
	return &RunLog{
		client:    client,
		stationID: stationID,
		logger:    logger,
	}
}

func (r *RunLog) RecordTransition(from, to sequence.SystemState, cause string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		defer cancel()

		_, err := r.client.pool.Exec(ctx,
			`INSERT INTO station_transitions (station_id, from_state, to_state, cause)
			 VALUES ($1, $2, $3, $4)`,
			r.stationID, string(from), string(to), cause)
		if err != nil {
			r.logger.Warn("Failed to record state transition", zap.Error(err))
		}
	}()
}

func (r *RunLog) RecordRun(runID string, opID, cycle int, outcome string, durationMS int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		defer cancel()

		_, err := r.client.pool.Exec(ctx,
			`INSERT INTO operation_runs (station_id, run_id, op_id, cycle, outcome, duration_ms)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			r.stationID, runID, opID, cycle, outcome, durationMS)
		if err != nil {
			r.logger.Warn("Failed to record operation run", zap.Error(err))
		}
	}()
}
