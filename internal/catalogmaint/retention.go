// Package catalogmaint prunes the catalog backend's dump_catalog table
// per the configured retention window, adapted from the teacher's
// internal/maintenance partition-pruning job (timezone-aware cutoff,
// single DELETE rather than per-day partition drops since dump_catalog
// isn't partitioned).
package catalogmaint

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/caida/bgpstream-go/internal/metrics"
)

type Retention struct {
	pool          *pgxpool.Pool
	retentionDays int
	timezone      string
	logger        *zap.Logger
}

func NewRetention(pool *pgxpool.Pool, retentionDays int, timezone string, logger *zap.Logger) *Retention {
	return &Retention{
		pool:          pool,
		retentionDays: retentionDays,
		timezone:      timezone,
		logger:        logger,
	}
}

// Run deletes dump_catalog rows older than the configured retention
// window, evaluated at local midnight in the configured timezone.
func (r *Retention) Run(ctx context.Context) error {
	loc, err := time.LoadLocation(r.timezone)
	if err != nil {
		return fmt.Errorf("loading timezone %s: %w", r.timezone, err)
	}

	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	cutoff := today.AddDate(0, 0, -r.retentionDays)

	tag, err := r.pool.Exec(ctx, "DELETE FROM dump_catalog WHERE created_at < $1", cutoff.UTC())
	if err != nil {
		return fmt.Errorf("pruning dump_catalog: %w", err)
	}

	n := tag.RowsAffected()
	metrics.CatalogRowsPurgedTotal.WithLabelValues("retention").Add(float64(n))
	r.logger.Info("catalog retention pass complete",
		zap.Int64("rows_deleted", n),
		zap.Time("cutoff", cutoff),
	)
	return nil
}
