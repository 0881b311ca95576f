// Package catalog implements the catalog Data Interface backend (§4.2,
// §6): a parameterized query against an embedded SQL catalog. The spec
// leaves the concrete engine unspecified; this backend re-grounds it on
// the teacher's actual Postgres stack (pgx/v5 + pgxpool) rather than
// sqlite, since that is the dependency the corpus actually carries.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caida/bgpstream-go/internal/dump"
	"github.com/caida/bgpstream-go/internal/filter"
	"github.com/caida/bgpstream-go/internal/metrics"
)

// Backend queries the dump_catalog table for descriptors newer than the
// last returned row.
type Backend struct {
	pool    *pgxpool.Pool
	lastTS  time.Time
	hasLast bool
}

// New constructs a catalog backend over an existing pool (see
// internal/catalogdb for schema/migrations).
func New(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool}
}

const query = `
SELECT uri, project, collector, record_type, filetime, nominal_duration_seconds, created_at
FROM dump_catalog
WHERE created_at > $1 AND created_at <= $2
ORDER BY created_at ASC
`

// ProduceBatch runs the catalog query with parameters (last_ts, now()-1s)
// (§4.2) and maps each row to a descriptor.
func (b *Backend) ProduceBatch(ctx context.Context, filters *filter.Set, live bool) ([]dump.Descriptor, error) {
	upperBound := time.Now().Add(-1 * time.Second)
	lastTS := b.lastTS
	if !b.hasLast {
		lastTS = time.Unix(0, 0)
	}

	start := time.Now()
	rows, err := b.pool.Query(ctx, query, lastTS, upperBound)
	metrics.BackendPollDuration.WithLabelValues("catalog").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}
	defer rows.Close()

	var out []dump.Descriptor
	maxTS := lastTS
	for rows.Next() {
		var (
			uri, project, collector, recordType string
			filetime, duration                  uint32
			createdAt                            time.Time
		)
		if err := rows.Scan(&uri, &project, &collector, &recordType, &filetime, &duration, &createdAt); err != nil {
			return nil, fmt.Errorf("catalog: scan row: %w", err)
		}

		rt, err := dump.ParseRecordType(recordType)
		if err != nil {
			return nil, fmt.Errorf("catalog: row %s: %w", uri, err)
		}

		d := dump.Descriptor{
			URI:                uri,
			Project:            project,
			Collector:          collector,
			RecordType:         rt,
			Filetime:           filetime,
			NominalDurationSec: duration,
		}
		if filters == nil || filters.Matches(d) {
			out = append(out, d)
		} else {
			metrics.FilterRejectionsTotal.WithLabelValues("catalog").Inc()
		}
		if createdAt.After(maxTS) {
			maxTS = createdAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: rows: %w", err)
	}

	b.lastTS = maxTS
	b.hasLast = true
	return out, nil
}
