// Package manifest implements the manifest Data Interface backend (§4.2,
// §6): a CSV file of seven-field rows, each a candidate dump descriptor
// plus an emission timestamp. encoding/csv is the idiomatic choice here —
// neither the teacher nor the wider example pack carries a third-party CSV
// library to reach for instead.
package manifest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/caida/bgpstream-go/internal/dump"
	"github.com/caida/bgpstream-go/internal/filter"
	"github.com/caida/bgpstream-go/internal/metrics"
)

// Backend reads rows from a CSV manifest: uri,project,type,collector,
// filetime,duration,ts (§6 exact field order).
type Backend struct {
	Path string

	lastSeenTS int64
}

// New constructs a manifest backend reading rows from path.
func New(path string) *Backend {
	return &Backend{Path: path, lastSeenTS: -1}
}

// ProduceBatch re-reads the manifest and emits every row whose ts falls in
// (last_seen_ts, now-1s] and that passes filters. Idempotent: lastSeenTS
// only ever advances, so a row is never emitted twice (§4.2).
func (b *Backend) ProduceBatch(ctx context.Context, filters *filter.Set, live bool) ([]dump.Descriptor, error) {
	f, err := os.Open(b.Path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", b.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 7

	nowMinus1 := time.Now().Unix() - 1
	var out []dump.Descriptor
	maxTS := b.lastSeenTS

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("manifest: parse %s: %w", b.Path, err)
		}

		d, ts, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("manifest: row in %s: %w", b.Path, err)
		}

		if ts <= b.lastSeenTS || ts > nowMinus1 {
			continue
		}
		if filters != nil && !filters.Matches(d) {
			metrics.FilterRejectionsTotal.WithLabelValues("manifest").Inc()
			continue
		}

		out = append(out, d)
		if ts > maxTS {
			maxTS = ts
		}
	}

	b.lastSeenTS = maxTS
	return out, nil
}

func parseRow(row []string) (dump.Descriptor, int64, error) {
	uri, project, typeStr, collector, filetimeStr, durationStr, tsStr := row[0], row[1], row[2], row[3], row[4], row[5], row[6]

	rt, err := dump.ParseRecordType(typeStr)
	if err != nil {
		return dump.Descriptor{}, 0, err
	}
	filetime, err := strconv.ParseUint(filetimeStr, 10, 32)
	if err != nil {
		return dump.Descriptor{}, 0, fmt.Errorf("bad filetime %q: %w", filetimeStr, err)
	}
	duration, err := strconv.ParseUint(durationStr, 10, 32)
	if err != nil {
		return dump.Descriptor{}, 0, fmt.Errorf("bad duration %q: %w", durationStr, err)
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return dump.Descriptor{}, 0, fmt.Errorf("bad ts %q: %w", tsStr, err)
	}

	return dump.Descriptor{
		URI:                uri,
		Project:            project,
		Collector:          collector,
		RecordType:         rt,
		Filetime:           uint32(filetime),
		NominalDurationSec: uint32(duration),
	}, ts, nil
}
