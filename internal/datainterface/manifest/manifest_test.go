package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caida/bgpstream-go/internal/filter"
)

func writeManifest(t *testing.T, rows [][]string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()
	for _, row := range rows {
		line := ""
		for i, field := range row {
			if i > 0 {
				line += ","
			}
			line += field
		}
		fmt.Fprintln(f, line)
	}
	return path
}

func row(uri, project, typ, collector string, filetime, duration uint32, ts int64) []string {
	return []string{
		uri, project, typ, collector,
		fmt.Sprintf("%d", filetime), fmt.Sprintf("%d", duration), fmt.Sprintf("%d", ts),
	}
}

func TestProduceBatch_EmitsEligibleRows(t *testing.T) {
	past := time.Now().Unix() - 3600
	path := writeManifest(t, [][]string{
		row("rib1", "routeviews", "rib", "route-views2", 1000, 900, past),
	})
	b := New(path)

	batch, err := b.ProduceBatch(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("ProduceBatch: %v", err)
	}
	if len(batch) != 1 || batch[0].URI != "rib1" {
		t.Fatalf("batch = %+v, want one descriptor for rib1", batch)
	}
}

func TestProduceBatch_SkipsFutureRows(t *testing.T) {
	future := time.Now().Unix() + 3600
	path := writeManifest(t, [][]string{
		row("future", "routeviews", "rib", "route-views2", 1000, 900, future),
	})
	b := New(path)

	batch, err := b.ProduceBatch(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("ProduceBatch: %v", err)
	}
	if len(batch) != 0 {
		t.Errorf("expected future-stamped rows to be skipped, got %+v", batch)
	}
}

func TestProduceBatch_IdempotentAcrossCalls(t *testing.T) {
	past := time.Now().Unix() - 3600
	path := writeManifest(t, [][]string{
		row("rib1", "routeviews", "rib", "route-views2", 1000, 900, past),
	})
	b := New(path)

	first, _ := b.ProduceBatch(context.Background(), nil, false)
	if len(first) != 1 {
		t.Fatalf("expected first call to emit one row, got %+v", first)
	}

	second, err := b.ProduceBatch(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("ProduceBatch: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected second call to re-emit nothing, got %+v", second)
	}
}

func TestProduceBatch_NewRowAfterAdvance(t *testing.T) {
	past := time.Now().Unix() - 3600
	path := writeManifest(t, [][]string{
		row("rib1", "routeviews", "rib", "route-views2", 1000, 900, past),
	})
	b := New(path)
	b.ProduceBatch(context.Background(), nil, false)

	laterPast := past + 60
	os.WriteFile(path, []byte(fmt.Sprintf("rib1,routeviews,rib,route-views2,1000,900,%d\nrib2,routeviews,rib,route-views2,2000,900,%d\n", past, laterPast)), 0o644)

	batch, err := b.ProduceBatch(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("ProduceBatch: %v", err)
	}
	if len(batch) != 1 || batch[0].URI != "rib2" {
		t.Fatalf("expected only the new row rib2, got %+v", batch)
	}
}

func TestProduceBatch_FiltersApplied(t *testing.T) {
	past := time.Now().Unix() - 3600
	path := writeManifest(t, [][]string{
		row("rib1", "routeviews", "rib", "route-views2", 1000, 900, past),
		row("rib2", "ris", "rib", "rrc00", 1000, 900, past+1),
	})
	b := New(path)

	fs := filter.New()
	fs.Add(filter.KindProject, "routeviews")

	batch, err := b.ProduceBatch(context.Background(), fs, false)
	if err != nil {
		t.Fatalf("ProduceBatch: %v", err)
	}
	if len(batch) != 1 || batch[0].URI != "rib1" {
		t.Fatalf("expected only the routeviews row, got %+v", batch)
	}
}

func TestProduceBatch_MalformedRowFails(t *testing.T) {
	path := writeManifest(t, [][]string{
		{"rib1", "routeviews", "bogus-type", "route-views2", "1000", "900", "1"},
	})
	b := New(path)
	if _, err := b.ProduceBatch(context.Background(), nil, false); err == nil {
		t.Error("expected an error for an unknown record type field")
	}
}

func TestProduceBatch_OpenFailureSurfacesError(t *testing.T) {
	b := New("/no/such/manifest.csv")
	if _, err := b.ProduceBatch(context.Background(), nil, false); err == nil {
		t.Error("expected an error for a nonexistent manifest path")
	}
}
