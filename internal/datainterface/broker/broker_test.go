package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/caida/bgpstream-go/internal/filter"
)

func TestProduceBatch_ParsesResourceArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"uri":"rib1","project":"routeviews","collector":"route-views2","type":"rib","filetime":1000,"duration":900,"ts":100}
		]}`)
	}))
	defer srv.Close()

	b := New(srv.URL, nil, nil)
	batch, err := b.ProduceBatch(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("ProduceBatch: %v", err)
	}
	if len(batch) != 1 || batch[0].URI != "rib1" {
		t.Fatalf("batch = %+v, want one descriptor for rib1", batch)
	}
}

func TestProduceBatch_CursorAdvancesAndSuppressesRepeats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"uri":"rib1","project":"routeviews","collector":"route-views2","type":"rib","filetime":1000,"duration":900,"ts":100}
		]}`)
	}))
	defer srv.Close()

	b := New(srv.URL, nil, nil)
	first, err := b.ProduceBatch(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("ProduceBatch: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected first call to emit, got %+v", first)
	}

	second, err := b.ProduceBatch(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("ProduceBatch: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected same-cursor resource to not re-emit, got %+v", second)
	}
}

func TestProduceBatch_SinceParamReflectsCursor(t *testing.T) {
	var gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	b := New(srv.URL, nil, nil)
	b.ProduceBatch(context.Background(), nil, false)
	if gotSince != "-1" {
		t.Errorf("first request since = %q, want -1", gotSince)
	}
}

func TestProduceBatch_RepeatableParamsForwarded(t *testing.T) {
	var gotValues url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotValues = r.URL.Query()
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	b := New(srv.URL, []string{"collector=rrc00", "project=ris"}, nil)
	b.ProduceBatch(context.Background(), nil, false)
	if gotValues.Get("collector") != "rrc00" || gotValues.Get("project") != "ris" {
		t.Errorf("forwarded params = %+v, want collector=rrc00&project=ris", gotValues)
	}
}

func TestProduceBatch_FiltersApplied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"uri":"rib1","project":"routeviews","collector":"route-views2","type":"rib","filetime":1000,"duration":900,"ts":100},
			{"uri":"rib2","project":"ris","collector":"rrc00","type":"rib","filetime":1000,"duration":900,"ts":200}
		]}`)
	}))
	defer srv.Close()

	fs := filter.New()
	fs.Add(filter.KindProject, "routeviews")

	b := New(srv.URL, nil, nil)
	batch, err := b.ProduceBatch(context.Background(), fs, false)
	if err != nil {
		t.Fatalf("ProduceBatch: %v", err)
	}
	if len(batch) != 1 || batch[0].URI != "rib1" {
		t.Fatalf("expected only the routeviews resource, got %+v", batch)
	}
}

func TestProduceBatch_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := New(srv.URL, nil, nil)
	if _, err := b.ProduceBatch(context.Background(), nil, false); err == nil {
		t.Error("expected an error for a non-200 broker response")
	}
}

func TestProduceBatch_MalformedResourceIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"uri":"rib1","type":"bogus","filetime":1000,"ts":100}]}`)
	}))
	defer srv.Close()

	b := New(srv.URL, nil, nil)
	if _, err := b.ProduceBatch(context.Background(), nil, false); err == nil {
		t.Error("expected an error for an unknown record type in the response")
	}
}
