// Package broker implements the broker Data Interface backend (§4.2, §6):
// an HTTP GET against a configurable URL with repeatable key=value params,
// returning a JSON resource list. Response fields are pulled with
// buger/jsonparser rather than encoding/json + a struct, matching
// bgpfix's use of the same library for hot-path JSON field extraction.
package broker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/buger/jsonparser"

	"github.com/caida/bgpstream-go/internal/dump"
	"github.com/caida/bgpstream-go/internal/filter"
	"github.com/caida/bgpstream-go/internal/metrics"
)

// Backend queries a remote broker endpoint.
type Backend struct {
	URL    string
	Params []string // repeatable "key=value" params, set_data_interface_option-style (§6)
	Client *http.Client

	lastTS int64
}

// New constructs a broker backend against url with the given repeated
// params.
func New(endpoint string, params []string, client *http.Client) *Backend {
	if client == nil {
		client = http.DefaultClient
	}
	return &Backend{URL: endpoint, Params: params, Client: client, lastTS: -1}
}

// ProduceBatch issues one GET with the configured params plus the current
// last-seen-ts cursor, and parses the JSON array of resource objects under
// the response's top-level "data" key (a missing key yields an empty batch):
// {"uri":...,"project":...,"collector":...,"type":...,"filetime":...,
// "duration":...,"ts":...}.
func (b *Backend) ProduceBatch(ctx context.Context, filters *filter.Set, live bool) ([]dump.Descriptor, error) {
	reqURL, err := b.buildURL()
	if err != nil {
		return nil, fmt.Errorf("broker: build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("broker: build request: %w", err)
	}

	start := time.Now()
	resp, err := b.Client.Do(req)
	metrics.BackendPollDuration.WithLabelValues("broker").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("broker: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("broker: status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("broker: read body: %w", err)
	}

	var out []dump.Descriptor
	var parseErr error
	maxTS := b.lastTS

	_, err = jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if parseErr != nil {
			return
		}
		d, ts, perr := parseResource(value)
		if perr != nil {
			parseErr = perr
			return
		}
		if ts > maxTS {
			if filters == nil || filters.Matches(d) {
				out = append(out, d)
			} else {
				metrics.FilterRejectionsTotal.WithLabelValues("broker").Inc()
			}
			maxTS = ts
		}
	}, "data")
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return nil, fmt.Errorf("broker: parse response: %w", err)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("broker: parse resource: %w", parseErr)
	}

	b.lastTS = maxTS
	return out, nil
}

func parseResource(value []byte) (dump.Descriptor, int64, error) {
	uri, err := jsonparser.GetString(value, "uri")
	if err != nil {
		return dump.Descriptor{}, 0, err
	}
	project, _ := jsonparser.GetString(value, "project")
	collector, _ := jsonparser.GetString(value, "collector")
	typeStr, err := jsonparser.GetString(value, "type")
	if err != nil {
		return dump.Descriptor{}, 0, err
	}
	filetime, err := jsonparser.GetInt(value, "filetime")
	if err != nil {
		return dump.Descriptor{}, 0, err
	}
	duration, _ := jsonparser.GetInt(value, "duration")
	ts, err := jsonparser.GetInt(value, "ts")
	if err != nil {
		return dump.Descriptor{}, 0, err
	}

	rt, err := dump.ParseRecordType(typeStr)
	if err != nil {
		return dump.Descriptor{}, 0, err
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

func (b *Backend) buildURL() (string, error) {
	u, err := url.Parse(b.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for _, p := range b.Params {
		k, v, ok := splitParam(p)
		if ok {
			q.Add(k, v)
		}
	}
	q.Set("since", fmt.Sprintf("%d", b.lastTS))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func splitParam(p string) (key, value string, ok bool) {
	for i := 0; i < len(p); i++ {
		if p[i] == '=' {
			return p[:i], p[i+1:], true
		}
	}
	return "", "", false
}
