// Package kafka implements a supplemented, live-only Data Interface
// backend: a topic of dump-ready notifications consumed with franz-go, in
// the same consumer-group / manual-offset-commit shape as the teacher's
// state/history consumers. It complements the poll-based broker backend
// for deployments that already push collector events onto Kafka.
package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"

	"github.com/caida/bgpstream-go/internal/dump"
	"github.com/caida/bgpstream-go/internal/filter"
	"github.com/caida/bgpstream-go/internal/metrics"
)

// notification is the JSON shape of one dump-ready message on the topic.
type notification struct {
	URI       string `json:"uri"`
	Project   string `json:"project"`
	Collector string `json:"collector"`
	Type      string `json:"type"`
	Filetime  uint32 `json:"filetime"`
	Duration  uint32 `json:"duration"`
}

// Backend consumes dump-ready notifications from Kafka. It is live-only:
// ProduceBatch with live == false returns an error, since there is no
// notion of end-of-stream for a topic.
type Backend struct {
	client *kgo.Client
	logger *zap.Logger
	joined atomic.Bool
}

// New constructs a Kafka notification backend and joins the consumer
// group. Mirrors internal/kafka.NewStateConsumer's option set.
func New(brokers []string, groupID string, topics []string, clientID string,
	tlsCfg *tls.Config, saslMech sasl.Mechanism, logger *zap.Logger) (*Backend, error) {

	b := &Backend{logger: logger}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ClientID(clientID),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			b.joined.Store(true)
			logger.Info("datainterface/kafka: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, cl *kgo.Client, _ map[string][]int32) {
			if err := cl.CommitMarkedOffsets(ctx); err != nil {
				logger.Error("datainterface/kafka: commit on revoke failed", zap.Error(err))
			}
			b.joined.Store(false)
		}),
		kgo.OnPartitionsLost(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			b.joined.Store(false)
		}),
	}
	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if saslMech != nil {
		opts = append(opts, kgo.SASL(saslMech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("datainterface/kafka: new client: %w", err)
	}
	b.client = client
	return b, nil
}

// ProduceBatch performs one non-blocking PollFetches: the batch it returns
// is whatever notifications are immediately available, decoded to
// descriptors and filtered. No buffered notifications is an empty batch,
// which the Data Interface's shared backoff treats exactly like a poll-
// based backend's empty result (§4.2).
func (b *Backend) ProduceBatch(ctx context.Context, filters *filter.Set, live bool) ([]dump.Descriptor, error) {
	if !live {
		return nil, fmt.Errorf("datainterface/kafka: backend is live-only")
	}

	pollCtx, cancel := context.WithTimeout(ctx, 0)
	defer cancel()
	start := time.Now()
	fetches := b.client.PollFetches(pollCtx)
	metrics.BackendPollDuration.WithLabelValues("kafka").Observe(time.Since(start).Seconds())

	if errs := fetches.Errors(); len(errs) > 0 {
		for _, e := range errs {
			if e.Err != nil && e.Err != context.DeadlineExceeded {
				b.logger.Error("datainterface/kafka: fetch error", zap.String("topic", e.Topic), zap.Error(e.Err))
			}
		}
	}

	var out []dump.Descriptor
	var toCommit []*kgo.Record
	fetches.EachRecord(func(r *kgo.Record) {
		toCommit = append(toCommit, r)

		var n notification
		if err := json.Unmarshal(r.Value, &n); err != nil {
			b.logger.Warn("datainterface/kafka: malformed notification", zap.Error(err))
			return
		}
		rt, err := dump.ParseRecordType(n.Type)
		if err != nil {
			b.logger.Warn("datainterface/kafka: unknown record type", zap.String("type", n.Type))
			return
		}

		d := dump.Descriptor{
			URI:                n.URI,
			Project:            n.Project,
			Collector:          n.Collector,
			RecordType:         rt,
			Filetime:           n.Filetime,
			NominalDurationSec: n.Duration,
		}
		if filters == nil || filters.Matches(d) {
			out = append(out, d)
		} else {
			metrics.FilterRejectionsTotal.WithLabelValues("kafka").Inc()
		}
	})

	for _, r := range toCommit {
		b.client.MarkCommitRecords(r)
	}
	if len(toCommit) > 0 {
		if err := b.client.CommitMarkedOffsets(ctx); err != nil {
			b.logger.Error("datainterface/kafka: commit offsets failed", zap.Error(err))
		}
	}

	return out, nil
}

// IsJoined reports whether the consumer group assignment is currently held.
func (b *Backend) IsJoined() bool { return b.joined.Load() }

// Close releases the underlying Kafka client.
func (b *Backend) Close() error {
	b.client.Close()
	return nil
}
