// Package stream implements the Control API (§6): the state machine an
// application drives through create/add_filter/set_data_interface/
// start/next_record/stop/destroy. It wires together the Filter Set, a
// selected Data Interface backend, the Input Queue, and the Reader Set
// exactly as §2's pipeline diagram describes, in the teacher's
// constructor-plus-explicit-lifecycle style (cmd/rib-ingester's runServe
// sets up and tears down its own pipeline stages the same way).
package stream

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/caida/bgpstream-go/internal/datainterface"
	"github.com/caida/bgpstream-go/internal/filter"
	"github.com/caida/bgpstream-go/internal/metrics"
	"github.com/caida/bgpstream-go/internal/mrt"
	"github.com/caida/bgpstream-go/internal/queue"
	"github.com/caida/bgpstream-go/internal/readerset"
	"github.com/caida/bgpstream-go/internal/record"
	"github.com/caida/bgpstream-go/internal/transport"
)

// State is the Control API's lifecycle state (§6).
type State int

const (
	Allocated State = iota
	Running
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Allocated:
		return "allocated"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stream is a Control API handle. Not safe for concurrent use beyond the
// single Running flag read by Running() — the core itself is
// single-threaded and cooperative (§5).
type Stream struct {
	logger *zap.Logger

	state   State
	running atomic.Bool

	filters *filter.Set
	backend datainterface.Backend
	opener  transport.Opener

	queue     *queue.Queue
	readers   *readerset.Set
	backoff   *datainterface.Backoff
	live      bool
	eof       bool
	lastError error

	// pendingSynth holds terminal records synthesized by Absorb (a file
	// that failed to open, or whose very first fill_lookahead came up
	// Empty/NoMatch/Corrupted) until NextRecord hands each one to the caller — the
	// same record a live reader would have produced, just without ever
	// having been heaped.
	pendingSynth []*record.Record
}

// Create returns a new stream handle in the Allocated state (§6's create()).
func Create(logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		logger:  logger,
		state:   Allocated,
		filters: filter.New(),
		queue:   queue.New(),
	}
}

// AddFilter adds a categorical filter term. Legal only in Allocated state;
// per §7's ConfigError handling, an illegal call is ignored with a warning
// rather than returning an error.
func (s *Stream) AddFilter(kind filter.Kind, value string) error {
	if s.state != Allocated {
		s.logger.Warn("add_filter ignored: stream is not allocated", zap.Stringer("state", s.state))
		return nil
	}
	return s.filters.Add(kind, value)
}

// AddIntervalFilter adds a time interval filter. Legal only in Allocated state.
func (s *Stream) AddIntervalFilter(begin, end uint32, forever bool) {
	if s.state != Allocated {
		s.logger.Warn("add_interval_filter ignored: stream is not allocated", zap.Stringer("state", s.state))
		return
	}
	s.filters.AddInterval(begin, end, forever)
}

// SetDataInterface installs the Data Interface backend along with the
// byte-stream opener it will hand descriptors to. Legal only in Allocated
// state.
func (s *Stream) SetDataInterface(backend datainterface.Backend, opener transport.Opener) error {
	if s.state != Allocated {
		s.logger.Warn("set_data_interface ignored: stream is not allocated", zap.Stringer("state", s.state))
		return nil
	}
	s.backend = backend
	s.opener = opener
	return nil
}

// SetBlocking declares live mode (§6's set_blocking()): end-of-stream never
// occurs, and empty polls back off rather than signal completion.
func (s *Stream) SetBlocking() {
	if s.state != Allocated {
		s.logger.Warn("set_blocking ignored: stream is not allocated", zap.Stringer("state", s.state))
		return
	}
	s.live = true
}

// Start transitions Allocated -> Running. Returns an error if no backend
// was configured.
func (s *Stream) Start() error {
	if s.state != Allocated {
		return fmt.Errorf("stream: start: illegal from state %s", s.state)
	}
	if s.backend == nil {
		return fmt.Errorf("stream: start: no data interface configured")
	}
	if s.opener == nil {
		return fmt.Errorf("stream: start: no byte-stream opener configured")
	}

	newParser := func(r io.Reader) mrt.EntryReader { return mrt.NewParser(r) }
	s.readers = readerset.New(s.opener, newParser, s.filters)
	s.backoff = datainterface.NewBackoff()
	s.state = Running
	s.running.Store(true)
	return nil
}

// Running reports the Running flag, for the control surface's /readyz
// check: true from Start until clean end-of-stream, a fatal error, or Stop.
func (s *Stream) Running() bool { return s.running.Load() }

// NextRecord implements next_record: 1 on success (out populated), 0 on
// clean end-of-stream (non-live only), -1 on fatal error.
func (s *Stream) NextRecord(ctx context.Context) (*record.Record, int, error) {
	if s.state != Running {
		return nil, -1, fmt.Errorf("stream: next_record: illegal from state %s", s.state)
	}

	for {
		if len(s.pendingSynth) > 0 {
			rec := s.pendingSynth[0]
			s.pendingSynth = s.pendingSynth[1:]
			s.observeEmitted(rec)
			return rec, 1, nil
		}

		if rec := s.readers.NextRecord(); rec != nil {
			s.observeEmitted(rec)
			return rec, 1, nil
		}

		if s.readers.IsEmpty() {
			if s.queue.IsEmpty() {
				if err := s.refillQueue(ctx); err != nil {
					s.state = Failed
					s.lastError = err
					s.running.Store(false)
					return nil, -1, err
				}
				if s.eof {
					s.running.Store(false)
					return nil, 0, nil
				}
				if s.queue.IsEmpty() {
					// Live mode with nothing new yet: loop back to poll again.
					continue
				}
			}
		}

		batch := s.queue.PopBatch()
		if len(batch) > 0 {
			s.pendingSynth = append(s.pendingSynth, s.readers.Absorb(ctx, batch)...)
			metrics.ReaderSetSize.Set(float64(s.readers.Len()))
		}
	}
}

// refillQueue pulls one batch from the Data Interface into the Input
// Queue, sleeping with backoff on an empty live poll (§4.2).
func (s *Stream) refillQueue(ctx context.Context) error {
	for {
		batch, err := s.backend.ProduceBatch(ctx, s.filters, s.live)
		if err != nil {
			metrics.BackendPollResultsTotal.WithLabelValues("configured", "error").Inc()
			return fmt.Errorf("stream: backend error: %w", err)
		}

		if len(batch) == 0 {
			metrics.BackendPollResultsTotal.WithLabelValues("configured", "empty").Inc()
			if !s.live {
				s.eof = true
				return nil
			}
			d := s.backoff.NextSleep()
			metrics.BackoffSleepSeconds.WithLabelValues("configured").Set(d.Seconds())
			if err := datainterface.Sleep(ctx, d); err != nil {
				return err
			}
			continue
		}

		metrics.BackendPollResultsTotal.WithLabelValues("configured", "nonempty").Inc()
		s.backoff.Reset()
		for _, d := range batch {
			s.queue.Push(d)
		}
		metrics.InputQueueDepth.Set(float64(s.queue.Len()))
		return nil
	}
}

// observeEmitted records an emitted record's status, plus the
// project/collector breakdown for the two error statuses with their own
// dedicated vectors (§1).
func (s *Stream) observeEmitted(rec *record.Record) {
	metrics.RecordsEmittedTotal.WithLabelValues(statusLabel(rec.Status)).Inc()
	switch rec.Status {
	case record.OpenFailed:
		metrics.OpenFailuresTotal.WithLabelValues(rec.Descriptor.Project, rec.Descriptor.Collector).Inc()
	case record.Corrupted:
		metrics.CorruptionsTotal.WithLabelValues(rec.Descriptor.Project, rec.Descriptor.Collector).Inc()
	}
}

func statusLabel(st record.Status) string {
	switch st {
	case record.Valid:
		return "valid"
	case record.OpenFailed:
		return "open_failed"
	case record.Corrupted:
		return "corrupted"
	case record.Empty:
		return "empty"
	case record.Filtered:
		return "filtered"
	default:
		return "unknown"
	}
}

// Stop tears the Running stream down to Stopped without releasing filter
// state, mirroring §6's "tear down in reverse order of construction".
func (s *Stream) Stop() error {
	if s.state != Running && s.state != Failed {
		return nil
	}
	var err error
	if s.readers != nil {
		err = s.readers.Close()
	}
	s.running.Store(false)
	s.state = Stopped
	return err
}

// Destroy releases every resource the stream holds, including the Data
// Interface backend if it implements io.Closer.
func (s *Stream) Destroy() error {
	err := s.Stop()
	if closer, ok := s.backend.(io.Closer); ok && closer != nil {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
