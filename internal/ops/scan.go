package ops

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ProgressFunc is called once per finished port, in completion order.
// It may be invoked from many goroutines at once.
type ProgressFunc func(done, total int, outcome PortOutcome)

// Engine fans a ScanRequest out over a bounded set of concurrent probes
type Engine struct {
	prober   *Prober
	newGate  GateFactory
	progress ProgressFunc
	log      zerolog.Logger
}

// EngineOption customises an Engine
type EngineOption func(*Engine)

// WithGateFactory swaps the concurrency gate implementation
func WithGateFactory(f GateFactory) EngineOption {
	return func(e *Engine) { e.newGate = f }
}

// WithProgress registers a completion callback
func WithProgress(f ProgressFunc) EngineOption {
	return func(e *Engine) { e.progress = f }
}

// WithEngineLogger attaches a logger
func WithEngineLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = l.With().Str("component", "engine").Logger() }
}

// NewEngine creates a scan engine around the given prober
func NewEngine(p *Prober, opts ...EngineOption) *Engine {
	if p == nil {
		p = NewProber()
	}
	e := &Engine{
		prober:  p,
		newGate: NewGate,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scan probes every port in req and blocks until all of them have an outcome.
// Individual port failures are reported as statuses; Scan itself cannot fail.
func (e *Engine) Scan(ctx context.Context, req ScanRequest) ScanResult {
	total := len(req.Ports)
	if total == 0 {
		return ScanResult{}
	}

	concurrency := req.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	gate := e.newGate(concurrency)

	start := time.Now()
	e.log.Debug().
		Str("host", req.Host).
		Int("ports", total).
		Int("concurrency", concurrency).
		Dur("timeout", req.Timeout).
		Msg("scan started")

	// one slot per requested port; each goroutine owns exactly one index
	outcomes := make([]PortOutcome, total)
	var done atomic.Int64
	var wg sync.WaitGroup

	for i, port := range req.Ports {
		wg.Add(1)
		go func(i, port int) {
			defer wg.Done()

			outcome := e.runTask(ctx, gate, req, port)
			outcomes[i] = outcome

			n := done.Add(1)
			if e.progress != nil {
				e.progress(int(n), total, outcome)
			}
		}(i, port)
	}

	wg.Wait()

	result := make(ScanResult, total)
	for _, o := range outcomes {
		result[o.Port] = o
	}

	e.log.Debug().
		Str("host", req.Host).
		Int("open", result.Count(StatusOpen)).
		Int("closed", result.Count(StatusClosed)).
		Int("filtered", result.Count(StatusFiltered)).
		Dur("elapsed", time.Since(start)).
		Msg("scan finished")

	return result
}

func (e *Engine) runTask(ctx context.Context, gate Gate, req ScanRequest, port int) PortOutcome {
	if err := gate.Acquire(ctx); err != nil {
		// only possible when ctx is already done; the port still gets a verdict
		e.log.Debug().Int("port", port).Err(err).Msg("gate acquire aborted")
		return PortOutcome{Port: port, Status: StatusFiltered}
	}
	defer gate.Release()

	status, banner := e.prober.Probe(ctx, req.Host, port, req.Timeout)
	if status != StatusOpen {
		banner = ""
	}
	return PortOutcome{Port: port, Status: status, Banner: banner}
}
