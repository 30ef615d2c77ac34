package history

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/domain"
)

// Submit rejections.
var (
	ErrQueueFull       = errors.New("history queue full")
	ErrPersisterClosed = errors.New("history persister closed")
)

type job struct {
	report *domain.DiagnosisReport
	input  map[string]any
}

// AsyncPersister feeds the chain from a bounded queue drained by a single
// worker, so callers never wait on storage.
type AsyncPersister struct {
	chain  *Chain
	queue  chan job
	logger *logrus.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	outcomes func(Outcome)
}

// NewAsyncPersister starts the worker. queueSize below one is raised to one.
func NewAsyncPersister(chain *Chain, queueSize int, logger *logrus.Logger) *AsyncPersister {
	if queueSize < 1 {
		queueSize = 1
	}
	p := &AsyncPersister{
		chain:  chain,
		queue:  make(chan job, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// OnOutcome registers a callback invoked by the worker after each record.
// It must be set before the first Submit.
func (p *AsyncPersister) OnOutcome(f func(Outcome)) {
	p.outcomes = f
}

// Submit enqueues a report. A rejected report is dropped and the error says
// why: ErrQueueFull or ErrPersisterClosed.
func (p *AsyncPersister) Submit(report *domain.DiagnosisReport, input map[string]any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPersisterClosed
	}
	select {
	case p.queue <- job{report: report, input: input}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued reports.
func (p *AsyncPersister) Pending() int {
	return len(p.queue)
}

// Close stops intake and waits until queued reports are written or ctx ends.
func (p *AsyncPersister) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.logger.WithField("pending", len(p.queue)).Warn("History queue not drained before shutdown")
		return ctx.Err()
	}
}

func (p *AsyncPersister) run() {
	defer close(p.done)
	for j := range p.queue {
		out := p.chain.Persist(context.Background(), j.report, j.input)
		if p.outcomes != nil {
			p.outcomes(out)
		}
	}
}
