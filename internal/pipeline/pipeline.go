// Package pipeline turns each accepted message into one supervised
// unit of work: normalize, persist, notify. Units run on their own
// goroutines and are tracked so shutdown can drain them.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mailstash/mailstash/internal/message"
	"github.com/mailstash/mailstash/internal/metrics"
)

// Persister writes a record durably, retrying until ctx is cancelled.
type Persister interface {
	Persist(ctx context.Context, rec *message.Record) error
}

// Notifier announces a record that has just been persisted.
type Notifier interface {
	Notify(rec *message.Record)
}

// Pipeline owns the in-flight unit set. All units share one context;
// cancelling it unblocks any unit waiting in a store retry.
type Pipeline struct {
	persist Persister
	notify  Notifier
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	draining bool
	wg       sync.WaitGroup
	inflight atomic.Int64
}

func New(persist Persister, notify Notifier, log *slog.Logger) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		persist: persist,
		notify:  notify,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Ingest accepts one raw message and schedules its unit of work,
// returning without waiting for persistence. Messages that do not
// normalize are logged with their raw payload and dropped, as is
// anything arriving once draining has begun.
func (p *Pipeline) Ingest(raw []byte) {
	metrics.ReceivedInc()

	rec, err := message.Normalize(raw)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, message.ErrNoTextPart) {
			reason = "no_text_part"
		}
		metrics.DroppedInc(reason)
		p.log.Warn("message dropped", "reason", reason, "error", err, "raw", string(raw))
		return
	}

	if !p.add() {
		metrics.DroppedInc("draining")
		p.log.Warn("message dropped", "reason", "draining", "id", rec.ID, "to", rec.To)
		return
	}
	go p.run(rec)
}

func (p *Pipeline) run(rec *message.Record) {
	defer p.done()

	if err := p.persist.Persist(p.ctx, rec); err != nil {
		p.log.Warn("unit cancelled before persist", "id", rec.ID, "to", rec.To, "error", err)
		return
	}
	metrics.PersistedInc()
	p.notify.Notify(rec)
}

// add registers a new unit unless draining. Registration happens under
// the read lock so Drain cannot start waiting between the draining
// check and the WaitGroup add.
func (p *Pipeline) add() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.draining {
		return false
	}
	p.wg.Add(1)
	p.inflight.Add(1)
	return true
}

func (p *Pipeline) done() {
	p.inflight.Add(-1)
	p.wg.Done()
}

// InFlight reports the number of units between acceptance and completion.
func (p *Pipeline) InFlight() int {
	return int(p.inflight.Load())
}

// Drain stops admission, cancels the shared context and blocks until
// every unit has finished. Units waiting out a store backoff return
// promptly with a context error; units whose insert already succeeded
// still deliver their notification before Drain returns. Safe to call
// more than once.
func (p *Pipeline) Drain() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.draining = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
