package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/mailstash/mailstash/internal/message"
	"github.com/mailstash/mailstash/internal/metrics"
)

// initialBackoff is the wait after the first failed insert. Each further
// failure doubles it, without an upper bound.
const initialBackoff = 60 * time.Second

// Inserter is the slice of Store the retrier needs. Tests substitute a
// fake that fails on demand.
type Inserter interface {
	Insert(ctx context.Context, rec *message.Record) error
}

// Retrier wraps an Inserter with the retry-forever policy: a record is
// either persisted or its pipeline unit is cancelled, never dropped
// because the store was down.
type Retrier struct {
	store Inserter
	log   *slog.Logger
	base  time.Duration

	// sleep waits for d or until ctx is done. Overridable in tests so
	// backoff sequences can be asserted without real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier(store Inserter, log *slog.Logger) *Retrier {
	return &Retrier{
		store: store,
		log:   log,
		base:  initialBackoff,
		sleep: sleepContext,
	}
}

// Persist inserts rec, retrying with doubling backoff until the insert
// succeeds or ctx is cancelled. The returned error is always a context
// error; insert failures themselves are logged and retried.
func (r *Retrier) Persist(ctx context.Context, rec *message.Record) error {
	delay := r.base
	for {
		err := r.store.Insert(ctx, rec)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.log.Error("insert failed, will retry",
			"error", err,
			"id", rec.ID,
			"from", rec.From,
			"to", rec.To,
			"subject", rec.Subject,
			"retry_in", delay)
		metrics.PersistRetryInc()

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
}

// sleepContext waits for d unless ctx is cancelled first. A stopped
// timer is reclaimed immediately rather than lingering for the full
// backoff interval.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
