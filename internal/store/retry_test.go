package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mailstash/mailstash/internal/message"
)

type flakyInserter struct {
	failures int
	attempts int
}

func (f *flakyInserter) Insert(ctx context.Context, rec *message.Record) error {
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("server selection timeout")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPersistFirstTry(t *testing.T) {
	t.Parallel()

	ins := &flakyInserter{}
	r := NewRetrier(ins, discardLogger())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatalf("slept %v on a successful insert", d)
		return nil
	}

	rec := &message.Record{ID: "r1", To: "ops@example.com"}
	if err := r.Persist(context.Background(), rec); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if ins.attempts != 1 {
		t.Errorf("attempts = %d, want 1", ins.attempts)
	}
}

func TestPersistBackoffDoubles(t *testing.T) {
	t.Parallel()

	ins := &flakyInserter{failures: 3}
	r := NewRetrier(ins, discardLogger())

	var waits []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	if err := r.Persist(context.Background(), &message.Record{ID: "r2"}); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if ins.attempts != 4 {
		t.Errorf("attempts = %d, want 4", ins.attempts)
	}

	want := []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait[%d] = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestPersistCancelDuringBackoff(t *testing.T) {
	t.Parallel()

	ins := &flakyInserter{failures: 1000}
	r := NewRetrier(ins, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	err := r.Persist(ctx, &message.Record{ID: "r3"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Persist error = %v, want context.Canceled", err)
	}
	if ins.attempts != 1 {
		t.Errorf("attempts after cancel = %d, want 1", ins.attempts)
	}
}

func TestPersistCancelBetweenAttempts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	ins := &cancellingInserter{cancel: cancel}
	r := NewRetrier(ins, discardLogger())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("slept after context was cancelled")
		return nil
	}

	err := r.Persist(ctx, &message.Record{ID: "r4"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Persist error = %v, want context.Canceled", err)
	}
}

// cancellingInserter cancels the surrounding context from inside a
// failing insert, as a real store call would when its context is
// torn down mid-operation.
type cancellingInserter struct {
	cancel context.CancelFunc
}

func (c *cancellingInserter) Insert(ctx context.Context, rec *message.Record) error {
	c.cancel()
	return errors.New("connection reset")
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext(1ms) = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext(cancelled) = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled sleep took %v", elapsed)
	}
}
