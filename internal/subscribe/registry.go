// Package subscribe tracks which identity currently holds a live
// notification connection. At most one connection per identity; state
// lives in memory only and is gone after a restart.
package subscribe

import (
	"errors"
	"sync"

	"github.com/mailstash/mailstash/internal/metrics"
)

// Registration errors. The messages are sent to clients verbatim, so
// they stay stable even where the wording is unidiomatic.
var (
	ErrMissingIdentity   = errors.New("email should be defined")
	ErrAlreadySubscribed = errors.New("subscriber already exists")
)

// Registry maps identities to their connections. The zero value is
// ready to use.
type Registry struct {
	subs sync.Map // identity -> Conn
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Subscribe registers conn for identity. When several connections race
// for the same identity, exactly one wins and the rest get
// ErrAlreadySubscribed.
func (r *Registry) Subscribe(identity string, conn Conn) error {
	if identity == "" {
		return ErrMissingIdentity
	}
	if _, loaded := r.subs.LoadOrStore(identity, conn); loaded {
		return ErrAlreadySubscribed
	}
	metrics.SubscribersInc()
	return nil
}

// Lookup returns the connection registered for identity, if any.
func (r *Registry) Lookup(identity string) (Conn, bool) {
	v, ok := r.subs.Load(identity)
	if !ok {
		return nil, false
	}
	return v.(Conn), true
}

// Unsubscribe removes the registration for identity. Removing an
// absent identity is a no-op.
func (r *Registry) Unsubscribe(identity string) {
	if _, loaded := r.subs.LoadAndDelete(identity); loaded {
		metrics.SubscribersDec()
	}
}

// Len reports the number of registered identities.
func (r *Registry) Len() int {
	n := 0
	r.subs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll closes every registered connection and empties the
// registry. Called at shutdown after in-flight notifications are done.
func (r *Registry) CloseAll() {
	r.subs.Range(func(key, value any) bool {
		_ = value.(Conn).Close()
		r.Unsubscribe(key.(string))
		return true
	})
}
