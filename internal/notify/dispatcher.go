package notify

import (
	"log/slog"

	"github.com/mailstash/mailstash/internal/message"
	"github.com/mailstash/mailstash/internal/metrics"
	"github.com/mailstash/mailstash/internal/subscribe"
)

// Directory resolves an identity to its live connection.
type Directory interface {
	Lookup(identity string) (subscribe.Conn, bool)
}

// Dispatcher delivers new-mail events to the subscriber matching the
// record's recipient.
type Dispatcher struct {
	dir Directory
	log *slog.Logger
}

func NewDispatcher(dir Directory, log *slog.Logger) *Dispatcher {
	return &Dispatcher{dir: dir, log: log}
}

// Notify sends rec to the subscriber for rec.To, if one is connected.
// A missing subscriber or a failed send is counted and otherwise
// ignored; the record is already persisted by the time this runs.
func (d *Dispatcher) Notify(rec *message.Record) {
	conn, ok := d.dir.Lookup(rec.To)
	if !ok {
		metrics.NotifiedInc("no_subscriber")
		return
	}
	if err := conn.Send(NewMailEvent(rec)); err != nil {
		d.log.Debug("notify send failed", "to", rec.To, "id", rec.ID, "error", err)
		metrics.NotifiedInc("send_error")
		return
	}
	metrics.NotifiedInc("delivered")
}
