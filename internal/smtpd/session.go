package smtpd

import (
	"io"
	"log/slog"

	"github.com/emersion/go-smtp"
)

type backend struct {
	ingest Ingestor
	log    *slog.Logger
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{
		ingest: b.ingest,
		log:    b.log.With("remote", c.Conn().RemoteAddr().String()),
	}, nil
}

// session handles one connection. Envelope addresses are kept for
// logging only; routing uses the message headers, which is what the
// subscribers key on.
type session struct {
	ingest Ingestor
	log    *slog.Logger
	from   string
	rcpts  []string
}

func (s *session) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.rcpts = append(s.rcpts, to)
	return nil
}

// Data reads the full message and queues it for ingestion. The sender
// sees success as soon as the payload is read; drops later in the
// pipeline are internal and never bounce.
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.log.Info("message received", "from", s.from, "rcpts", s.rcpts, "bytes", len(raw))
	s.ingest.Ingest(raw)
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.rcpts = nil
}

func (s *session) Logout() error {
	return nil
}
