package smtpd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"
)

type chanIngestor struct {
	ch chan []byte
}

func (c *chanIngestor) Ingest(raw []byte) {
	c.ch <- raw
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, ingest Ingestor) net.Addr {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := New(Config{
		Hostname:        "mx.test",
		MaxMessageBytes: 1 << 20,
		MaxRecipients:   10,
	}, ingest, discardLogger())

	go func() {
		_ = srv.Serve(l)
	}()
	t.Cleanup(func() {
		_ = srv.Close()
	})
	return l.Addr()
}

func dial(t *testing.T, addr net.Addr) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn, bufio.NewReader(conn)
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	if _, err := fmt.Fprintf(conn, "%s\r\n", line); err != nil {
		t.Fatalf("send %q: %v", line, err)
	}
}

// readReply consumes one SMTP reply including continuation lines and
// returns the final line.
func readReply(t *testing.T, br *bufio.Reader) string {
	t.Helper()
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		if len(line) >= 4 && line[3] == ' ' {
			return strings.TrimSpace(line)
		}
	}
}

func expectCode(t *testing.T, br *bufio.Reader, code string) {
	t.Helper()
	if reply := readReply(t, br); !strings.HasPrefix(reply, code) {
		t.Fatalf("reply = %q, want code %s", reply, code)
	}
}

func waitRaw(t *testing.T, ingest *chanIngestor) string {
	t.Helper()
	select {
	case raw := <-ingest.ch:
		return string(raw)
	case <-time.After(2 * time.Second):
		t.Fatal("message never reached the ingestor")
		return ""
	}
}

func TestSessionDeliversMessage(t *testing.T) {
	t.Parallel()

	ingest := &chanIngestor{ch: make(chan []byte, 1)}
	conn, br := dial(t, startServer(t, ingest))

	expectCode(t, br, "220")
	sendLine(t, conn, "EHLO client.test")
	expectCode(t, br, "250")
	sendLine(t, conn, "MAIL FROM:<alice@example.com>")
	expectCode(t, br, "250")
	sendLine(t, conn, "RCPT TO:<ops@example.com>")
	expectCode(t, br, "250")
	sendLine(t, conn, "DATA")
	expectCode(t, br, "354")
	sendLine(t, conn, "From: alice@example.com")
	sendLine(t, conn, "To: ops@example.com")
	sendLine(t, conn, "Subject: hello")
	sendLine(t, conn, "")
	sendLine(t, conn, "first line of the body")
	sendLine(t, conn, ".")
	expectCode(t, br, "250")
	sendLine(t, conn, "QUIT")
	expectCode(t, br, "221")

	msg := waitRaw(t, ingest)
	if !strings.Contains(msg, "Subject: hello") {
		t.Errorf("ingested message lost the subject header: %q", msg)
	}
	if !strings.Contains(msg, "first line of the body") {
		t.Errorf("ingested message lost the body: %q", msg)
	}
}

func TestSessionHandlesSequentialTransactions(t *testing.T) {
	t.Parallel()

	ingest := &chanIngestor{ch: make(chan []byte, 2)}
	conn, br := dial(t, startServer(t, ingest))

	expectCode(t, br, "220")
	sendLine(t, conn, "EHLO client.test")
	expectCode(t, br, "250")

	for i, subject := range []string{"first", "second"} {
		sendLine(t, conn, "MAIL FROM:<alice@example.com>")
		expectCode(t, br, "250")
		sendLine(t, conn, "RCPT TO:<ops@example.com>")
		expectCode(t, br, "250")
		sendLine(t, conn, "DATA")
		expectCode(t, br, "354")
		sendLine(t, conn, "Subject: "+subject)
		sendLine(t, conn, "")
		sendLine(t, conn, "body")
		sendLine(t, conn, ".")
		expectCode(t, br, "250")

		msg := waitRaw(t, ingest)
		if !strings.Contains(msg, "Subject: "+subject) {
			t.Errorf("transaction %d delivered %q, want subject %q", i, msg, subject)
		}
	}

	sendLine(t, conn, "QUIT")
	expectCode(t, br, "221")
}

func TestSessionAcceptsAnyRecipient(t *testing.T) {
	t.Parallel()

	// Recipient authorization happens in the relay's auth callback,
	// not at RCPT time, so the session takes whatever the relay sends.
	ingest := &chanIngestor{ch: make(chan []byte, 1)}
	conn, br := dial(t, startServer(t, ingest))

	expectCode(t, br, "220")
	sendLine(t, conn, "EHLO client.test")
	expectCode(t, br, "250")
	sendLine(t, conn, "MAIL FROM:<anyone@anywhere.test>")
	expectCode(t, br, "250")
	sendLine(t, conn, "RCPT TO:<u@not-on-any-list.test>")
	expectCode(t, br, "250")
	sendLine(t, conn, "RSET")
	expectCode(t, br, "250")
	sendLine(t, conn, "QUIT")
	expectCode(t, br, "221")
}
