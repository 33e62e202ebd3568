package message

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoTextPart reports a multipart message with no top-level text/plain
// part. Such messages yield no record; the caller is expected to log the
// error together with the raw message and drop it.
var ErrNoTextPart = errors.New("multipart message has no text/plain part")

// Normalize converts a raw RFC 5322 message into a Record. Header fields
// From, To and Subject are taken verbatim (empty when absent) and the
// timestamp is the current UTC time.
//
// For multipart messages the body is the content of the first top-level
// part whose media type is exactly text/plain; nested multipart containers
// are not descended into. A multipart message without such a part returns
// an error wrapping ErrNoTextPart that carries the extracted header fields.
// For everything else the body is the message body as-is.
//
// The body has leading and trailing spaces, tabs, CR and LF stripped.
// Normalize performs no I/O and never blocks.
func Normalize(raw []byte) (*Record, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	rec := &Record{
		ID:        uuid.NewString(),
		From:      msg.Header.Get("From"),
		To:        msg.Header.Get("To"),
		Subject:   msg.Header.Get("Subject"),
		Timestamp: time.Now().UTC(),
	}

	text, err := extractText(msg)
	if err != nil {
		if errors.Is(err, ErrNoTextPart) {
			return nil, fmt.Errorf("from=%q to=%q subject=%q: %w", rec.From, rec.To, rec.Subject, err)
		}
		return nil, err
	}

	rec.Text = strings.TrimSpace(text)
	return rec, nil
}

// extractText picks the plain-text body out of a parsed message.
func extractText(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Unparseable content type: treat the body as plain text.
		body, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return "", fmt.Errorf("read message body: %w", readErr)
		}
		return string(body), nil
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", fmt.Errorf("read message body: %w", err)
		}
		return string(body), nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("multipart message missing boundary")
	}
	return firstTextPart(msg.Body, boundary)
}

// firstTextPart scans the top-level parts in order and returns the content
// of the first one with media type text/plain.
func firstTextPart(body io.Reader, boundary string) (string, error) {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read multipart: %w", err)
		}

		partType := part.Header.Get("Content-Type")
		if partType == "" {
			partType = "text/plain"
		}
		mediaType, _, err := mime.ParseMediaType(partType)
		if err != nil {
			continue
		}
		if mediaType != "text/plain" {
			continue
		}

		content, err := readPartContent(part)
		if err != nil {
			return "", fmt.Errorf("read text/plain part: %w", err)
		}
		return string(content), nil
	}

	return "", ErrNoTextPart
}

// readPartContent reads a MIME part's content, reversing a base64
// Content-Transfer-Encoding. Quoted-printable is already decoded by the
// multipart reader; 7bit, 8bit and binary come through as-is.
func readPartContent(part *multipart.Part) ([]byte, error) {
	raw, err := io.ReadAll(part)
	if err != nil {
		return nil, err
	}

	encoding := strings.ToLower(strings.TrimSpace(part.Header.Get("Content-Transfer-Encoding")))
	if encoding != "base64" {
		return raw, nil
	}

	cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		// Unpadded base64 shows up in the wild.
		decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("decode base64 content: %w", err)
		}
	}
	return decoded, nil
}
