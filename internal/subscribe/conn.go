package subscribe

// Conn is a live subscriber connection. Implementations must allow
// Send and Close from different goroutines; Close more than once must
// be harmless.
type Conn interface {
	Send(v any) error
	Close() error
}
