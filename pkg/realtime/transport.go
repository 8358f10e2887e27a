package realtime

import (
	"context"
	"errors"
)

// ErrSendUnsupported is returned by transports that are receive-only,
// such as SSE.
var ErrSendUnsupported = errors.New("realtime: transport does not support send")

// Transport is a single underlying connection to the event source. A
// Channel owns at most one Transport at a time and never reuses one after
// Close.
type Transport interface {
	Name() string

	// Dial opens the connection. It must not be called twice.
	Dial(ctx context.Context, endpoint string) error

	// Read blocks until the next frame arrives or the connection fails.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one text frame. Receive-only transports return
	// ErrSendUnsupported.
	Write(ctx context.Context, data []byte) error

	Close() error
}

// DialFunc produces a fresh Transport for each connection attempt.
type DialFunc func() Transport

// Transport selector values for Options.Transport.
const (
	TransportWebSocket = "websocket"
	TransportSSE       = "sse"
)
