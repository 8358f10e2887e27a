package realtime

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

type wsTransport struct {
	conn *websocket.Conn
}

// NewWebSocketTransport returns the default transport.
func NewWebSocketTransport() Transport {
	return &wsTransport{}
}

func (t *wsTransport) Name() string { return TransportWebSocket }

func (t *wsTransport) Dial(ctx context.Context, endpoint string) error {
	conn, resp, err := websocket.Dial(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", endpoint, err)
	}
	// live streams can carry arbitrarily large bursts of scan frames
	conn.SetReadLimit(1 << 20)
	t.conn = conn
	return nil
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
