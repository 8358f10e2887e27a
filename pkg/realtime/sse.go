package realtime

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// sseTransport consumes a Server-Sent-Events endpoint. It is receive-only;
// Write always fails with ErrSendUnsupported.
type sseTransport struct {
	client *http.Client
	body   io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc
}

// NewSSETransport returns a transport reading text/event-stream frames.
func NewSSETransport() Transport {
	return &sseTransport{client: &http.Client{}}
}

func (t *sseTransport) Name() string { return TransportSSE }

func (t *sseTransport) Dial(ctx context.Context, endpoint string) error {
	// the stream outlives the dial context; Close cancels it
	reqCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("sse request %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("sse dial %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("sse dial %s: unexpected status %s", endpoint, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("sse dial %s: unexpected content type %q", endpoint, ct)
	}

	t.body = resp.Body
	t.reader = bufio.NewReader(resp.Body)
	t.cancel = cancel
	return nil
}

// Read returns the data of the next event. Multi-line data fields are
// joined with newlines; comment and id/event fields are skipped.
func (t *sseTransport) Read(ctx context.Context) ([]byte, error) {
	var data [][]byte
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, []byte(strings.TrimPrefix(value, " ")))
		}
	}
}

func (t *sseTransport) Write(ctx context.Context, data []byte) error {
	return ErrSendUnsupported
}

func (t *sseTransport) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.body != nil {
		return t.body.Close()
	}
	return nil
}
