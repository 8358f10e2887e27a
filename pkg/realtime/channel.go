package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/retailscope/gatewatch/pkg/events"
	"github.com/retailscope/gatewatch/pkg/telemetry"
)

// DefaultReconnectDelay is the fixed pause between a lost connection and
// the next attempt.
const DefaultReconnectDelay = 3 * time.Second

const (
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

type Options struct {
	// Transport selects TransportWebSocket (the default) or TransportSSE.
	Transport string

	// Origin resolves origin-relative endpoints, e.g. "/ws/rfid" against
	// "https://shop.example".
	Origin string

	// ReconnectDelay is the fixed retry pause. Defaults to
	// DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// DisableReconnect stops the channel from redialing after a lost
	// connection. Explicit Disconnect always stops redialing.
	DisableReconnect bool

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	Logger *slog.Logger

	// Dial overrides the transport factory. Used by tests.
	Dial DialFunc
}

// Channel is one logical live connection to a backend event source. It
// owns at most one transport at a time, redials on failure, and hands
// decoded envelopes to subscribers. Transport failures are absorbed and
// surfaced only through the state watchers and the log; no method panics
// or returns a transport error.
type Channel struct {
	endpoint string
	opts     Options
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	gen       uint64 // bumped on every connect/disconnect; stale transport events are dropped
	tr        Transport
	cancel    context.CancelFunc
	retry     *time.Timer
	pending   []StateChange
	notifying bool

	subMu    sync.Mutex
	nextID   uint64
	subs     map[uint64]func(events.Envelope)
	watchers map[uint64]func(StateChange)
}

// New resolves the endpoint and builds a disconnected channel. A
// malformed endpoint or unknown transport is the only way New fails.
func New(endpoint string, opts Options) (*Channel, error) {
	if opts.Transport == "" {
		opts.Transport = TransportWebSocket
	}
	var socket bool
	switch opts.Transport {
	case TransportWebSocket:
		socket = true
	case TransportSSE:
	default:
		return nil, fmt.Errorf("realtime: unknown transport %q", opts.Transport)
	}

	resolved, err := ResolveEndpoint(opts.Origin, endpoint, socket)
	if err != nil {
		return nil, err
	}

	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dial == nil {
		if socket {
			opts.Dial = NewWebSocketTransport
		} else {
			opts.Dial = NewSSETransport
		}
	}

	return &Channel{
		endpoint: resolved,
		opts:     opts,
		logger:   opts.Logger.With(slog.String("endpoint", resolved)),
		subs:     make(map[uint64]func(events.Envelope)),
		watchers: make(map[uint64]func(StateChange)),
	}, nil
}

// Endpoint is the resolved URL the channel dials.
func (c *Channel) Endpoint() string { return c.endpoint }

// State returns the current lifecycle phase.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts a connection attempt. While the channel is already
// Connecting or Connected it is a no-op, so rapid repeated calls never
// open a second transport.
func (c *Channel) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectLocked()
}

func (c *Channel) connectLocked() {
	if c.state == StateConnecting || c.state == StateConnected {
		c.logger.Debug("connect ignored, channel already active",
			slog.String("state", c.state.String()))
		return
	}

	c.stopRetryLocked()
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.transitionLocked(StateConnecting, nil)
	go c.run(ctx, c.gen)
}

// Disconnect closes the transport and cancels any pending redial. It is
// idempotent and the channel stays down until Connect is called again.
// The connection generation is bumped before the transport is closed, so
// a late close or error event from the old transport cannot re-arm the
// retry timer.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.stopRetryLocked()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	tr := c.tr
	c.tr = nil
	c.transitionLocked(StateDisconnected, nil)
	c.mu.Unlock()

	if tr != nil {
		tr.Close()
		c.logger.Info("channel disconnected")
	}
}

// Send JSON-encodes v and transmits it if the channel is Connected;
// otherwise the message is dropped with a logged warning. There is no
// queueing, and receive-only transports never transmit.
func (c *Channel) Send(v any) {
	c.mu.Lock()
	tr := c.tr
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || tr == nil {
		telemetry.Metrics.DroppedSends.Inc()
		c.logger.Warn("send while not connected, dropping message",
			slog.String("state", state.String()))
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("send dropped, payload not encodable", slog.String("err", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.WriteTimeout)
	defer cancel()
	if err := tr.Write(ctx, data); err != nil {
		if errors.Is(err, ErrSendUnsupported) {
			c.logger.Warn("send dropped, transport is receive-only",
				slog.String("transport", tr.Name()))
			return
		}
		c.logger.Warn("send failed", slog.String("err", err.Error()))
	}
}

// Subscribe registers a message callback and returns its unsubscribe
// handle. Callbacks run synchronously on the read loop, one frame at a
// time, in arrival order, and only while the channel is Connected.
func (c *Channel) Subscribe(fn func(events.Envelope)) (cancel func()) {
	c.subMu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// WatchState registers a state watcher and returns its unsubscribe
// handle. Watchers observe every transition in order.
func (c *Channel) WatchState(fn func(StateChange)) (cancel func()) {
	c.subMu.Lock()
	c.nextID++
	id := c.nextID
	c.watchers[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.watchers, id)
		c.subMu.Unlock()
	}
}

func (c *Channel) run(ctx context.Context, gen uint64) {
	tr := c.opts.Dial()

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	err := tr.Dial(dialCtx, c.endpoint)
	cancel()
	if err != nil {
		tr.Close()
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.transitionLocked(StateError, err)
		c.scheduleRetryLocked(gen)
		c.mu.Unlock()
		c.logger.Error("connect failed", slog.String("err", err.Error()))
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		tr.Close()
		return
	}
	c.tr = tr
	c.transitionLocked(StateConnected, nil)
	c.mu.Unlock()
	c.logger.Info("channel connected", slog.String("transport", tr.Name()))

	c.readLoop(ctx, gen, tr)
}

func (c *Channel) readLoop(ctx context.Context, gen uint64, tr Transport) {
	for {
		data, err := tr.Read(ctx)
		if err != nil {
			tr.Close()
			c.mu.Lock()
			if gen != c.gen {
				// explicit disconnect already detached this connection
				c.mu.Unlock()
				return
			}
			c.tr = nil
			c.transitionLocked(StateDisconnected, err)
			c.scheduleRetryLocked(gen)
			c.mu.Unlock()
			c.logger.Warn("connection lost", slog.String("err", err.Error()))
			return
		}

		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("dropping malformed frame", slog.String("err", err.Error()))
			continue
		}

		c.mu.Lock()
		live := gen == c.gen && c.state == StateConnected
		c.mu.Unlock()
		if !live {
			return
		}

		for _, fn := range c.snapshotSubs() {
			fn(env)
		}
	}
}

func (c *Channel) scheduleRetryLocked(gen uint64) {
	if c.opts.DisableReconnect {
		return
	}
	c.retry = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen {
			return
		}
		c.retry = nil
		c.connectLocked()
	})
}

func (c *Channel) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// transitionLocked records the state change and queues watcher
// notifications. A single drainer delivers them in order without holding
// the channel lock, so watchers may call back into the channel.
func (c *Channel) transitionLocked(to State, cause error) {
	if c.state == to {
		return
	}
	ev := StateChange{From: c.state, To: to, Cause: cause}
	c.state = to
	c.pending = append(c.pending, ev)
	if !c.notifying {
		c.notifying = true
		go c.drainNotifications()
	}
}

func (c *Channel) drainNotifications() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.notifying = false
			c.mu.Unlock()
			return
		}
		ev := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		for _, fn := range c.snapshotWatchers() {
			fn(ev)
		}
	}
}

func (c *Channel) snapshotSubs() []func(events.Envelope) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(events.Envelope), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	return fns
}

func (c *Channel) snapshotWatchers() []func(StateChange) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	ids := make([]uint64, 0, len(c.watchers))
	for id := range c.watchers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(StateChange), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.watchers[id])
	}
	return fns
}
