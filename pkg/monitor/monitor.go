package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/retailscope/gatewatch/pkg/bus"
	"github.com/retailscope/gatewatch/pkg/events"
	"github.com/retailscope/gatewatch/pkg/realtime"
	"github.com/retailscope/gatewatch/pkg/store"
	"github.com/retailscope/gatewatch/pkg/telemetry"
)

// Monitor tails an upstream gate controller over a realtime channel,
// persists what it sees, and republishes it on the application bus so the
// gateway's stream clients get it live.
type Monitor struct {
	channel *realtime.Channel
	store   *store.Store
	bus     bus.MessageBus
	logger  *slog.Logger

	// dialed flips after the first connecting transition so later ones
	// count as reconnects. Only touched from the state watcher, which the
	// channel invokes serially.
	dialed bool
}

type Config struct {
	// Endpoint is the upstream stream URL, absolute or origin-relative.
	Endpoint string
	Origin   string

	// Transport is realtime.TransportWebSocket or realtime.TransportSSE.
	Transport string

	ReconnectDelay time.Duration
	Reconnect      bool

	// AuthToken, when set, is appended to the endpoint as a token query
	// parameter.
	AuthToken string

	Store  *store.Store
	Bus    bus.MessageBus
	Logger *slog.Logger

	// Dial overrides the channel transport factory. Used by tests.
	Dial realtime.DialFunc
}

func New(cfg Config) (*Monitor, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	endpoint := cfg.Endpoint
	if cfg.AuthToken != "" {
		var err error
		endpoint, err = withToken(endpoint, cfg.AuthToken)
		if err != nil {
			return nil, fmt.Errorf("monitor: endpoint: %w", err)
		}
	}

	ch, err := realtime.New(endpoint, realtime.Options{
		Transport:        cfg.Transport,
		Origin:           cfg.Origin,
		ReconnectDelay:   cfg.ReconnectDelay,
		DisableReconnect: !cfg.Reconnect,
		Logger:           cfg.Logger,
		Dial:             cfg.Dial,
	})
	if err != nil {
		return nil, err
	}

	return &Monitor{
		channel: ch,
		store:   cfg.Store,
		bus:     cfg.Bus,
		logger:  cfg.Logger,
	}, nil
}

// Channel exposes the underlying realtime channel, e.g. for sending
// heartbeats upstream.
func (m *Monitor) Channel() *realtime.Channel { return m.channel }

// Run connects the channel and blocks until ctx is cancelled. The channel
// keeps redialing on its own; Run only tears it down at the end.
func (m *Monitor) Run(ctx context.Context) error {
	unsubEvents := m.channel.Subscribe(m.handleEnvelope)
	defer unsubEvents()

	unsubState := m.channel.WatchState(m.handleStateChange)
	defer unsubState()

	m.logger.Info("monitor starting", slog.String("endpoint", m.channel.Endpoint()))
	m.channel.Connect()

	<-ctx.Done()
	m.channel.Disconnect()
	m.logger.Info("monitor stopped")
	return nil
}

func (m *Monitor) handleEnvelope(env events.Envelope) {
	telemetry.Metrics.EventsReceived.WithLabelValues(env.Type).Inc()

	ctx := context.Background()
	switch env.Type {
	case events.KindTagScanned:
		var scan events.TagScan
		if err := env.Decode(&scan); err != nil {
			m.dropEnvelope(env.Type, err)
			return
		}
		rec := &store.ScanEvent{
			ID:      scan.ID,
			EPC:     scan.EPC,
			Barcode: scan.Barcode,
			StoreID: scan.StoreID,
			GateID:  scan.GateID,
			At:      scan.At,
		}
		if err := m.store.RecordScan(ctx, rec); err != nil {
			m.logger.Error("recording scan failed",
				slog.String("epc", scan.EPC), slog.String("err", err.Error()))
		}
		m.bus.Publish(bus.TopicTagScanned, scan)

	case events.KindTheftAlert:
		var alert events.TheftAlert
		if err := env.Decode(&alert); err != nil {
			m.dropEnvelope(env.Type, err)
			return
		}
		rec := &store.Alert{
			ID:       alert.ID,
			EPC:      alert.EPC,
			StoreID:  alert.StoreID,
			GateID:   alert.GateID,
			Severity: alert.Severity,
			Message:  alert.Message,
			At:       alert.At,
		}
		if err := m.store.RecordAlert(ctx, rec); err != nil {
			m.logger.Error("recording alert failed",
				slog.String("epc", alert.EPC), slog.String("err", err.Error()))
		} else {
			telemetry.Metrics.AlertsRecorded.Inc()
		}
		m.logger.Warn("theft alert",
			slog.String("epc", alert.EPC),
			slog.String("gate", alert.GateID),
			slog.String("severity", alert.Severity))
		m.bus.Publish(bus.TopicTheftAlert, alert)

	case events.KindTagLinked:
		var link events.TagLinked
		if err := env.Decode(&link); err != nil {
			m.dropEnvelope(env.Type, err)
			return
		}
		if err := m.store.LinkTag(ctx, &store.TagLink{
			EPC:      link.EPC,
			Barcode:  link.Barcode,
			Product:  link.Product,
			LinkedAt: link.At,
		}); err != nil {
			m.logger.Error("linking tag failed",
				slog.String("epc", link.EPC), slog.String("err", err.Error()))
		}

	case events.KindHeartbeat, events.KindPong:
		// fan-out only

	default:
		m.logger.Debug("unrecognized event kind", slog.String("kind", env.Type))
	}

	m.bus.Publish(bus.TopicEnvelope, env)
}

func (m *Monitor) dropEnvelope(kind string, err error) {
	telemetry.Metrics.DecodeFailures.Inc()
	m.logger.Warn("dropping undecodable payload",
		slog.String("kind", kind), slog.String("err", err.Error()))
}

func (m *Monitor) handleStateChange(change realtime.StateChange) {
	if change.To == realtime.StateConnected {
		telemetry.Metrics.ConnectionState.Set(1)
	} else {
		telemetry.Metrics.ConnectionState.Set(0)
	}
	if change.To == realtime.StateConnecting {
		if m.dialed {
			telemetry.Metrics.Reconnects.Inc()
		}
		m.dialed = true
	}

	attrs := []any{
		slog.String("from", change.From.String()),
		slog.String("to", change.To.String()),
	}
	if change.Cause != nil {
		attrs = append(attrs, slog.String("cause", change.Cause.Error()))
	}
	m.logger.Info("channel state changed", attrs...)

	m.bus.Publish(bus.TopicConnState, change)
}

func withToken(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
