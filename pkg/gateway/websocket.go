package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/retailscope/gatewatch/pkg/bus"
	"github.com/retailscope/gatewatch/pkg/events"
	"github.com/retailscope/gatewatch/pkg/telemetry"
)

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		g.logger.Error("websocket accept failed", slog.String("err", err.Error()))
		return
	}
	defer conn.CloseNow()

	telemetry.Metrics.StreamClients.WithLabelValues("websocket").Inc()
	defer telemetry.Metrics.StreamClients.WithLabelValues("websocket").Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := g.bus.Subscribe(bus.TopicEnvelope)
	defer g.bus.Unsubscribe(sub)

	g.logger.Info("stream client connected", slog.String("transport", "websocket"))

	go func() {
		defer cancel()
		for {
			select {
			case msg, ok := <-sub:
				if !ok {
					return
				}
				env, ok := msg.(events.Envelope)
				if !ok {
					continue
				}
				if err := wsjson.Write(ctx, conn, env); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				g.logger.Info("stream client disconnected", slog.String("transport", "websocket"))
			} else if ctx.Err() == nil {
				g.logger.Warn("websocket read error", slog.String("err", err.Error()))
			}
			return
		}

		var incoming events.Envelope
		if err := json.Unmarshal(data, &incoming); err != nil {
			g.logger.Warn("dropping malformed client frame", slog.String("err", err.Error()))
			continue
		}

		if incoming.Type == events.KindPing {
			if err := wsjson.Write(ctx, conn, events.Envelope{Type: events.KindPong}); err != nil {
				return
			}
		}
	}
}
