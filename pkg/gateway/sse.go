package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/retailscope/gatewatch/pkg/bus"
	"github.com/retailscope/gatewatch/pkg/events"
	"github.com/retailscope/gatewatch/pkg/telemetry"
)

const sseKeepAliveInterval = 15 * time.Second

func (g *Gateway) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": stream open\n\n")
	flusher.Flush()

	telemetry.Metrics.StreamClients.WithLabelValues("sse").Inc()
	defer telemetry.Metrics.StreamClients.WithLabelValues("sse").Dec()

	sub := g.bus.Subscribe(bus.TopicEnvelope)
	defer g.bus.Unsubscribe(sub)

	g.logger.Info("stream client connected", slog.String("transport", "sse"))

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			g.logger.Info("stream client disconnected", slog.String("transport", "sse"))
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, ok := <-sub:
			if !ok {
				return
			}
			env, ok := msg.(events.Envelope)
			if !ok {
				continue
			}
			data, err := json.Marshal(env)
			if err != nil {
				g.logger.Warn("dropping unencodable envelope", slog.String("err", err.Error()))
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
