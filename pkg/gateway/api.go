package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/retailscope/gatewatch/pkg/audit"
	"github.com/retailscope/gatewatch/pkg/bus"
	"github.com/retailscope/gatewatch/pkg/events"
	"github.com/retailscope/gatewatch/pkg/store"
	"github.com/retailscope/gatewatch/pkg/telemetry"
	qrcode "github.com/skip2/go-qrcode"
)

// handleIngest accepts one envelope from a gate reader bridge, persists
// what it carries, and fans it out to stream clients.
func (g *Gateway) handleIngest(w http.ResponseWriter, r *http.Request) {
	var env events.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		telemetry.Metrics.EventsIngested.WithLabelValues("unknown", "rejected").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid envelope"})
		return
	}

	ctx := r.Context()
	switch env.Type {
	case events.KindTagScanned:
		var scan events.TagScan
		if err := env.Decode(&scan); err != nil {
			g.rejectIngest(w, env.Type, err)
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
		if err := g.store.RecordScan(ctx, rec); err != nil {
			g.failIngest(w, env.Type, err)
			return
		}
		g.bus.Publish(bus.TopicTagScanned, scan)

	case events.KindTheftAlert:
		var alert events.TheftAlert
		if err := env.Decode(&alert); err != nil {
			g.rejectIngest(w, env.Type, err)
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
		if err := g.store.RecordAlert(ctx, rec); err != nil {
			g.failIngest(w, env.Type, err)
			return
		}
		g.bus.Publish(bus.TopicTheftAlert, alert)

	case events.KindTagLinked:
		var link events.TagLinked
		if err := env.Decode(&link); err != nil {
			g.rejectIngest(w, env.Type, err)
			return
		}
		if err := g.store.LinkTag(ctx, &store.TagLink{
			EPC:      link.EPC,
			Barcode:  link.Barcode,
			Product:  link.Product,
			LinkedAt: link.At,
		}); err != nil {
			g.failIngest(w, env.Type, err)
			return
		}

	case events.KindHeartbeat:
		// fan-out only

	default:
		telemetry.Metrics.EventsIngested.WithLabelValues(env.Type, "rejected").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown event kind"})
		return
	}

	g.bus.Publish(bus.TopicEnvelope, env)
	telemetry.Metrics.EventsIngested.WithLabelValues(env.Type, "accepted").Inc()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (g *Gateway) rejectIngest(w http.ResponseWriter, kind string, err error) {
	telemetry.Metrics.EventsIngested.WithLabelValues(kind, "rejected").Inc()
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func (g *Gateway) failIngest(w http.ResponseWriter, kind string, err error) {
	telemetry.Metrics.EventsIngested.WithLabelValues(kind, "failed").Inc()
	g.logger.Error("ingest failed", slog.String("kind", kind), slog.String("err", err.Error()))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage failure"})
}

func (g *Gateway) handleScans(w http.ResponseWriter, r *http.Request) {
	f := store.ScanFilter{
		EPC:    r.URL.Query().Get("epc"),
		GateID: r.URL.Query().Get("gate"),
		Limit:  queryLimit(r, 100),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC 3339"})
			return
		}
		f.Since = t
	}

	scans, err := g.store.RecentScans(r.Context(), f)
	if err != nil {
		g.logger.Error("scan query failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failure"})
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

func (g *Gateway) handleAlerts(w http.ResponseWriter, r *http.Request) {
	f := store.AlertFilter{
		Unacked: r.URL.Query().Get("unacked") == "true",
		Limit:   queryLimit(r, 100),
	}

	alerts, err := g.store.RecentAlerts(r.Context(), f)
	if err != nil {
		g.logger.Error("alert query failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failure"})
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (g *Gateway) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := g.store.AckAlert(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
			return
		}
		g.logger.Error("alert ack failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage failure"})
		return
	}
	g.recordAction(r.Context(), audit.EventAlertAck, id, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "acked"})
}

type linkTagRequest struct {
	EPC     string `json:"epc"`
	Barcode string `json:"barcode"`
	Product string `json:"product,omitempty"`
}

func (g *Gateway) handleLinkTag(w http.ResponseWriter, r *http.Request) {
	var req linkTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	if req.EPC == "" || req.Barcode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "epc and barcode are required"})
		return
	}

	link := &store.TagLink{EPC: req.EPC, Barcode: req.Barcode, Product: req.Product}
	if err := g.store.LinkTag(r.Context(), link); err != nil {
		g.logger.Error("tag link failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage failure"})
		return
	}

	env, err := events.New(events.KindTagLinked, events.TagLinked{
		EPC:     link.EPC,
		Barcode: link.Barcode,
		Product: link.Product,
		At:      link.LinkedAt,
	})
	if err == nil {
		g.bus.Publish(bus.TopicEnvelope, env)
	}
	g.recordAction(r.Context(), audit.EventTagLink, link.EPC, map[string]string{
		"barcode": link.Barcode,
	})

	writeJSON(w, http.StatusCreated, link)
}

func (g *Gateway) handleResolveTag(w http.ResponseWriter, r *http.Request) {
	epc := chi.URLParam(r, "epc")
	link, err := g.store.ResolveTag(r.Context(), epc)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "tag not linked"})
			return
		}
		g.logger.Error("tag resolve failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failure"})
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// recordAction appends to the operator action trail. A write failure is
// logged, never surfaced to the client.
func (g *Gateway) recordAction(ctx context.Context, eventType, target string, detail any) {
	if g.audit == nil {
		return
	}
	if err := g.audit.Log(ctx, eventType, actorFrom(ctx), target, detail); err != nil {
		g.logger.Error("audit write failed",
			slog.String("event", eventType), slog.String("err", err.Error()))
	}
}

func (g *Gateway) handleAudit(w http.ResponseWriter, r *http.Request) {
	if g.audit == nil {
		writeJSON(w, http.StatusOK, []audit.Entry{})
		return
	}

	f := audit.Filter{
		EventType: r.URL.Query().Get("event"),
		Actor:     r.URL.Query().Get("actor"),
		Target:    r.URL.Query().Get("target"),
		Limit:     queryLimit(r, 100),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC 3339"})
			return
		}
		f.Since = t
	}

	entries, err := g.audit.Query(r.Context(), f)
	if err != nil {
		g.logger.Error("audit query failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failure"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type pairPayload struct {
	URL   string `json:"url"`
	Token string `json:"token,omitempty"`
}

// handlePairQR renders a QR code the mobile client scans to learn the
// stream endpoint and its token.
func (g *Gateway) handlePairQR(w http.ResponseWriter, r *http.Request) {
	payload, err := json.Marshal(pairPayload{
		URL:   g.externalURL + "/ws",
		Token: g.authToken,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode failure"})
		return
	}

	png, err := qrcode.Encode(string(payload), qrcode.Medium, 256)
	if err != nil {
		g.logger.Error("pair QR encode failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "qr failure"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
