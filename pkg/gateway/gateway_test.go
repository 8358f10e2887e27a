package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/retailscope/gatewatch/pkg/audit"
	"github.com/retailscope/gatewatch/pkg/bus"
	"github.com/retailscope/gatewatch/pkg/events"
	"github.com/retailscope/gatewatch/pkg/store"
)

const testToken = "gw-test-token"

func testGateway(t *testing.T) (*Gateway, *httptest.Server, *store.Store) {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	trail, err := audit.New(s.DB())
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}

	b := bus.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(b.Close)

	g := New(Config{
		AuthToken: testToken,
		Store:     s,
		Bus:       b,
		Audit:     trail,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	srv := httptest.NewServer(g.router)
	t.Cleanup(srv.Close)

	return g, srv, s
}

func doRequest(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestHealthEndpointsNeedNoAuth(t *testing.T) {
	_, srv, _ := testGateway(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := doRequest(t, http.MethodGet, srv.URL+path, "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, srv, s := testGateway(t)

	opToken, err := s.CreateOperator(context.Background(), "clerk")
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	tests := []struct {
		name  string
		token string
		query string
		want  int
	}{
		{name: "missing token", want: http.StatusUnauthorized},
		{name: "wrong token", token: "nope", want: http.StatusUnauthorized},
		{name: "gateway token", token: testToken, want: http.StatusOK},
		{name: "operator token", token: opToken, want: http.StatusOK},
		{name: "query token", query: "?token=" + testToken, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, srv.URL+"/api/scans"+tt.query, tt.token, nil)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestIngestScanRoundtrip(t *testing.T) {
	_, srv, _ := testGateway(t)

	env, err := events.New(events.KindTagScanned, events.TagScan{
		EPC:    "E20001",
		GateID: "gate-1",
		At:     time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("events.New: %v", err)
	}

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/events", testToken, env)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ingest status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/scans?epc=E20001", testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scan query status = %d", resp.StatusCode)
	}
	var scans []store.ScanEvent
	decodeBody(t, resp, &scans)
	if len(scans) != 1 {
		t.Fatalf("got %d scans, want 1", len(scans))
	}
	if scans[0].GateID != "gate-1" {
		t.Errorf("GateID = %q, want %q", scans[0].GateID, "gate-1")
	}
}

func TestIngestRejectsBadInput(t *testing.T) {
	_, srv, _ := testGateway(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "not json"},
		{name: "unknown kind", body: `{"type":"door_opened"}`},
		{name: "scan without payload", body: `{"type":"tag_scanned"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/events", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("NewRequest: %v", err)
			}
			req.Header.Set("Authorization", "Bearer "+testToken)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
		})
	}
}

func TestAlertAckFlow(t *testing.T) {
	_, srv, _ := testGateway(t)

	env, err := events.New(events.KindTheftAlert, events.TheftAlert{
		EPC:      "E20099",
		GateID:   "gate-2",
		Severity: "high",
		Message:  "unpaid tag at exit",
		At:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("events.New: %v", err)
	}
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/events", testToken, env)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ingest status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/alerts?unacked=true", testToken, nil)
	var alerts []store.Alert
	decodeBody(t, resp, &alerts)
	if len(alerts) != 1 {
		t.Fatalf("got %d unacked alerts, want 1", len(alerts))
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/alerts/"+alerts[0].ID+"/ack", testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ack status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/alerts?unacked=true", testToken, nil)
	alerts = nil
	decodeBody(t, resp, &alerts)
	if len(alerts) != 0 {
		t.Errorf("got %d unacked alerts after ack, want 0", len(alerts))
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/alerts/no-such-id/ack", testToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("ack unknown alert status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestAckIsAudited(t *testing.T) {
	_, srv, s := testGateway(t)

	opToken, err := s.CreateOperator(context.Background(), "clerk")
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	env, err := events.New(events.KindTheftAlert, events.TheftAlert{
		EPC: "E20011",
		At:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("events.New: %v", err)
	}
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/events", testToken, env)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ingest status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/alerts", testToken, nil)
	var alerts []store.Alert
	decodeBody(t, resp, &alerts)
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/alerts/"+alerts[0].ID+"/ack", opToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ack status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/audit?event="+audit.EventAlertAck, testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit query status = %d", resp.StatusCode)
	}
	var entries []audit.Entry
	decodeBody(t, resp, &entries)
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(entries))
	}
	if entries[0].Actor != "clerk" {
		t.Errorf("Actor = %q, want %q", entries[0].Actor, "clerk")
	}
	if entries[0].Target != alerts[0].ID {
		t.Errorf("Target = %q, want %q", entries[0].Target, alerts[0].ID)
	}
}

func TestLinkAndResolveTag(t *testing.T) {
	_, srv, _ := testGateway(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/tags", testToken, linkTagRequest{
		EPC:     "E20042",
		Barcode: "4006381333931",
		Product: "wireless earbuds",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("link status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/tags/E20042", testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d", resp.StatusCode)
	}
	var link store.TagLink
	decodeBody(t, resp, &link)
	if link.Barcode != "4006381333931" {
		t.Errorf("Barcode = %q, want %q", link.Barcode, "4006381333931")
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/tags/E20777", testToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("resolve unknown status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/tags", testToken, linkTagRequest{EPC: "E1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("link without barcode status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestPairQRReturnsPNG(t *testing.T) {
	_, srv, _ := testGateway(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/pair.png", testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("body does not start with the PNG signature")
	}
}

func TestResolveAddr(t *testing.T) {
	tests := []struct {
		bind string
		port int
		want string
	}{
		{bind: "", port: 8791, want: "127.0.0.1:8791"},
		{bind: "loopback", port: 8791, want: "127.0.0.1:8791"},
		{bind: "lan", port: 9000, want: "0.0.0.0:9000"},
		{bind: "all", port: 9000, want: "0.0.0.0:9000"},
		{bind: "10.0.0.5", port: 80, want: "10.0.0.5:80"},
	}
	for _, tt := range tests {
		if got := resolveAddr(tt.bind, tt.port); got != tt.want {
			t.Errorf("resolveAddr(%q, %d) = %q, want %q", tt.bind, tt.port, got, tt.want)
		}
	}
}

func TestQueryLimit(t *testing.T) {
	for _, tt := range []struct {
		raw  string
		want int
	}{
		{raw: "", want: 100},
		{raw: "25", want: 25},
		{raw: "-3", want: 100},
		{raw: "abc", want: 100},
	} {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/scans?limit=%s", tt.raw), nil)
		if got := queryLimit(req, 100); got != tt.want {
			t.Errorf("queryLimit(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
