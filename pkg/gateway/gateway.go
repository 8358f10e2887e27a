package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/retailscope/gatewatch/pkg/audit"
	"github.com/retailscope/gatewatch/pkg/bus"
	"github.com/retailscope/gatewatch/pkg/store"
	"github.com/retailscope/gatewatch/pkg/telemetry"
)

// Gateway serves the live event stream (WebSocket and SSE), the ingest
// endpoint gate readers post to, and the query API the dashboards use.
type Gateway struct {
	server      *http.Server
	router      *chi.Mux
	store       *store.Store
	bus         bus.MessageBus
	audit       *audit.Logger
	logger      *slog.Logger
	authToken   string
	externalURL string
}

type Config struct {
	Bind        string
	Port        int
	AuthToken   string
	ExternalURL string
	Store       *store.Store
	Bus         bus.MessageBus
	Audit       *audit.Logger
	Logger      *slog.Logger
}

func New(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(countRequests)

	addr := resolveAddr(cfg.Bind, cfg.Port)
	externalURL := cfg.ExternalURL
	if externalURL == "" {
		externalURL = "http://" + addr
	}

	g := &Gateway{
		router:      r,
		store:       cfg.Store,
		bus:         cfg.Bus,
		audit:       cfg.Audit,
		logger:      cfg.Logger,
		authToken:   cfg.AuthToken,
		externalURL: strings.TrimRight(externalURL, "/"),
	}

	g.registerRoutes()

	g.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return g
}

func (g *Gateway) registerRoutes() {
	g.router.Get("/healthz", g.handleHealthz)
	g.router.Get("/readyz", g.handleReadyz)
	g.router.Handle("/metrics", promhttp.Handler())

	g.router.Group(func(r chi.Router) {
		if g.authToken != "" {
			r.Use(g.authMiddleware)
		}
		r.Get("/ws", g.handleWebSocket)
		r.Get("/events", g.handleSSE)

		r.Route("/api", func(r chi.Router) {
			r.Post("/events", g.handleIngest)
			r.Get("/scans", g.handleScans)
			r.Get("/alerts", g.handleAlerts)
			r.Post("/alerts/{id}/ack", g.handleAckAlert)
			r.Post("/tags", g.handleLinkTag)
			r.Get("/tags/{epc}", g.handleResolveTag)
			r.Get("/audit", g.handleAudit)
			r.Get("/pair.png", g.handlePairQR)
		})
	})
}

func (g *Gateway) Start(ctx context.Context) error {
	logger := telemetry.FromContext(ctx)
	logger.Info("gateway listening", slog.String("addr", g.server.Addr))

	ln, err := net.Listen("tcp", g.server.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return g.shutdown()
	case err := <-errCh:
		return err
	}
}

func (g *Gateway) shutdown() error {
	g.logger.Info("gateway shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.server.Shutdown(ctx)
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (g *Gateway) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ready"}`)
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		telemetry.Metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
	})
}

type actorKey struct{}

// authMiddleware accepts the static gateway token or any operator token
// registered in the store. The resolved actor name travels on the
// request context for the audit trail.
func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		actor, ok := g.resolveActor(r.Context(), token)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok {
		return actor
	}
	return "gateway"
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		// allow ws/sse clients that cannot set headers
		return r.URL.Query().Get("token")
	}
	return token
}

func (g *Gateway) resolveActor(ctx context.Context, token string) (string, bool) {
	if token == g.authToken {
		return "gateway", true
	}
	if g.store == nil {
		return "", false
	}
	op, err := g.store.VerifyOperatorToken(ctx, token)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.logger.Error("operator token lookup failed", slog.String("err", err.Error()))
		}
		return "", false
	}
	return op.Name, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func resolveAddr(bind string, port int) string {
	var host string
	switch bind {
	case "lan", "all":
		host = "0.0.0.0"
	case "loopback", "":
		host = "127.0.0.1"
	default:
		host = bind
	}
	return fmt.Sprintf("%s:%d", host, port)
}
