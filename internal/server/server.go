package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/statestore"
	"github.com/jpalmerr/statestore/internal/feed"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// maxBodyBytes caps POST bodies.
	maxBodyBytes = 1 << 20

	metricsNamespace = "statestore"

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "statestore"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Server exposes a store over HTTP.
//
// Server provides these endpoints:
//   - GET /: Serves the embedded inspector page (when assets are set)
//   - GET /api/state: Current state as JSON
//   - POST /api/state: Merge a JSON object into state
//   - GET /api/data: Current data as JSON
//   - POST /api/data: Overlay a JSON object on data
//   - GET /api/sse: Server-Sent Events stream of state changes
//   - GET /metrics: Prometheus metrics
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store  *statestore.Store[string]
	feed   feed.Feed
	port   int
	assets fs.FS
	title  string
	logger *slog.Logger

	router     chi.Router
	registry   *prometheus.Registry
	updates    prometheus.Counter
	sub        *statestore.Subscription[string]
	httpServer *http.Server

	mu   sync.Mutex
	addr net.Addr
	done chan struct{}
}

// NewServer creates a new HTTP [Server] for st.
//
// Parameters:
//   - st: Store to expose
//   - f: Feed that fans change events out to SSE clients
//   - port: TCP port to listen on (0 picks a free port)
//   - assets: Embedded filesystem containing the inspector page (may be nil)
//   - title: Page title (defaults to "statestore" if empty)
//   - logger: Logger for server events
//
// NewServer subscribes to every update of st; the subscription is released
// when the server shuts down or [Server.Close] is called. The server is not
// started until [Server.Start] is called.
func NewServer(st *statestore.Store[string], f feed.Feed, port int, assets fs.FS, title string, logger *slog.Logger) (*Server, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if f == nil {
		return nil, errors.New("feed is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:    st,
		feed:     f,
		port:     port,
		assets:   assets,
		title:    title,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		done:     make(chan struct{}),
	}
	s.registerMetrics()

	sub, err := st.Subscribe(s.publish, statestore.All[string]())
	if err != nil {
		return nil, fmt.Errorf("subscribe to store: %w", err)
	}
	s.sub = sub

	s.router = s.routes()
	return s, nil
}

// registerMetrics creates the server's collectors on its own registry.
func (s *Server) registerMetrics() {
	factory := promauto.With(s.registry)

	s.updates = factory.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Name:        "updates_total",
		Help:        "Total number of accepted state updates",
		ConstLabels: prometheus.Labels{"store_id": s.store.ID()},
	})

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "feed_dropped_total",
		Help:      "Total number of change events dropped for slow SSE clients",
	}, func() float64 {
		return float64(s.feed.Dropped())
	})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "feed_subscribers",
		Help:      "Number of connected SSE clients",
	}, func() float64 {
		return float64(s.feed.Subscribers())
	})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        "listeners",
		Help:        "Number of active store subscriptions",
		ConstLabels: prometheus.Labels{"store_id": s.store.ID()},
	}, func() float64 {
		return float64(s.store.ListenerCount())
	})
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleGetState)
		r.Post("/state", s.handleSetState)
		r.Get("/data", s.handleGetData)
		r.Post("/data", s.handleSetData)
		r.Get("/sse", s.handleSSE)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	if s.assets != nil {
		r.Get("/", s.handleDashboard)
	}

	return r
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the address the server is listening on, or nil before
// [Server.Start] succeeds.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Done returns a channel that is closed once a started server has finished
// shutting down.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Close releases the server's store subscription. It does not stop a
// running listener; cancel the context passed to [Server.Start] for that.
func (s *Server) Close() {
	s.sub.Unsubscribe()
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		defer close(s.done)
		<-ctx.Done()
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("server listening", "addr", ln.Addr().String(), "store_id", s.store.ID())
	return nil
}

// publish is the store listener that feeds SSE clients.
func (s *Server) publish(newState, oldState statestore.State[string]) {
	s.updates.Inc()
	s.feed.Publish(feed.ChangeEvent{
		StoreID: s.store.ID(),
		Changed: changedFields(newState, oldState),
		State:   newState,
	})
}

// changedFields lists the top-level fields whose values differ between the
// two states, in ascending order.
func changedFields(newState, oldState statestore.State[string]) []string {
	changed := []string{}
	for _, k := range slices.Sorted(maps.Keys(newState)) {
		old, ok := oldState[k]
		if !ok || !reflect.DeepEqual(old, newState[k]) {
			changed = append(changed, k)
		}
	}
	return changed
}

// handleDashboard serves the inspector page.
func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.State())
}

func (s *Server) handleGetData(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Data())
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	partial, ok := s.decodeObject(w, r)
	if !ok {
		return
	}
	s.store.SetState(partial)
	s.writeJSON(w, http.StatusOK, s.store.State())
}

func (s *Server) handleSetData(w http.ResponseWriter, r *http.Request) {
	partial, ok := s.decodeObject(w, r)
	if !ok {
		return
	}
	s.store.SetData(partial)
	s.writeJSON(w, http.StatusOK, s.store.Data())
}

// decodeObject reads a JSON object from the request body. On failure it
// writes a 400 response and returns false.
func (s *Server) decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON object: %v", err), http.StatusBadRequest)
		return nil, false
	}
	if body == nil {
		http.Error(w, "invalid JSON object: null", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleSSE streams change events via Server-Sent Events.
//
// The first event carries the current state with Seq 0. The handler uses
// write deadlines to prevent goroutine leaks when clients are slow or
// disconnected.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(ev feed.ChangeEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("failed to encode change event", "error", err, "seq", ev.Seq)
			return nil
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.Seq, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// subscribe before reading state so no update falls between the two
	ch := s.feed.Subscribe()
	defer s.feed.Unsubscribe(ch)

	initial := feed.ChangeEvent{
		StoreID: s.store.ID(),
		Changed: []string{},
		State:   s.store.State(),
		At:      time.Now(),
	}
	if err := writeAndFlush(initial); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeAndFlush(ev); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
