package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"cosmossdk.io/log"
	"github.com/gorilla/mux"

	"github.com/openalpha/lrt-vault/api/handlers"
	"github.com/openalpha/lrt-vault/api/middleware"
	"github.com/openalpha/lrt-vault/api/websocket"
	"github.com/openalpha/lrt-vault/app"
	"github.com/openalpha/lrt-vault/metrics"
)

// Server represents the API server
type Server struct {
	app        *app.App
	config     app.APIConfig
	logger     log.Logger
	httpServer *http.Server

	router  *mux.Router
	handler http.Handler
	hub     *websocket.Hub

	// Rate limiter, nil when disabled
	rateLimiter *middleware.RateLimiter

	metrics *metrics.Collector
}

// NewServer builds the API of a. Committed events are pushed to websocket
// subscribers from the moment the server is created. A nil collector disables
// request metrics.
func NewServer(a *app.App, collector *metrics.Collector) *Server {
	cfg := a.Config().API
	s := &Server{
		app:     a,
		config:  cfg,
		logger:  a.Logger().With("module", "api"),
		router:  mux.NewRouter(),
		hub:     websocket.NewHub(nil, collector),
		metrics: collector,
	}

	s.router.Use(s.metricsMiddleware)
	s.router.HandleFunc("/ws", s.hub.ServeWS)
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
	handlers.NewVaultHandler(a, collector).RegisterRoutes(s.router, cfg.APIKey)

	// Apply middleware chain: CORS -> RateLimit -> Router
	var handler http.Handler = s.router
	if cfg.RateLimit > 0 {
		rlConfig := middleware.DefaultRateLimitConfig()
		rlConfig.IPRequestsPerSecond = cfg.RateLimit
		rlConfig.IPBurst = 2 * cfg.RateLimit
		s.rateLimiter = middleware.NewRateLimiter(rlConfig, collector)
		handler = middleware.RateLimitMiddleware(s.rateLimiter)(handler)
	}
	s.handler = corsMiddleware(handler)

	go s.hub.Run()
	a.Subscribe(s.publish)

	return s
}

// Handler returns the complete HTTP handler, middleware included
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the websocket hub
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// Start serves HTTP until Stop is called
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("API server starting",
		"addr", addr,
		"rate_limit", s.config.RateLimit,
		"api_key", s.config.APIKey != "",
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Stop()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// publish forwards committed events to websocket subscribers. It runs under
// the app lock and never blocks.
func (s *Server) publish(events []app.Event) {
	height := int64(0)
	for i := range events {
		e := &events[i]
		height = e.Height
		s.hub.BroadcastEvent(&websocket.EventMessage{
			Seq:        e.Seq,
			Height:     e.Height,
			Time:       e.Time.Unix(),
			Type:       e.Type,
			Attributes: e.Attributes,
		})
	}
	if height > 0 {
		s.hub.BroadcastHeight(&websocket.HeightMessage{Height: height, Events: len(events)})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		w.Header().Set("Access-Control-Expose-Headers", "X-Height, X-RateLimit-Limit, X-RateLimit-Remaining")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade through the recorder
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Label by route template to keep cardinality bounded
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		s.metrics.RecordAPIRequest(r.Method, path, strconv.Itoa(rec.status), timer.ElapsedMs())
	})
}
