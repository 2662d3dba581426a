package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/0xReLogic/TryHackMe/internal/config"
	"github.com/0xReLogic/TryHackMe/internal/logging"
	"github.com/0xReLogic/TryHackMe/internal/ratelimit"
	"github.com/0xReLogic/TryHackMe/internal/tracing"
)

// IPResolver yields the public IP, or a fallback string when it cannot be determined.
type IPResolver interface {
	IP(ctx context.Context) string
}

// Renderer produces the greeting body.
type Renderer interface {
	Render(name, ip string) (string, error)
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tryhackme_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "status"},
	)
	httpRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tryhackme_http_request_latency_seconds",
			Help:    "Latency of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	httpRateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tryhackme_http_rate_limited_total",
			Help: "Total number of HTTP requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
)

// Server serves the greeting page on / and Prometheus metrics on /metrics.
type Server struct {
	cfg      config.Config
	ips      IPResolver
	renderer Renderer
	limiter  *ratelimit.RateLimiter

	httpServer *http.Server
}

// New wires a server. limiter may be nil to disable rate limiting.
func New(cfg config.Config, ips IPResolver, renderer Renderer, limiter *ratelimit.RateLimiter) *Server {
	s := &Server{
		cfg:      cfg,
		ips:      ips,
		renderer: renderer,
		limiter:  limiter,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// Handler returns the routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s.instrument("/", http.HandlerFunc(s.greet)))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// methodLabel keeps the method label set closed.
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodOptions, http.MethodConnect, http.MethodTrace:
		return method
	}
	return "OTHER"
}

// instrument wraps next with tracing, rate limiting, logging and metrics. route is the
// mux pattern next is registered under; it keys the limiter and the route label, so
// arbitrary request paths never create buckets or series.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := tracing.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracing.StartSpan(ctx, "http_request")
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
			attribute.String("http.user_agent", r.UserAgent()),
		)

		if traceID := tracing.TraceIDFromContext(ctx); traceID != "" {
			ctx = logging.WithTraceID(ctx, traceID)
		}
		r = r.WithContext(ctx)

		if s.limiter != nil {
			if !s.limiter.Allow(route) {
				httpRateLimitedTotal.WithLabelValues(route).Inc()
				logging.LogRateLimited(ctx, route)
				span.SetStatus(codes.Error, "rate limited")
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		latency := time.Since(start)

		span.SetAttributes(
			attribute.Int("http.status_code", rec.status),
			attribute.Int64("http.response.size", int64(rec.size)),
			attribute.Float64("http.duration_ms", float64(latency.Milliseconds())),
		)
		if rec.status >= 400 {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		logging.LogHTTPRequest(ctx, r.Method, r.URL.Path, rec.status, latency.Milliseconds(), int64(rec.size))

		method := methodLabel(r.Method)
		httpRequestsTotal.WithLabelValues(method, strconv.Itoa(rec.status)).Inc()
		httpRequestLatency.WithLabelValues(method).Observe(latency.Seconds())
	})
}

func (s *Server) greet(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = s.cfg.DefaultName
	}
	ip := s.ips.IP(r.Context())

	_, span := tracing.StartSpan(r.Context(), "render_greeting")
	body, err := s.renderer.Render(name, ip)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()
		logging.LogRenderFailure(r.Context(), err)
		msg := http.StatusText(http.StatusInternalServerError)
		if s.cfg.Debug {
			msg = err.Error()
		}
		http.Error(w, msg, http.StatusInternalServerError)
		return
	}
	span.End()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// Start listens on the configured address and blocks until the server stops.
func (s *Server) Start() error {
	logging.LogHTTPServerStart(s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
