package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/flashbots/richest-revealer/common"
	"github.com/flashbots/richest-revealer/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// RouteRegistrar is implemented by the revealer and oracle services.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

type HTTPServerConfig struct {
	ListenAddr string

	// MetricsAddr serves MetricsRegistry on /metrics. Empty disables it.
	MetricsAddr     string
	MetricsRegistry *prometheus.Registry

	EnablePprof bool

	// CORSOrigins lets browser clients call the API. Empty disables CORS.
	CORSOrigins []string

	// ReadyCheck, when set, must pass for /readyz to report ready. The
	// revealer points it at its round store.
	ReadyCheck func(ctx context.Context) error

	Log *slog.Logger

	// DrainDuration is how long Shutdown keeps serving after /readyz turns
	// unhealthy, so load balancers stop routing first.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds in-flight requests at shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// BaseServer hosts a service API next to health, drain, profiling and a
// separate metrics listener.
type BaseServer struct {
	cfg *HTTPServerConfig
	log *slog.Logger

	draining  atomic.Bool
	drainedAt atomic.Time

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
}

// New builds the server and mounts the routes of every registrar.
func New(cfg *HTTPServerConfig, registrars ...RouteRegistrar) (*BaseServer, error) {
	reg := cfg.MetricsRegistry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metricsSrv, err := metrics.New(common.MetricsNamespace, cfg.MetricsAddr, reg)
	if err != nil {
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	srv := &BaseServer{
		cfg:        cfg,
		log:        log,
		metricsSrv: metricsSrv,
	}
	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.routes(registrars),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return srv, nil
}

func (srv *BaseServer) routes(registrars []RouteRegistrar) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	if len(srv.cfg.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: srv.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	mux.Group(func(r chi.Router) {
		r.Use(srv.requestLogger)
		for _, registrar := range registrars {
			registrar.RegisterRoutes(r)
		}

		r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
			writeStatus(w, http.StatusOK, "alive")
		})
		r.Get("/readyz", srv.handleReady)
		r.Get("/drain", srv.handleDrain)
		r.Get("/undrain", srv.handleUndrain)
	})

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *BaseServer) requestLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (srv *BaseServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if srv.draining.Load() {
		writeStatus(w, http.StatusServiceUnavailable, "draining")
		return
	}
	if srv.cfg.ReadyCheck != nil {
		if err := srv.cfg.ReadyCheck(r.Context()); err != nil {
			srv.log.Warn("readiness check failed", "err", err)
			writeStatus(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeStatus(w, http.StatusOK, "ready")
}

func (srv *BaseServer) handleDrain(w http.ResponseWriter, _ *http.Request) {
	if !srv.drain() {
		writeStatus(w, http.StatusOK, "already draining")
		return
	}
	writeStatus(w, http.StatusOK, "draining")
}

func (srv *BaseServer) handleUndrain(w http.ResponseWriter, _ *http.Request) {
	if !srv.draining.Swap(false) {
		writeStatus(w, http.StatusOK, "already ready")
		return
	}
	srv.log.Info("server undrained")
	writeStatus(w, http.StatusOK, "ready")
}

// drain marks the server unready. It reports false if it already was.
func (srv *BaseServer) drain() bool {
	if srv.draining.Swap(true) {
		return false
	}
	srv.drainedAt.Store(time.Now())
	srv.log.Info("server draining")
	return true
}

// Handler returns the router, for tests.
func (srv *BaseServer) Handler() http.Handler {
	return srv.srv.Handler
}

// RunInBackground starts the API and, if configured, the metrics listener.
func (srv *BaseServer) RunInBackground() {
	if srv.cfg.MetricsAddr != "" {
		go func() {
			srv.log.Info("starting metrics server", "listenAddress", srv.cfg.MetricsAddr)
			if err := srv.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("metrics server failed", "err", err)
			}
		}()
	}

	go func() {
		srv.log.Info("starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

// Shutdown drains for whatever is left of DrainDuration, then stops both
// listeners within GracefulShutdownDuration each.
func (srv *BaseServer) Shutdown() {
	srv.drain()
	if wait := srv.cfg.DrainDuration - time.Since(srv.drainedAt.Load()); wait > 0 {
		time.Sleep(wait)
	}

	srv.stop("HTTP", srv.srv.Shutdown)
	if srv.cfg.MetricsAddr != "" {
		srv.stop("metrics", srv.metricsSrv.Shutdown)
	}
}

func (srv *BaseServer) stop(name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		srv.log.Error("graceful shutdown failed", "server", name, "err", err)
		return
	}
	srv.log.Info("server stopped", "server", name)
}
