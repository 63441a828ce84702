// Package httpserver hosts the revealer and oracle APIs.
//
// BaseServer mounts every RouteRegistrar on a chi router with request IDs,
// panic recovery, slog request logging and optional CORS for browser
// clients. Next to the service routes it serves:
//
//   - /livez: process is up
//   - /readyz: not draining and ReadyCheck (the revealer's round store) passes
//   - /drain, /undrain: toggle readiness by hand
//   - /debug/pprof: when EnablePprof is set
//
// Prometheus metrics from MetricsRegistry are served on a separate
// MetricsAddr listener. Shutdown drains first, keeping the API up for what
// remains of DrainDuration, then stops both listeners.
//
//	reg := prometheus.NewRegistry()
//	revealer, _ := services.NewRevealerService(ctx, &services.RevealerConfig{
//	    Round:       roundConfig,
//	    Coprocessor: oracleClient,
//	    Oracle:      trustedOracle,
//	    Store:       store,
//	    Metrics:     metrics.NewRoundMetrics(reg, common.MetricsNamespace),
//	})
//
//	srv, _ := httpserver.New(&httpserver.HTTPServerConfig{
//	    ListenAddr:      ":8080",
//	    MetricsAddr:     ":9090",
//	    MetricsRegistry: reg,
//	    ReadyCheck:      store.Ping,
//	    DrainDuration:   5 * time.Second,
//	    Log:             log,
//	}, revealer)
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
