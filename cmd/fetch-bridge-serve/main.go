// fetch-bridge-serve runs the echo application behind the bridge on a local
// net/http or fasthttp server, standing in for a serverless host runtime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/fastly/fetch-bridge-go/bridge"
	"github.com/fastly/fetch-bridge-go/internal/config"
	"github.com/fastly/fetch-bridge-go/internal/echoapp"
	"github.com/fastly/fetch-bridge-go/internal/logging"
	"github.com/fastly/fetch-bridge-go/platform/fasthttpadapter"
	"github.com/fastly/fetch-bridge-go/platform/nethttpadapter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fetch-bridge-serve: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("fetch-bridge-serve", flag.ExitOnError)
	configPath := fs.String("config", "fetch-bridge.yaml", "path to YAML config file")
	envFile := fs.String("env", ".env", "path to .env file")
	fs.Parse(os.Args[1:])

	configSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			configSet = true
		}
	})

	cfg, err := config.Load(config.ResolvePath(*configPath, configSet), *envFile)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("effective_config_loaded",
		zap.String("addr", cfg.Server.Addr),
		zap.String("server", cfg.Server.Kind),
		zap.String("mode", cfg.Bridge.Mode),
		zap.String("default_scheme", cfg.Bridge.DefaultScheme),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	adapter, err := bridge.NewFromFactory(echoapp.New, cfg.Bridge.Mode, &bridge.Options{
		DefaultScheme:   cfg.Bridge.DefaultScheme,
		ContextResolver: echoapp.Resolve,
		BufferSize:      cfg.Bridge.BufferSize,
		Logger:          log.Named("bridge"),
		Metrics:         bridge.NewMetrics(reg),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	switch cfg.Server.Kind {
	case config.ServerFastHTTP:
		return serveFastHTTP(ctx, cfg, log, adapter, metrics)
	default:
		return serveNetHTTP(ctx, cfg, log, adapter, metrics)
	}
}

func serveNetHTTP(ctx context.Context, cfg *config.Config, log *zap.Logger, a *bridge.Adapter, metrics http.Handler) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz)
	if cfg.Metrics.Path != "" {
		mux.Handle(cfg.Metrics.Path, metrics)
	}
	mux.Handle("/", nethttpadapter.Handler(a, log))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server_listening", zap.String("addr", cfg.Server.Addr), zap.String("server", config.ServerNetHTTP))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("server_shutdown_started")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server_shutdown_complete")
	return nil
}

func serveFastHTTP(ctx context.Context, cfg *config.Config, log *zap.Logger, a *bridge.Adapter, metrics http.Handler) error {
	app := fasthttpadapter.Handler(a, log)
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(metrics)

	handler := func(c *fasthttp.RequestCtx) {
		switch path := string(c.Path()); {
		case path == "/healthz":
			c.Response.Header.Set("Content-Type", "application/json")
			c.SetStatusCode(fasthttp.StatusOK)
			c.WriteString(`{"status":"ok"}`)
		case cfg.Metrics.Path != "" && path == cfg.Metrics.Path:
			metricsHandler(c)
		default:
			app(c)
		}
	}

	srv := &fasthttp.Server{
		Handler:           handler,
		Name:              "fetch-bridge",
		StreamRequestBody: true,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server_listening", zap.String("addr", cfg.Server.Addr), zap.String("server", config.ServerFastHTTP))
		errCh <- srv.ListenAndServe(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server_shutdown_started")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server_shutdown_complete")
	return nil
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
