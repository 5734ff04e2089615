package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/Phillezi/lifeline/internal/config"
	"github.com/Phillezi/lifeline/pkg/lifecycle"
	"github.com/Phillezi/lifeline/pkg/probe"
	"github.com/Phillezi/lifeline/pkg/readiness"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a demo service with probes and graceful shutdown",
	Long: "Serve the /health, /live, /ready and /metrics probes plus a /work endpoint that holds a beacon " +
		"for the requested duration. SIGTERM starts the shutdown sequence, a second signal forces exit.",
	RunE: runServe,
}

type serveFlags struct {
	addr            string
	period          int
	threshold       int
	orchestrated    bool
	gracefulTimeout time.Duration
	handlerTimeout  time.Duration
	verbosity       int
	warmup          time.Duration
}

var sf serveFlags

func init() {
	bindServeFlags(serveCmd.Flags(), &sf)
	rootCmd.AddCommand(serveCmd)
}

func bindServeFlags(fs *pflag.FlagSet, f *serveFlags) {
	fs.StringVar(&f.addr, "addr", "", "Probe server listen address (default :9000)")
	fs.IntVar(&f.period, "readiness-period-seconds", 0, "Orchestrator readiness probe period")
	fs.IntVar(&f.threshold, "readiness-failure-threshold", 0, "Orchestrator readiness probe failure threshold")
	fs.BoolVar(&f.orchestrated, "orchestrated", false, "Force orchestrator mode (detected from KUBERNETES_SERVICE_HOST otherwise)")
	fs.DurationVar(&f.gracefulTimeout, "graceful-timeout", 0, "Upper bound for draining and cleanup")
	fs.DurationVar(&f.handlerTimeout, "handler-timeout", 0, "Upper bound for each shutdown handler")
	fs.IntVarP(&f.verbosity, "verbose", "v", 0, "Log verbosity")
	fs.DurationVar(&f.warmup, "warmup", time.Second, "Simulated startup task duration")
}

// applyFlags overrides cfg with the flags that were set explicitly.
func applyFlags(fs *pflag.FlagSet, f *serveFlags, cfg *config.Config) {
	if fs.Changed("addr") {
		cfg.Addr = f.addr
	}
	if fs.Changed("readiness-period-seconds") {
		cfg.ReadinessPeriodSeconds = f.period
	}
	if fs.Changed("readiness-failure-threshold") {
		cfg.ReadinessFailureThreshold = f.threshold
	}
	if fs.Changed("orchestrated") {
		v := f.orchestrated
		cfg.Orchestrated = &v
	}
	if fs.Changed("graceful-timeout") {
		cfg.GracefulTimeout = f.gracefulTimeout
	}
	if fs.Changed("handler-timeout") {
		cfg.HandlerTimeout = f.handlerTimeout
	}
	if fs.Changed("verbose") {
		cfg.Verbosity = f.verbosity
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyFlags(cmd.Flags(), &sf, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	stdr.SetVerbosity(cfg.Verbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("lifeline")

	orchestrated := lifecycle.DetectOrchestrator()
	if cfg.Orchestrated != nil {
		orchestrated = *cfg.Orchestrated
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	warmup := readiness.Start(ctx, "warmup", func(ctx context.Context) error {
		select {
		case <-time.After(sf.warmup):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	l := lifecycle.NewLifecycle(
		lifecycle.WithContext(ctx),
		lifecycle.WithLogger(logger),
		lifecycle.WithOrchestrated(orchestrated),
		lifecycle.WithReadinessProbe(cfg.ReadinessPeriodSeconds, cfg.ReadinessFailureThreshold),
		lifecycle.WithGracefulTimeout(cfg.GracefulTimeout),
		lifecycle.WithHandlerTimeout(cfg.HandlerTimeout),
		lifecycle.WithStartupTasks(warmup),
		lifecycle.WithMetrics(reg),
		lifecycle.WithPrompt(true),
		lifecycle.WithShutdownCallback(func(context.Context) error {
			logger.Info("all work drained, cleaning up")
			return nil
		}),
	)
	lifecycle.Register(l)

	srv := probe.NewServer(l,
		probe.WithLogger(logger.WithName("probe")),
		probe.WithMetrics(reg),
		probe.WithPortFallback(!orchestrated),
	)
	srv.Handle("GET /work", workHandler(l, logger))

	if err := srv.Listen(ctx, cfg.Addr); err != nil {
		return err
	}
	go func() {
		if err := srv.Serve(); err != nil {
			logger.Error(err, "probe server stopped")
		}
	}()

	go func() {
		if err := l.SetReady(ctx, true); err != nil {
			logger.Error(err, "startup failed, shutting down")
			_ = l.Shutdown(ctx)
			return
		}
		logger.Info("ready", "addr", srv.Addr().String(), "orchestrated", orchestrated)
	}()

	runErr := l.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "stopping probe server")
	}

	return runErr
}

// workHandler holds a beacon for ?duration= (default 1s) to simulate in-flight work.
func workHandler(l lifecycle.Managed, logger logr.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if l.IsShuttingDown() {
			http.Error(w, lifecycle.ReasonShuttingDown, http.StatusServiceUnavailable)
			return
		}

		d := time.Second
		if v := r.URL.Query().Get("duration"); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			d = parsed
		}

		b := l.Beacons().Create(map[string]any{"path": r.URL.Path, "remote": r.RemoteAddr, "duration": d.String()})
		defer b.Die()
		logger.V(1).Info("work started", "id", b.ID(), "duration", d)

		select {
		case <-time.After(d):
		case <-r.Context().Done():
			if !errors.Is(r.Context().Err(), context.Canceled) {
				logger.V(1).Info("work aborted", "id", b.ID(), "error", r.Context().Err())
			}
			return
		}
		fmt.Fprintf(w, "done after %s\n", d)
	}
}
