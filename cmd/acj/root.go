package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/go-acj/infrastructure/middleware"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	logLevel    string
	logFormat   string
	metrics     bool
	metricsAddr string
	trace       bool
}

// runtimeDeps is the observability stack built from globalOptions.
type runtimeDeps struct {
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *middleware.PrometheusMetrics
	tracer   trace.TracerProvider
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "acj",
		Short: "Adaptive comparative judgement sessions",
		Long: `acj ranks a set of items from pairwise judgements. It selects the
most informative pair for each trial, updates Bradley-Terry quality scores
after every answer and records the trials for later analysis.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	pf.BoolVar(&opts.metrics, "metrics", false, "print Prometheus metrics to stdout when the command finishes")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	pf.BoolVar(&opts.trace, "trace", false, "write trial spans to stderr")

	root.AddCommand(newSimulateCmd(opts), newReplayCmd(opts), newCombineCmd(opts))
	return root
}

// setup builds the logger, metrics registry and tracer provider.
func (o *globalOptions) setup(cmd *cobra.Command) (*runtimeDeps, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	deps := &runtimeDeps{
		logger:   logger,
		registry: reg,
		metrics:  middleware.NewPrometheusMetrics(reg),
		tracer:   noop.NewTracerProvider(),
		shutdown: func(context.Context) error { return nil },
	}

	var shutdowns []func(context.Context) error
	if o.trace {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(cmd.ErrOrStderr()), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		deps.tracer = tp
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	if o.metricsAddr != "" {
		stop, err := serveMetrics(o.metricsAddr, reg, logger)
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, stop)
	}

	deps.shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		if o.metrics {
			errs = append(errs, dumpMetrics(cmd.OutOrStdout(), reg))
		}
		return errors.Join(errs...)
	}
	return deps, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	hopts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q: want text or json", format)
	}
}

// serveMetrics exposes reg on addr until the returned stop function runs.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return srv.Shutdown, nil
}

// dumpMetrics writes every acj metric family in the Prometheus text format.
func dumpMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "acj_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}
