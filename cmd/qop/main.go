// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// qop is a command line client for a Quantum Machines gateway.
//
// Usage:
//
//	qop [flags] <command>
//
// Commands:
//
//	version      print the client and server versions
//	health       run a strict health check
//	qms          list the open quantum machines
//	controllers  list the attached controllers
//	fetch        print or save a result stream (--job, --stream, --out file|gs://bucket/object)
//	close-all    close every open quantum machine
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Query-farm/qop-go/qop"
	qopotel "github.com/Query-farm/qop-go/qop/otel"
	qopprom "github.com/Query-farm/qop-go/qop/prometheus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type options struct {
	host       string
	port       int
	token      string
	cluster    string
	timeout    time.Duration
	config     string
	trace      bool
	metrics    bool
	prometheus bool
	zstd       bool
	verbose    bool

	job    string
	stream string
	out    string
	flat   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(o *options, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("qop", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.host, "host", "", "gateway host (default: user config, then "+qop.DefaultHost+")")
	fs.IntVar(&o.port, "port", 0, "gateway port (default: user config, then probe 80 and 9510)")
	fs.StringVar(&o.token, "token", "", "user token sent as a bearer authorization")
	fs.StringVar(&o.cluster, "cluster", "", "cluster name")
	fs.DurationVar(&o.timeout, "timeout", 60*time.Second, "timeout of every gateway call")
	fs.StringVar(&o.config, "config", "", "user config file (default: ~/.qm/config.json)")
	fs.BoolVar(&o.trace, "trace", false, "write OpenTelemetry spans to stderr")
	fs.BoolVar(&o.metrics, "metrics", false, "write OpenTelemetry metrics to stderr on exit")
	fs.BoolVar(&o.prometheus, "prometheus", false, "write Prometheus call metrics to stderr on exit")
	fs.BoolVar(&o.zstd, "zstd", false, "compress calls with zstd")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log debug output")

	fs.StringVar(&o.job, "job", "", "job id (fetch)")
	fs.StringVar(&o.stream, "stream", "", "result stream name (fetch)")
	fs.StringVar(&o.out, "out", "", "save the stream to this file or gs://bucket/object instead of printing it (fetch)")
	fs.BoolVar(&o.flat, "flat", false, "fetch structured results in their flat layout (fetch)")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: qop [flags] version|health|qms|controllers|fetch|close-all\n\nFlags:\n")
		fs.PrintDefaults()
	}
	return fs
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	var o options
	fs := newFlagSet(&o, stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected one command, got %d", fs.NArg())
	}
	command := fs.Arg(0)
	if !validCommand(command) {
		return fmt.Errorf("unknown command %q", command)
	}
	if command == "fetch" && (o.job == "" || o.stream == "") {
		return errors.New("fetch needs --job and --stream")
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	opts := []qop.Option{
		qop.WithLogger(logger),
		qop.WithTimeout(o.timeout),
	}
	if o.port != 0 {
		opts = append(opts, qop.WithPort(o.port))
	}
	if o.token != "" {
		opts = append(opts, qop.WithUserToken(o.token))
	}
	if o.cluster != "" {
		opts = append(opts, qop.WithClusterName(o.cluster))
	}
	if o.zstd {
		opts = append(opts, qop.WithCompression(qop.CompressorName))
	}
	if o.config != "" {
		uc, err := qop.LoadUserConfig(o.config)
		if err != nil {
			return err
		}
		opts = append(opts, qop.WithUserConfig(uc))
	}

	hooks, shutdown, err := setupTelemetry(o, stderr)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, shutdown(context.Background())) }()
	if len(hooks) > 0 {
		opts = append(opts, qop.WithCallHook(hooks))
	}

	m, err := qop.NewManager(ctx, o.host, opts...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, m.Close()) }()

	return dispatch(ctx, m, command, o, stdout)
}

func validCommand(name string) bool {
	switch name {
	case "version", "health", "qms", "controllers", "fetch", "close-all":
		return true
	}
	return false
}

func dispatch(ctx context.Context, m *qop.Manager, command string, o options, stdout io.Writer) error {
	switch command {
	case "version":
		v := m.Version()
		fmt.Fprintf(stdout, "client %s\nserver %s\n", v.Client, v.Server)
		return nil
	case "health":
		if err := m.PerformHealthCheck(ctx, true); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "healthy")
		return nil
	case "qms":
		ids, err := m.ListOpenQMs(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(stdout, id)
		}
		return nil
	case "controllers":
		cs, err := m.GetControllers(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tHOSTNAME\tTYPE")
		for _, c := range cs {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Hostname, c.Type)
		}
		return tw.Flush()
	case "fetch":
		return fetch(ctx, m, o, stdout)
	case "close-all":
		return m.CloseAllQMs(ctx)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func fetch(ctx context.Context, m *qop.Manager, o options, stdout io.Writer) error {
	res, err := m.Job(o.job).Results(ctx)
	if err != nil {
		return err
	}
	h, ok := res.Get(o.stream)
	if !ok {
		return fmt.Errorf("job %s has no result %q (have %s)", o.job, o.stream, strings.Join(res.Names(), ", "))
	}
	var fopts []qop.FetchOption
	if o.flat {
		fopts = append(fopts, qop.FlatStruct())
	}

	if o.out != "" {
		w, err := createOutput(ctx, o.out)
		if err != nil {
			return err
		}
		if err := h.SaveTo(ctx, w, fopts...); err != nil {
			abortOutput(w, o.out)
			return err
		}
		return w.Close()
	}

	switch r := h.(type) {
	case *qop.SingleResult:
		v, err := r.FetchAll(ctx, fopts...)
		if err != nil {
			return err
		}
		if arr, ok := v.(*qop.NDArray); ok {
			defer arr.Release()
			v = arr.Values()
		}
		fmt.Fprintln(stdout, v)
	case *qop.MultiResult:
		arr, err := r.FetchAll(ctx, fopts...)
		if err != nil {
			return err
		}
		defer arr.Release()
		for _, v := range arr.Values() {
			fmt.Fprintln(stdout, v)
		}
	}
	return nil
}

// setupTelemetry builds the call hooks the flags ask for. The returned
// function flushes and stops every exporter.
func setupTelemetry(o options, stderr io.Writer) (qop.MultiHook, func(context.Context) error, error) {
	var hooks qop.MultiHook
	var shutdowns []func(context.Context) error

	cfg := qopotel.DefaultConfig()
	cfg.EnableTracing = o.trace
	cfg.EnableMetrics = o.metrics
	cfg.Propagator = propagation.TraceContext{}
	if o.trace {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
		cfg.TracerProvider = tp
		shutdowns = append(shutdowns, tp.Shutdown)
	}
	if o.metrics {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(stderr), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
		cfg.MeterProvider = mp
		shutdowns = append(shutdowns, mp.Shutdown)
	}
	if o.trace || o.metrics {
		hooks = append(hooks, qopotel.NewHook(cfg))
	}

	if o.prometheus {
		registry := prometheus.NewRegistry()
		hooks = append(hooks, qopprom.NewHook("qop", registry))
		shutdowns = append(shutdowns, func(context.Context) error {
			return dumpRegistry(registry, stderr)
		})
	}

	return hooks, func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

func dumpRegistry(g prometheus.Gatherer, w io.Writer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
