// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// qop-mock-gateway serves an in-process QOP gateway for local development.
// It prints PORT:<n> once listening and serves until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Query-farm/qop-go/qop"
	"github.com/Query-farm/qop-go/qop/qoptest"

	"github.com/spf13/pflag"
)

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

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		host         string
		port         int
		httpPort     int
		version      string
		capabilities []string
		redirect     string
		verbose      bool
	)
	fs := pflag.NewFlagSet("qop-mock-gateway", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&host, "host", "127.0.0.1", "listen host")
	fs.IntVar(&port, "port", 0, "listen port for gRPC and the redirect check (0 picks a free port)")
	fs.IntVar(&httpPort, "http-port", 0, "also serve the redirect check on this port")
	fs.StringVar(&version, "qop-version", qoptest.DefaultVersion, "reported QOP version")
	fs.StringSliceVar(&capabilities, "capability", []string{qop.CapabilityJobStreamingState, qop.CapabilityInputStream},
		"reported server capability (repeatable)")
	fs.StringVar(&redirect, "redirect", "", "answer the redirect check with this host:port")
	fs.BoolVarP(&verbose, "verbose", "v", false, "log debug output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	gw := qoptest.New(
		qoptest.WithVersion(version),
		qoptest.WithCapabilities(capabilities...),
		qoptest.WithResults(demoResults),
		qoptest.WithSamples(demoSamples()),
		qoptest.WithLogger(logger),
	)
	if err := gw.Start(net.JoinHostPort(host, strconv.Itoa(port))); err != nil {
		return err
	}
	defer gw.Close()
	if redirect != "" {
		gw.SetRedirect(redirect)
	}
	fmt.Fprintf(stdout, "PORT:%d\n", gw.Port())
	if f, ok := stdout.(*os.File); ok {
		f.Sync()
	}
	logger.Info("mock gateway listening", "addr", gw.Addr())

	if httpPort != 0 {
		lis, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(httpPort)))
		if err != nil {
			return fmt.Errorf("listen redirect port: %w", err)
		}
		srv := &http.Server{Handler: gw, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("redirect server failed", "err", err)
			}
		}()
		defer srv.Close()
		logger.Info("redirect check listening", "addr", lis.Addr().String())
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func demoResults() []*qoptest.Result {
	counts := qoptest.Int64Result("counts")
	stamps := qoptest.Timestamps("counts")
	for i := int64(0); i < 100; i++ {
		counts.AppendInt64(i * i)
		stamps.AppendInt64(i * 4)
	}
	counts.ChunkItems = 16
	return []*qoptest.Result{
		qoptest.SingleInt64("answer", 42),
		qoptest.SingleFloat64("fidelity", 0.987),
		counts,
		stamps,
		qoptest.Float64Result("phase", 0, 0.25, 0.5, 0.75),
	}
}

func demoSamples() *qoptest.Samples {
	const n = 64
	analog := make([]float64, n)
	digital := make([]bool, n)
	for i := range analog {
		analog[i] = float64(i%16) / 16
		digital[i] = i%8 < 4
	}
	return qoptest.NewSamples(
		map[string][]float64{"con1:1-1": analog},
		map[string][]bool{"con1:1-1": digital},
	)
}
