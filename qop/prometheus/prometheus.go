// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package qopprom records Prometheus metrics for QOP gateway calls.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	hook := qopprom.NewHook("lab", registry)
//	m, err := qop.NewManager(ctx, host, qop.WithCallHook(hook))
package qopprom

import (
	"context"
	"time"

	"github.com/Query-farm/qop-go/qop"

	"github.com/prometheus/client_golang/prometheus"
)

// Hook implements qop.CallHook with Prometheus metrics. All metrics are
// prefixed with "{namespace}_qop_".
type Hook struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
}

var _ qop.CallHook = (*Hook)(nil)

// NewHook creates the metrics and registers them with registerer.
func NewHook(namespace string, registerer prometheus.Registerer) *Hook {
	if namespace == "" {
		namespace = "qop"
	}

	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "qop",
			Name:      "call_duration_seconds",
			Help:      "Duration of gateway calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "call_type", "status"},
	)

	errors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "qop",
			Name:      "call_errors_total",
			Help:      "Total number of failed gateway calls",
		},
		[]string{"service", "method", "kind"},
	)

	messages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "qop",
			Name:      "received_messages_total",
			Help:      "Total number of messages received from the gateway",
		},
		[]string{"service", "method"},
	)

	bytes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "qop",
			Name:      "received_bytes_total",
			Help:      "Total payload bytes received from the gateway",
		},
		[]string{"service", "method"},
	)

	registerer.MustRegister(duration, errors, messages, bytes)

	return &Hook{duration: duration, errors: errors, messages: messages, bytes: bytes}
}

func (h *Hook) OnCallStart(ctx context.Context, info qop.CallInfo) (context.Context, qop.HookToken) {
	return ctx, time.Now()
}

func (h *Hook) OnCallEnd(ctx context.Context, token qop.HookToken, info qop.CallInfo, stats *qop.CallStatistics, err error) {
	status := "success"
	if err != nil {
		status = "error"
		h.errors.WithLabelValues(info.Service, info.Method, errorKind(err)).Inc()
	}
	if start, ok := token.(time.Time); ok {
		h.duration.WithLabelValues(info.Service, info.Method, info.CallType, status).Observe(time.Since(start).Seconds())
	}
	if stats != nil {
		h.messages.WithLabelValues(info.Service, info.Method).Add(float64(stats.Messages))
		h.bytes.WithLabelValues(info.Service, info.Method).Add(float64(stats.PayloadBytes))
	}
}

func errorKind(err error) string {
	if k := qop.KindOf(err); k != "" {
		return string(k)
	}
	return "Error"
}
