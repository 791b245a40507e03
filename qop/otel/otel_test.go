// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qopotel_test

import (
	"testing"
	"time"

	"github.com/Query-farm/qop-go/qop"
	qopotel "github.com/Query-farm/qop-go/qop/otel"
	"github.com/Query-farm/qop-go/qop/qoptest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc/metadata"
)

type fixture struct {
	gw     *qoptest.Gateway
	m      *qop.Manager
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gw := qoptest.New()
	require.NoError(t, gw.Start("127.0.0.1:0"))
	t.Cleanup(func() { gw.Close() })

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	cfg := qopotel.DefaultConfig()
	cfg.TracerProvider = tp
	cfg.MeterProvider = mp
	cfg.Propagator = propagation.TraceContext{}
	cfg.CustomAttributes = []attribute.KeyValue{attribute.String("lab", "test")}

	m, err := qop.NewManager(t.Context(), gw.Host(),
		qop.WithPort(gw.Port()),
		qop.WithUserConfig(&qop.UserConfig{}),
		qop.WithTimeout(5*time.Second),
		qop.WithCallHook(qopotel.NewHook(cfg)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return &fixture{gw: gw, m: m, spans: spans, reader: reader}
}

func (f *fixture) span(t *testing.T, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range f.spans.Ended() {
		if s.Name() == name {
			return s
		}
	}
	require.Failf(t, "span not recorded", "no span named %s", name)
	return nil
}

func attrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func Test_SpansForCalls(t *testing.T) {
	f := setup(t)

	s := f.span(t, "qm.grpc.frontend.Frontend/GetVersion")
	a := attrs(s)
	assert.Equal(t, "grpc", a["rpc.system"].AsString())
	assert.Equal(t, qop.MethodGetVersion, a["rpc.method"].AsString())
	assert.Equal(t, qop.CallTypeUnary, a["rpc.qop.call_type"].AsString())
	assert.Equal(t, "test", a["lab"].AsString())
	assert.Equal(t, int64(1), a["rpc.qop.messages"].AsInt64())
	assert.Equal(t, codes.Ok, s.Status().Code)

	var traceparents int
	for _, md := range f.gw.Headers() {
		if len(md.Get("traceparent")) > 0 {
			traceparents++
		}
	}
	assert.Equal(t, len(f.gw.Headers()), traceparents)
}

func Test_SpanForFailedCall(t *testing.T) {
	f := setup(t)
	f.gw.Fail(qop.MethodListOpenQuantumMachines, qop.ErrRequest, metadata.MD{})

	_, err := f.m.ListOpenQMs(t.Context())
	require.Error(t, err)

	s := f.span(t, "qm.grpc.frontend.Frontend/ListOpenQuantumMachines")
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.NotEmpty(t, attrs(s)["rpc.qop.error_type"].AsString())
	require.NotEmpty(t, s.Events())
	assert.Equal(t, "exception", s.Events()[0].Name)
}

func Test_CallMetrics(t *testing.T) {
	f := setup(t)
	_, err := f.m.ListOpenQMs(t.Context())
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(t.Context(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = m
	}
	require.Contains(t, names, "rpc.client.duration")
	requests, ok := names["rpc.client.requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var listCalls int64
	for _, dp := range requests.DataPoints {
		if v, _ := dp.Attributes.Value("rpc.method"); v.AsString() == qop.MethodListOpenQuantumMachines {
			listCalls += dp.Value
		}
	}
	assert.Equal(t, int64(1), listCalls)
}

func Test_ErrorType(t *testing.T) {
	assert.Equal(t, "TimeoutError", qopotel.ErrorType(qop.ErrTimeout))
	assert.Equal(t, "ServerError", qopotel.ErrorType(&qop.ServerError{Code: qop.CodeMissingJob}))
	assert.Equal(t, "Error", qopotel.ErrorType(assert.AnError))
}
