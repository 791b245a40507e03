// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qopprom_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Query-farm/qop-go/qop"
	qopprom "github.com/Query-farm/qop-go/qop/prometheus"
	"github.com/Query-farm/qop-go/qop/qoptest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// counterValue returns the value of the series of name whose method label
// is method.
func counterValue(t *testing.T, g prometheus.Gatherer, name, method string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "method" && l.GetValue() == method {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func Test_HookRecordsCalls(t *testing.T) {
	gw := qoptest.New()
	require.NoError(t, gw.Start("127.0.0.1:0"))
	t.Cleanup(func() { gw.Close() })

	registry := prometheus.NewRegistry()
	m, err := qop.NewManager(t.Context(), gw.Host(),
		qop.WithPort(gw.Port()),
		qop.WithUserConfig(&qop.UserConfig{}),
		qop.WithTimeout(5*time.Second),
		qop.WithCallHook(qopprom.NewHook("lab", registry)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	_, err = m.ListOpenQMs(t.Context())
	require.NoError(t, err)
	_, err = m.ListOpenQMs(t.Context())
	require.NoError(t, err)

	gw.Fail(qop.MethodGetControllers, status.Error(codes.DeadlineExceeded, "slow"), nil)
	_, err = m.GetControllers(t.Context())
	require.ErrorIs(t, err, qop.ErrTimeout)

	assert.Equal(t, 2.0, counterValue(t, registry, "lab_qop_received_messages_total", qop.MethodListOpenQuantumMachines))
	assert.Positive(t, counterValue(t, registry, "lab_qop_received_bytes_total", qop.MethodGetVersion))

	expected := `
# HELP lab_qop_call_errors_total Total number of failed gateway calls
# TYPE lab_qop_call_errors_total counter
lab_qop_call_errors_total{kind="TimeoutError",method="GetControllers",service="qm.grpc.frontend.Frontend"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "lab_qop_call_errors_total"))
	n, err := testutil.GatherAndCount(registry, "lab_qop_call_duration_seconds")
	require.NoError(t, err)
	assert.Positive(t, n)
}

func Test_DefaultNamespace(t *testing.T) {
	registry := prometheus.NewRegistry()
	hook := qopprom.NewHook("", registry)

	info := qop.CallInfo{Service: qop.FrontendService, Method: qop.MethodHalt, CallType: qop.CallTypeUnary}
	ctx, token := hook.OnCallStart(t.Context(), info)
	hook.OnCallEnd(ctx, token, info, &qop.CallStatistics{Messages: 1, PayloadBytes: 12}, nil)

	assert.Equal(t, 12.0, counterValue(t, registry, "qop_qop_received_bytes_total", qop.MethodHalt))
	n, err := testutil.GatherAndCount(registry, "qop_qop_call_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = testutil.GatherAndCount(registry, "qop_qop_call_errors_total")
	require.NoError(t, err)
	assert.Zero(t, n)
}
