// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/Query-farm/qop-go/qop"
	"github.com/Query-farm/qop-go/qop/qoptest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var testConfig = map[string]any{
	"version": 1,
	"elements": map[string]any{
		"qe1": map[string]any{"intermediate_frequency": 50e6},
	},
}

var testProgram = qop.Program{Body: map[string]any{"script": "measure('readout', 'qe1')"}}

func startGateway(t *testing.T, opts ...qoptest.Option) *qoptest.Gateway {
	t.Helper()
	gw := qoptest.New(opts...)
	require.NoError(t, gw.Start("127.0.0.1:0"))
	t.Cleanup(func() { gw.Close() })
	return gw
}

func connect(t *testing.T, gw *qoptest.Gateway, opts ...qop.Option) *qop.Manager {
	t.Helper()
	m, err := qop.NewManager(t.Context(), gw.Host(), managerOptions(gw.Port(), opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func managerOptions(port int, opts ...qop.Option) []qop.Option {
	return append([]qop.Option{
		qop.WithUserConfig(&qop.UserConfig{}),
		qop.WithPort(port),
		qop.WithTimeout(5 * time.Second),
	}, opts...)
}

func closedPort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	require.NoError(t, lis.Close())
	return port
}

func Test_ManagerConnects(t *testing.T) {
	gw := startGateway(t, qoptest.WithCapabilities(qop.CapabilityJobStreamingState))
	m := connect(t, gw, qop.WithUserToken("tok"), qop.WithClusterName("lab"))

	assert.Equal(t, qoptest.DefaultVersion, m.Version().Server)
	assert.NotEmpty(t, m.Version().Client)
	assert.True(t, m.Capabilities().JobStreamingState)
	assert.False(t, m.Capabilities().InputStream)
	assert.Equal(t, gw.Port(), m.Server().Port)

	require.NotEmpty(t, gw.Headers())
	for _, md := range gw.Headers() {
		assert.Equal(t, []string{"Bearer tok"}, md.Get(qop.HeaderAuthorization))
		assert.Equal(t, []string{"lab"}, md.Get(qop.HeaderClusterName))
		assert.Equal(t, []string{qop.GatewayServiceName}, md.Get(qop.HeaderService))
	}
	assert.Equal(t, 1, gw.Calls("redirect"))
	assert.Equal(t, 1, gw.Calls(qop.MethodHealthCheck))
}

func Test_DetectionFailure(t *testing.T) {
	port := closedPort(t)
	_, err := qop.NewManager(t.Context(), "127.0.0.1", managerOptions(port, qop.WithTimeout(2*time.Second))...)
	require.ErrorIs(t, err, qop.ErrDetection)
	require.ErrorContains(t, err, "Tried connecting to 127.0.0.1:"+strconv.Itoa(port))
}

func Test_RedirectCheck(t *testing.T) {
	target := startGateway(t)
	front := startGateway(t)
	front.SetRedirect(target.Addr())
	front.SetOctaves("oct1," + target.Addr())

	m := connect(t, front)
	assert.Equal(t, front.Port(), m.Server().Port)
	assert.Equal(t, target.Port(), m.Server().Connection.Port)
	assert.Equal(t, map[string]qop.Location{"oct1": {Host: target.Host(), Port: target.Port()}}, m.Server().Octaves)
	assert.Equal(t, 1, front.Calls("redirect"))
	assert.Zero(t, front.Calls(qop.MethodGetVersion))
	assert.Equal(t, 1, target.Calls(qop.MethodGetVersion))

	qm, err := m.OpenQM(t.Context(), testConfig, false)
	require.NoError(t, err)
	assert.Equal(t, []string{qm.ID()}, target.MachineIDs())
	assert.Empty(t, front.MachineIDs())
}

func Test_RedirectFromCallHeader(t *testing.T) {
	target := startGateway(t)
	front := startGateway(t)
	front.Fail(qop.MethodGetVersion, status.Error(codes.Unavailable, "moved"), metadata.Pairs(qop.HeaderLocation, target.Addr()))

	m := connect(t, front)
	assert.Equal(t, front.Port(), m.Server().Port)
	assert.Equal(t, target.Port(), m.Server().Connection.Port)
	assert.Equal(t, 1, front.Calls(qop.MethodGetVersion))
	assert.Equal(t, 1, target.Calls(qop.MethodGetVersion))
}

func Test_HealthCheck(t *testing.T) {
	gw := startGateway(t, qoptest.WithHealth(qop.HealthCheckResponse{Message: "controller unreachable"}))

	_, err := qop.NewManager(t.Context(), gw.Host(), managerOptions(gw.Port())...)
	require.ErrorIs(t, err, qop.ErrHealthCheck)

	m := connect(t, gw, qop.WithStrictHealthCheck(false))
	require.NoError(t, m.PerformHealthCheck(t.Context(), false))
	require.ErrorIs(t, m.PerformHealthCheck(t.Context(), true), qop.ErrHealthCheck)

	lenient := false
	m2, err := qop.NewManager(t.Context(), gw.Host(), qop.WithUserConfig(&qop.UserConfig{StrictHealthCheck: &lenient}), qop.WithPort(gw.Port()))
	require.NoError(t, err)
	require.NoError(t, m2.Close())

	gw.SetHealth(qop.HealthCheckResponse{Ok: true})
	require.NoError(t, m.PerformHealthCheck(t.Context(), true))
}

func Test_MachineLifecycle(t *testing.T) {
	gw := startGateway(t)
	m := connect(t, gw)
	ctx := t.Context()

	qm1, err := m.OpenQM(ctx, testConfig, false)
	require.NoError(t, err)
	qm2, err := m.OpenQM(ctx, testConfig, false)
	require.NoError(t, err)
	assert.NotEqual(t, qm1.ID(), qm2.ID())

	ids, err := m.ListOpenQMs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{qm1.ID(), qm2.ID()}, ids)

	got, err := m.GetQM(ctx, qm1.ID())
	require.NoError(t, err)
	assert.Equal(t, qm1.ID(), got.ID())
	assert.Contains(t, got.Config(), "elements")

	qm3, err := m.OpenQM(ctx, testConfig, true)
	require.NoError(t, err)
	assert.Equal(t, []string{qm3.ID()}, gw.MachineIDs())

	require.NoError(t, qm3.Close(ctx))
	_, err = m.GetQM(ctx, qm3.ID())
	require.ErrorIs(t, err, qop.ErrRequest)

	_, err = m.OpenQM(ctx, testConfig, false)
	require.NoError(t, err)
	require.NoError(t, m.CloseAllQMs(ctx))
	ids, err = m.ListOpenQMs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = m.OpenQM(ctx, map[string]any{}, false)
	require.ErrorIs(t, err, qop.ErrOpenQM)
}

func Test_ControllersAndDebugCommand(t *testing.T) {
	gw := startGateway(t)
	m := connect(t, gw)

	controllers, err := m.GetControllers(t.Context())
	require.NoError(t, err)
	require.Len(t, controllers, 1)
	assert.Equal(t, "con1", controllers[0].Name)

	out, err := m.SendDebugCommand(t.Context(), "con1", "status")
	require.NoError(t, err)
	assert.Equal(t, "con1: status", out)

	_, err = m.SendDebugCommand(t.Context(), "con9", "status")
	require.Error(t, err)

	require.NoError(t, m.ResetDataProcessing(t.Context()))
	require.NoError(t, m.ClearAllJobResults(t.Context()))
}

func Test_DebugData(t *testing.T) {
	gw := startGateway(t)
	m := connect(t, gw, qop.WithDebugData())
	require.NotNil(t, m.DebugData())
	before := m.DebugData().Len()
	assert.Positive(t, before)

	_, err := m.ListOpenQMs(t.Context())
	require.NoError(t, err)
	assert.Equal(t, before+1, m.DebugData().Len())

	plain := connect(t, gw)
	assert.Nil(t, plain.DebugData())
}

func Test_ManagerClose(t *testing.T) {
	gw := startGateway(t)
	m, err := qop.NewManager(t.Context(), gw.Host(), managerOptions(gw.Port())...)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	_, err = m.ListOpenQMs(t.Context())
	require.ErrorIs(t, err, qop.ErrClosed)
}
