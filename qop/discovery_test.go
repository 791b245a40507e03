// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveH2C serves h over plaintext HTTP/2 and returns its address.
func serveH2C(t *testing.T, h http.HandlerFunc) ConnectionDetails {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var protocols http.Protocols
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)
	srv := &http.Server{Handler: h, Protocols: &protocols, ReadHeaderTimeout: time.Second}
	go srv.Serve(lis)
	t.Cleanup(func() { srv.Close() })
	return ConnectionDetails{Host: "127.0.0.1", Port: lis.Addr().(*net.TCPAddr).Port}
}

func Test_CandidatePorts(t *testing.T) {
	assert.Equal(t, []int{80, 9510}, candidatePorts(0, 0))
	assert.Equal(t, []int{80, 9510, 9600}, candidatePorts(9600, 0))
	assert.Equal(t, []int{80, 443, 9510}, candidatePorts(443, 0))
	assert.Equal(t, []int{80, 9510}, candidatePorts(80, 0))
	assert.Equal(t, []int{1234}, candidatePorts(9600, 1234))
}

func Test_GatewayHeaders(t *testing.T) {
	h := gatewayHeaders(map[string]string{"x-extra": "1"}, "", "")
	assert.Equal(t, map[string]string{
		"x-extra":         "1",
		HeaderService:     GatewayServiceName,
		HeaderClusterName: AnyClusterName,
		HeaderAnyCluster:  "true",
	}, h)

	h = gatewayHeaders(nil, "lab", "tok")
	assert.Equal(t, "lab", h[HeaderClusterName])
	assert.Equal(t, "Bearer tok", h[HeaderAuthorization])
	assert.NotContains(t, h, HeaderAnyCluster)
}

func Test_CheckRedirectFollowsLocation(t *testing.T) {
	type seen struct {
		proto       int
		method      string
		contentType string
		auth        string
	}
	got := make(chan seen, 1)
	details := serveH2C(t, func(w http.ResponseWriter, r *http.Request) {
		got <- seen{r.ProtoMajor, r.Method, r.Header.Get("Content-Type"), r.Header.Get(HeaderAuthorization)}
		w.Header().Set(HeaderLocation, "newhost:4242")
		w.Header().Set(HeaderOctaves, "oct1,10.0.0.1:80")
		w.WriteHeader(http.StatusFound)
	})
	details.Headers = gatewayHeaders(nil, "", "tok")

	client := newRedirectClient(nil, time.Second)
	defer client.CloseIdleConnections()

	loc, octaves, err := checkRedirect(t.Context(), client, details, loggerOrDefault(nil))
	require.NoError(t, err)
	assert.Equal(t, Location{Host: "newhost", Port: 4242}, loc)
	assert.Equal(t, map[string]Location{"oct1": {Host: "10.0.0.1", Port: 80}}, octaves)
	assert.Equal(t, seen{2, http.MethodPost, "application/grpc", "Bearer tok"}, <-got)
}

func Test_CheckRedirectKeepsLocation(t *testing.T) {
	details := serveH2C(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client := newRedirectClient(nil, time.Second)
	defer client.CloseIdleConnections()

	loc, octaves, err := checkRedirect(t.Context(), client, details, loggerOrDefault(nil))
	require.NoError(t, err)
	assert.Equal(t, Location{Host: details.Host, Port: details.Port}, loc)
	assert.Nil(t, octaves)

	// Redirects to a bare IP are not URLs; they must still be honored.
	redirecting := serveH2C(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderLocation, "127.0.0.1:9")
		w.WriteHeader(http.StatusFound)
	})
	loc, _, err = checkRedirect(t.Context(), client, redirecting, loggerOrDefault(nil))
	require.NoError(t, err)
	assert.Equal(t, Location{Host: "127.0.0.1", Port: 9}, loc)
}

func Test_CheckRedirectUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	require.NoError(t, lis.Close())

	client := newRedirectClient(nil, time.Second)
	defer client.CloseIdleConnections()
	details := ConnectionDetails{Host: "127.0.0.1", Port: port}

	loc, octaves, err := checkRedirect(t.Context(), client, details, loggerOrDefault(nil))
	require.NoError(t, err)
	assert.Equal(t, Location{Host: "127.0.0.1", Port: port}, loc)
	assert.Nil(t, octaves)
}
