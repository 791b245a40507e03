// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/Query-farm/qop-go/qop"
	"github.com/Query-farm/qop-go/qop/qoptest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGateway(t *testing.T) *qoptest.Gateway {
	t.Helper()
	gw := qoptest.New()
	require.NoError(t, gw.Start("127.0.0.1:0"))
	t.Cleanup(func() { gw.Close() })
	gw.AddJob(&qoptest.Job{
		ID:     "job-1",
		Status: qop.JobStatusCompleted,
		Done:   true,
		Results: []*qoptest.Result{
			qoptest.SingleInt64("answer", 42),
			qoptest.Int64Result("counts", 3, 5),
		},
	})
	return gw
}

func runCLI(t *testing.T, gw *qoptest.Gateway, args ...string) (string, string, error) {
	t.Helper()
	base := []string{
		"--host", gw.Host(),
		"--port", strconv.Itoa(gw.Port()),
		"--config", filepath.Join(t.TempDir(), "config.json"),
	}
	var stdout, stderr bytes.Buffer
	err := run(t.Context(), append(base, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func Test_Version(t *testing.T) {
	gw := startGateway(t)
	out, _, err := runCLI(t, gw, "version")
	require.NoError(t, err)
	assert.Equal(t, "client "+qop.Version+"\nserver "+qoptest.DefaultVersion+"\n", out)
}

func Test_HealthAndControllers(t *testing.T) {
	gw := startGateway(t)
	out, _, err := runCLI(t, gw, "health")
	require.NoError(t, err)
	assert.Equal(t, "healthy\n", out)

	out, _, err = runCLI(t, gw, "controllers")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "con1")
}

func Test_QMs(t *testing.T) {
	gw := startGateway(t)
	out, _, err := runCLI(t, gw, "qms")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, _, err = runCLI(t, gw, "close-all")
	require.NoError(t, err)
}

func Test_Fetch(t *testing.T) {
	gw := startGateway(t)

	out, _, err := runCLI(t, gw, "fetch", "--job", "job-1", "--stream", "answer")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)

	out, _, err = runCLI(t, gw, "fetch", "--job", "job-1", "--stream", "counts", "--flat")
	require.NoError(t, err)
	assert.Equal(t, "3\n5\n", out)

	path := filepath.Join(t.TempDir(), "counts.arrow")
	_, _, err = runCLI(t, gw, "--out", path, "fetch", "--job", "job-1", "--stream", "counts")
	require.NoError(t, err)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	saved, err := qop.ReadSavedResult(f)
	require.NoError(t, err)
	defer saved.Array.Release()
	assert.Equal(t, "job-1", saved.JobID)
	assert.Equal(t, []int{2}, saved.Array.Shape)

	_, _, err = runCLI(t, gw, "fetch", "--job", "job-1", "--stream", "nope")
	require.ErrorContains(t, err, "answer, counts")
}

func Test_Prometheus(t *testing.T) {
	gw := startGateway(t)
	_, stderr, err := runCLI(t, gw, "--prometheus", "qms")
	require.NoError(t, err)
	assert.Contains(t, stderr, "qop_qop_call_duration_seconds")
}

func Test_UsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Error(t, run(t.Context(), nil, &stdout, &stderr))
	require.ErrorContains(t, run(t.Context(), []string{"bogus"}, &stdout, &stderr), "unknown command")
	require.ErrorContains(t, run(t.Context(), []string{"fetch"}, &stdout, &stderr), "--job and --stream")
}

func Test_ParseGCSURL(t *testing.T) {
	bucket, object, ok, err := parseGCSURL("gs://results/run-7/counts.arrow")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "results", bucket)
	assert.Equal(t, "run-7/counts.arrow", object)

	_, _, ok, err = parseGCSURL("/tmp/counts.arrow")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, bad := range []string{"gs://", "gs://bucket", "gs://bucket/", "gs:///object"} {
		_, _, ok, err = parseGCSURL(bad)
		assert.True(t, ok, bad)
		require.Error(t, err, bad)
	}
}
