// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/Query-farm/qop-go/qop"
	"github.com/Query-farm/qop-go/qop/qoptest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoResults() []*qoptest.Result {
	return []*qoptest.Result{
		qoptest.SingleInt64("answer", 42),
		qoptest.Int64Result("data", 1, 2, 3),
		qoptest.Timestamps("data", 100, 200, 300),
		qoptest.Float64Result("phase", 0.5, 1.5),
	}
}

// runJob executes the test program and returns the job with its results.
func runJob(t *testing.T, gw *qoptest.Gateway) (*qop.Job, *qop.JobResults) {
	t.Helper()
	m := connect(t, gw)
	qm := openMachine(t, m)
	job, err := qm.Execute(t.Context(), testProgram)
	require.NoError(t, err)
	res, err := job.Results(t.Context())
	require.NoError(t, err)
	res.SetPollInterval(10 * time.Millisecond)
	return job, res
}

func Test_SingleResult(t *testing.T) {
	gw := startGateway(t, qoptest.WithResults(demoResults))
	_, res := runJob(t, gw)
	ctx := t.Context()

	assert.Equal(t, []string{"answer", "data", "data_timestamps", "phase"}, res.Names())

	answer, err := res.Single("answer")
	require.NoError(t, err)
	assert.Equal(t, "answer", answer.Name())
	v, err := answer.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = answer.Fetch(ctx, qop.Index(3))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = answer.FetchAll(ctx, qop.FlatStruct())
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	require.NoError(t, answer.WaitForValues(ctx, 1, time.Second))
	require.ErrorIs(t, answer.WaitForValues(ctx, 2, time.Second), qop.ErrValidation)

	h, ok := res.Get("answer")
	require.True(t, ok)
	assert.IsType(t, &qop.SingleResult{}, h)
	h, ok = res.Get("data")
	require.True(t, ok)
	assert.IsType(t, &qop.MultiResult{}, h)
	_, ok = res.Get("missing")
	assert.False(t, ok)
}

func Test_SchemaMismatch(t *testing.T) {
	gw := startGateway(t, qoptest.WithResults(demoResults))
	_, res := runJob(t, gw)

	_, err := res.Single("data")
	require.ErrorIs(t, err, qop.ErrSchemaMismatch)
	_, err = res.Multi("answer")
	require.ErrorIs(t, err, qop.ErrSchemaMismatch)
	_, err = res.Multi("missing")
	require.ErrorIs(t, err, qop.ErrResult)
}

func Test_MultiResultWithTimestamps(t *testing.T) {
	gw := startGateway(t, qoptest.WithResults(demoResults))
	_, res := runJob(t, gw)
	ctx := t.Context()

	data, err := res.Multi("data")
	require.NoError(t, err)

	arr, err := data.FetchAll(ctx)
	require.NoError(t, err)
	defer arr.Release()
	assert.Equal(t, []int{3}, arr.Shape)
	assert.Equal(t, []any{
		map[string]any{"value": int64(1), "timestamp": int64(100)},
		map[string]any{"value": int64(2), "timestamp": int64(200)},
		map[string]any{"value": int64(3), "timestamp": int64(300)},
	}, arr.Values())

	tail, err := data.Fetch(ctx, qop.From(1))
	require.NoError(t, err)
	defer tail.Release()
	assert.Equal(t, map[string]any{"value": int64(2), "timestamp": int64(200)}, tail.At(0))

	flat, err := data.FetchAll(ctx, qop.FlatStruct())
	require.NoError(t, err)
	defer flat.Release()
	values, err := flat.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, values)
}

func Test_MultiResultSlices(t *testing.T) {
	gw := startGateway(t, qoptest.WithResults(func() []*qoptest.Result {
		r := qoptest.Int64Result("counts", 10, 20, 30, 40, 50)
		r.ChunkItems = 2
		return []*qoptest.Result{r, qoptest.Float64Result("phase", 0.5, 1.5)}
	}))
	_, res := runJob(t, gw)
	ctx := t.Context()

	counts, err := res.Multi("counts")
	require.NoError(t, err)

	n, err := counts.CountSoFar(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	for _, tc := range []struct {
		name string
		sel  qop.Selector
		want []int64
	}{
		{"all", qop.All(), []int64{10, 20, 30, 40, 50}},
		{"span", qop.Span(1, 4), []int64{20, 30, 40}},
		{"clamped", qop.Span(3, 99), []int64{40, 50}},
		{"from", qop.From(4), []int64{50}},
		{"empty", qop.Span(4, 2), []int64{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			arr, err := counts.Fetch(ctx, tc.sel, qop.FlatStruct())
			require.NoError(t, err)
			defer arr.Release()
			got, err := arr.Int64s()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err = counts.Fetch(ctx, qop.All().Step(2))
	require.ErrorIs(t, err, qop.ErrUnsupportedSlice)

	structured, err := counts.Fetch(ctx, qop.Span(0, 2))
	require.NoError(t, err)
	defer structured.Release()
	assert.Equal(t, []any{map[string]any{"value": int64(10)}, map[string]any{"value": int64(20)}}, structured.Values())

	phase, err := res.Multi("phase")
	require.NoError(t, err)
	arr, err := phase.FetchAll(ctx, qop.FlatStruct())
	require.NoError(t, err)
	defer arr.Release()
	floats, err := arr.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5}, floats)
}

func Test_FailedChunk(t *testing.T) {
	gw := startGateway(t, qoptest.WithResults(func() []*qoptest.Result {
		r := qoptest.Int64Result("counts", 1, 2, 3, 4)
		r.ChunkItems, r.FailChunk = 1, 2
		return []*qoptest.Result{r}
	}))
	_, res := runJob(t, gw)

	counts, err := res.Multi("counts")
	require.NoError(t, err)
	_, err = counts.FetchAll(t.Context())
	require.ErrorIs(t, err, qop.ErrResult)
	require.ErrorContains(t, err, "server failed to stream result")
}

func Test_WaitForValues(t *testing.T) {
	gw := startGateway(t, qoptest.WithResults(func() []*qoptest.Result {
		return []*qoptest.Result{qoptest.Int64Result("counts", 1)}
	}))
	job, res := runJob(t, gw)
	ctx := t.Context()
	gw.UpdateJob(job.ID(), func(j *qoptest.Job) { j.Status, j.Done = qop.JobStatusRunning, false })

	counts, err := res.Multi("counts")
	require.NoError(t, err)

	processing, err := counts.IsProcessing(ctx)
	require.NoError(t, err)
	assert.True(t, processing)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(2); i <= 4; i++ {
			time.Sleep(20 * time.Millisecond)
			gw.UpdateJob(job.ID(), func(j *qoptest.Job) { j.Results[0].AppendInt64(i) })
		}
	}()
	require.NoError(t, counts.WaitForValues(ctx, 4, 5*time.Second))
	<-done

	arr, err := counts.FetchAll(ctx, qop.FlatStruct())
	require.NoError(t, err)
	defer arr.Release()
	got, err := arr.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, got)

	err = counts.WaitForValues(ctx, 100, 50*time.Millisecond)
	require.ErrorIs(t, err, qop.ErrTimeout)
	require.ErrorContains(t, err, "was not done in time")

	go func() {
		time.Sleep(30 * time.Millisecond)
		gw.UpdateJob(job.ID(), func(j *qoptest.Job) { j.Status, j.Done = qop.JobStatusCompleted, true })
	}()
	completed, err := res.WaitForAllValues(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Zero(t, gw.Calls(qop.MethodGetJobState))
}

func Test_WaitForAllValuesWithJobState(t *testing.T) {
	gw := startGateway(t,
		qoptest.WithCapabilities(qop.CapabilityJobStreamingState),
		qoptest.WithResults(demoResults),
	)
	job, res := runJob(t, gw)
	ctx := t.Context()
	gw.UpdateJob(job.ID(), func(j *qoptest.Job) { j.Done = false })

	data, err := res.Multi("data")
	require.NoError(t, err)
	_, err = data.WaitForAllValues(ctx, 50*time.Millisecond)
	require.ErrorIs(t, err, qop.ErrTimeout)

	gw.UpdateJob(job.ID(), func(j *qoptest.Job) { j.Closed, j.DataLoss = true, true })
	completed, err := data.WaitForAllValues(ctx, time.Second)
	require.NoError(t, err)
	assert.False(t, completed)
	loss, err := data.HasDataLoss(ctx)
	require.NoError(t, err)
	assert.True(t, loss)
	assert.Positive(t, gw.Calls(qop.MethodGetJobState))
}

func Test_SaveTo(t *testing.T) {
	gw := startGateway(t, qoptest.WithResults(demoResults))
	job, res := runJob(t, gw)
	ctx := t.Context()

	data, err := res.Multi("data")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, data.SaveTo(ctx, &buf))

	saved, err := qop.ReadSavedResult(&buf)
	require.NoError(t, err)
	defer saved.Array.Release()
	assert.Equal(t, job.ID(), saved.JobID)
	assert.Equal(t, "data", saved.Stream)
	assert.Equal(t, []int{3}, saved.Array.Shape)
	assert.Equal(t, map[string]any{"value": int64(3), "timestamp": int64(300)}, saved.Array.At(2))

	answer, err := res.Single("answer")
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, answer.SaveTo(ctx, &buf, qop.FlatStruct()))
	saved, err = qop.ReadSavedResult(&buf)
	require.NoError(t, err)
	defer saved.Array.Release()
	got, err := saved.Array.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, got)
}

func Test_ExecutionReport(t *testing.T) {
	gw := startGateway(t)
	m := connect(t, gw)
	ctx := t.Context()

	gw.AddJob(&qoptest.Job{
		ID:     "job-report",
		Status: qop.JobStatusError,
		Done:   true,
		Errors: []qop.ExecutionError{
			{ErrorCode: 11, Severity: qop.SeverityWarning, Message: "overflow"},
			{ErrorCode: 12, Message: "timing"},
		},
		Metadata: qop.ProgramStreamMetadata{StreamMetadata: []qop.StreamMetadataEntry{{
			StreamName:    "data",
			IterationData: []qop.IterationData{{IterationVariableName: "n"}},
		}}},
		Results: []*qoptest.Result{qoptest.Int64Result("data", 7)},
	})
	gw.AddJob(&qoptest.Job{
		ID:   "job-broken",
		Done: true,
		Metadata: qop.ProgramStreamMetadata{ExtractionErrors: []qop.StreamMetadataExtractionError{
			{Location: "line 3", Error: "unsupported loop"},
		}},
	})

	job := m.Job("job-report")
	errs, err := job.ExecutionErrors(ctx)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, qop.SeverityWarning, errs[0].Severity)
	assert.Equal(t, "timing", errs[1].Message)

	res, err := job.Results(ctx)
	require.NoError(t, err)
	meta, err := res.StreamMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "n", meta["data"].IterationData[0].IterationVariableName)

	data, err := res.Multi("data")
	require.NoError(t, err)
	entry, err := data.StreamMetadata(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "data", entry.StreamName)

	h, err := data.Header(ctx)
	require.NoError(t, err)
	assert.True(t, h.HasExecutionErrors)
	assert.Equal(t, int64(1), h.CountSoFar)

	broken, err := m.Job("job-broken").Results(ctx)
	require.NoError(t, err)
	_, err = broken.ProgramMetadata(ctx)
	require.ErrorIs(t, err, qop.ErrResult)

	none, err := m.Job("job-none").ExecutionErrors(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}
