// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop_test

import (
	"testing"
	"time"

	"github.com/Query-farm/qop-go/qop"
	"github.com/Query-farm/qop-go/qop/qoptest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMachine(t *testing.T, m *qop.Manager) *qop.QuantumMachine {
	t.Helper()
	qm, err := m.OpenQM(t.Context(), testConfig, true)
	require.NoError(t, err)
	return qm
}

func Test_ExecuteAndControl(t *testing.T) {
	gw := startGateway(t)
	m := connect(t, gw)
	qm := openMachine(t, m)
	ctx := t.Context()

	job, err := qm.Execute(ctx, testProgram)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID()}, gw.JobIDs())

	st, err := job.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, qop.JobStatusCompleted, st)
	by, err := job.UserAdded(ctx)
	require.NoError(t, err)
	assert.Equal(t, "qoptest", by)

	gw.UpdateJob(job.ID(), func(j *qoptest.Job) {
		j.Status, j.Done, j.Paused = qop.JobStatusRunning, false, true
	})
	running, err := job.IsRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running)
	paused, err := job.IsPaused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)
	acq, err := job.IsAcquiringData(ctx)
	require.NoError(t, err)
	assert.Equal(t, qop.HasDataToAcquire, acq)

	current, err := qm.RunningJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, job.ID(), current.ID())

	ok, err := job.Resume(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	paused, err = job.IsPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	ok, err = job.Halt(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	st, err = job.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, qop.JobStatusCanceled, st)
	acq, err = job.IsAcquiringData(ctx)
	require.NoError(t, err)
	assert.Equal(t, qop.NoDataToAcquire, acq)

	current, err = qm.RunningJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)

	st, err = m.Job("job-missing").Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, qop.JobStatusUnknown, st)
}

func Test_ExecuteFailures(t *testing.T) {
	gw := startGateway(t)
	m := connect(t, gw)
	qm := openMachine(t, m)

	_, err := qm.Execute(t.Context(), qop.Program{})
	require.ErrorIs(t, err, qop.ErrQueue)

	require.NoError(t, qm.Close(t.Context()))
	_, err = qm.Execute(t.Context(), testProgram)
	require.ErrorIs(t, err, qop.ErrQueue)
	_, err = qm.Compile(t.Context(), testProgram)
	require.ErrorIs(t, err, qop.ErrCompilation)
}

func Test_CompileAndQueue(t *testing.T) {
	gw := startGateway(t)
	m := connect(t, gw)
	qm := openMachine(t, m)

	programID, err := qm.Compile(t.Context(), testProgram)
	require.NoError(t, err)
	require.NotEmpty(t, programID)

	job, err := qm.AddCompiledToQueue(t.Context(), programID, nil)
	require.NoError(t, err)
	assert.Contains(t, gw.JobIDs(), job.ID())

	_, err = qm.AddCompiledToQueue(t.Context(), "program-unknown", nil)
	require.ErrorIs(t, err, qop.ErrQueue)
}

func Test_PendingJobs(t *testing.T) {
	gw := startGateway(t)
	m := connect(t, gw)
	qm := openMachine(t, m)

	now := time.Now().UTC()
	gw.AddJob(&qoptest.Job{ID: "p1", MachineID: qm.ID(), Status: qop.JobStatusPending, TimeAdded: now})
	gw.AddJob(&qoptest.Job{ID: "p2", MachineID: qm.ID(), Status: qop.JobStatusPending, TimeAdded: now.Add(time.Second)})
	gw.AddJob(&qoptest.Job{ID: "other", MachineID: "qm-elsewhere", Status: qop.JobStatusPending, TimeAdded: now})

	pending, err := qm.PendingJobs(t.Context())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int32(1), pending["p1"].PositionInQueue)
	assert.Equal(t, int32(2), pending["p2"].PositionInQueue)
	assert.Equal(t, "qoptest", pending["p2"].AddedBy)
	assert.True(t, pending["p1"].TimeAdded.Equal(now))

	removed, err := qm.RemovePendingJobs(t.Context(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	pending, err = qm.PendingJobs(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(1), pending["p2"].PositionInQueue)

	removed, err = qm.RemovePendingJobs(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"other"}, gw.JobIDs())
}

func Test_MachineSetters(t *testing.T) {
	gw := startGateway(t)
	m := connect(t, gw)
	qm := openMachine(t, m)
	ctx := t.Context()

	io1 := qop.IntValue(5)
	io2 := qop.BoolValue(true)
	require.NoError(t, qm.SetIOValues(ctx, &io1, &io2))
	values, err := qm.IOValues(ctx)
	require.NoError(t, err)
	assert.Equal(t, qop.IOValues{IntValue: 5, DoubleValue: 5, BooleanValue: true}, values[0])
	assert.Equal(t, qop.IOValues{IntValue: 1, DoubleValue: 1, BooleanValue: true}, values[1])

	fixed := qop.FixedValue(0.25)
	require.NoError(t, qm.SetIOValues(ctx, nil, &fixed))
	values, err = qm.IOValues(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), values[0].IntValue)
	assert.Equal(t, 0.25, values[1].DoubleValue)

	require.NoError(t, qm.SetIntermediateFrequency(ctx, "qe1", 42e6))
	requests := gw.QmRequests()
	require.Len(t, requests, 3)
	assert.Equal(t, qm.ID(), requests[2].QuantumMachineID)
	assert.Nil(t, requests[2].SetIoValues)

	require.NoError(t, qm.Close(ctx))
	require.ErrorIs(t, qm.SetIntermediateFrequency(ctx, "qe1", 42e6), qop.ErrRequest)
	_, err = qm.IOValues(ctx)
	require.ErrorIs(t, err, qop.ErrRequest)
}

func Test_ElementCorrection(t *testing.T) {
	gw := startGateway(t)
	m := connect(t, gw)
	qm := openMachine(t, m)
	ctx := t.Context()

	job, err := qm.Execute(ctx, testProgram)
	require.NoError(t, err)

	c, err := job.GetElementCorrection(ctx, "qe1")
	require.NoError(t, err)
	assert.Equal(t, qop.Matrix{V00: 1, V11: 1}, c)

	want := qop.Matrix{V00: 1.1, V01: 0.1, V10: -0.1, V11: 0.9}
	require.NoError(t, job.SetElementCorrection(ctx, "qe1", want))
	c, err = job.GetElementCorrection(ctx, "qe1")
	require.NoError(t, err)
	assert.Equal(t, want, c)

	err = job.SetElementCorrection(ctx, "qe1", qop.Matrix{V00: 3})
	var se *qop.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, qop.CodeInvalidElementCorrection, se.Code)
	assert.Equal(t, "qe1", se.ElementName)
	require.NotNil(t, se.Correction)
	assert.Equal(t, 3.0, se.Correction.V00)

	_, err = job.GetElementCorrection(ctx, "qe9")
	require.ErrorIs(t, err, &qop.ServerError{Code: qop.CodeMissingElement})

	err = m.Job("job-missing").SetElementCorrection(ctx, "qe1", want)
	require.ErrorIs(t, err, &qop.ServerError{Code: qop.CodeMissingJob})
	require.ErrorIs(t, err, qop.ErrServer)
}

func Test_InsertInputStream(t *testing.T) {
	gw := startGateway(t, qoptest.WithCapabilities(qop.CapabilityInputStream))
	m := connect(t, gw)
	qm := openMachine(t, m)
	ctx := t.Context()

	job, err := qm.Execute(ctx, testProgram)
	require.NoError(t, err)
	gw.UpdateJob(job.ID(), func(j *qoptest.Job) { j.Status, j.Done = qop.JobStatusRunning, false })

	require.NoError(t, job.InsertInputStream(ctx, "amps", []qop.Value{qop.FixedValue(0.5), qop.FixedValue(0.75)}))
	require.NoError(t, job.InsertInputStream(ctx, "amps", []qop.Value{qop.FixedValue(1)}))
	gw.UpdateJob(job.ID(), func(j *qoptest.Job) {
		assert.Equal(t, []any{0.5, 0.75, 1.0}, j.Inputs["amps"])
	})

	err = job.InsertInputStream(ctx, "amps", []qop.Value{qop.FixedValue(1), qop.IntValue(1)})
	require.ErrorIs(t, err, qop.ErrValidation)

	gw.UpdateJob(job.ID(), func(j *qoptest.Job) { j.Done = true })
	err = job.InsertInputStream(ctx, "amps", []qop.Value{qop.IntValue(1)})
	require.ErrorIs(t, err, &qop.ServerError{Code: qop.CodeInvalidJobExecutionStatus})

	err = m.Job("job-missing").InsertInputStream(ctx, "amps", []qop.Value{qop.IntValue(1)})
	require.ErrorIs(t, err, &qop.ServerError{Code: qop.CodeMissingJob})
}

func Test_InsertInputStreamUnsupported(t *testing.T) {
	gw := startGateway(t)
	m := connect(t, gw)
	qm := openMachine(t, m)

	job, err := qm.Execute(t.Context(), testProgram)
	require.NoError(t, err)
	err = job.InsertInputStream(t.Context(), "amps", []qop.Value{qop.IntValue(1)})
	require.ErrorIs(t, err, qop.ErrUnsupported)
	assert.Zero(t, gw.Calls(qop.MethodInsertInputStream))
}

func Test_Simulation(t *testing.T) {
	samples := qoptest.NewSamples(
		map[string][]float64{"con1:1-1": {0.1, 0.2, 0.3}},
		map[string][]bool{"con1:1-2": {true, false, true}},
	)
	samples.ChunkSize = 10
	gw := startGateway(t,
		qoptest.WithSamples(samples),
		qoptest.WithResults(func() []*qoptest.Result {
			return []*qoptest.Result{qoptest.SingleFloat64("fidelity", 0.99)}
		}),
	)
	m := connect(t, gw)
	ctx := t.Context()

	sim, err := m.Simulate(ctx, testConfig, testProgram, qop.SimulateOptions{Duration: 1000})
	require.NoError(t, err)

	out, err := sim.SimulatedSamples(ctx, true, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"con1"}, out.Names())
	con1, ok := out.Controller("con1")
	require.True(t, ok)
	analog, err := con1.Analog["1"].Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, analog)
	assert.Equal(t, []any{true, false, true}, con1.Digital["2"].Values())
	assert.Same(t, con1.Analog["1"], con1.Analog["1-1"])

	state, err := sim.QuantumState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), state.Dimension)
	assert.Len(t, state.Elements, 4)

	res, err := sim.Results(ctx)
	require.NoError(t, err)
	fidelity, err := res.Single("fidelity")
	require.NoError(t, err)
	v, err := fidelity.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.99, v)

	err = sim.SetElementCorrection(ctx, "qe1", qop.Matrix{V00: 1, V11: 1})
	require.ErrorIs(t, err, &qop.ServerError{Code: qop.CodeInvalidOperationOnSimulatorJob})

	_, err = m.Simulate(ctx, map[string]any{}, testProgram, qop.SimulateOptions{})
	require.ErrorIs(t, err, qop.ErrSimulation)
}

func Test_SimulationWithoutSamples(t *testing.T) {
	gw := startGateway(t)
	m := connect(t, gw)

	sim, err := m.Simulate(t.Context(), testConfig, testProgram, qop.SimulateOptions{})
	require.NoError(t, err)
	_, err = sim.SimulatedSamples(t.Context(), true, false)
	require.ErrorIs(t, err, qop.ErrSimulation)
}
