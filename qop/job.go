// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a program queued or running on a machine, or a simulated one.
type Job struct {
	id        string
	machineID string
	m         *Manager
	log       *slog.Logger

	mu      sync.Mutex
	results *JobResults
}

func (j *Job) ID() string { return j.id }

// ExecutionStatus returns the server's view of the job.
func (j *Job) ExecutionStatus(ctx context.Context) (JobExecutionStatus, error) {
	return j.m.frontend.GetJobExecutionStatus(ctx, j.id, j.machineID)
}

func (j *Job) Status(ctx context.Context) (JobStatus, error) {
	st, err := j.ExecutionStatus(ctx)
	return st.Status, err
}

// UserAdded returns the user who queued the job.
func (j *Job) UserAdded(ctx context.Context) (string, error) {
	st, err := j.ExecutionStatus(ctx)
	return st.AddedBy, err
}

// TimeAdded returns when the job was queued.
func (j *Job) TimeAdded(ctx context.Context) (time.Time, error) {
	st, err := j.ExecutionStatus(ctx)
	return st.TimeAdded, err
}

// Halt stops the job. It reports whether the server accepted the request.
func (j *Job) Halt(ctx context.Context) (bool, error) { return j.m.frontend.Halt(ctx, j.id) }

// Resume continues a job paused by the program.
func (j *Job) Resume(ctx context.Context) (bool, error) { return j.m.frontend.Resume(ctx, j.id) }

func (j *Job) IsPaused(ctx context.Context) (bool, error) { return j.m.frontend.IsPaused(ctx, j.id) }

func (j *Job) IsRunning(ctx context.Context) (bool, error) {
	return j.m.frontend.IsJobRunning(ctx, j.id)
}

func (j *Job) IsAcquiringData(ctx context.Context) (AcquiringStatus, error) {
	return j.m.frontend.IsDataAcquiring(ctx, j.id)
}

// InsertInputStream pushes data into a named input stream of the program.
// The gateway must support input streams.
func (j *Job) InsertInputStream(ctx context.Context, stream string, data []Value) error {
	if !j.m.server.Capabilities.InputStream {
		return newError(KindUnsupported, "input streams are not supported by the server version %s", j.m.server.QOPVersion)
	}
	return j.m.jobManager.InsertInputStream(ctx, j.id, stream, data)
}

func (j *Job) SetElementCorrection(ctx context.Context, element string, correction Matrix) error {
	return j.m.jobManager.SetElementCorrection(ctx, j.id, element, correction)
}

func (j *Job) GetElementCorrection(ctx context.Context, element string) (Matrix, error) {
	return j.m.jobManager.GetElementCorrection(ctx, j.id, element)
}

// ExecutionErrors returns the runtime errors reported for the job.
func (j *Job) ExecutionErrors(ctx context.Context) ([]ExecutionError, error) {
	return j.m.results.GetJobErrors(ctx, j.id)
}

// Results returns the result streams of the job. The schema is loaded on
// first use.
func (j *Job) Results(ctx context.Context) (*JobResults, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.results != nil {
		return j.results, nil
	}
	r, err := NewJobResults(ctx, j.m.results, j.id, j.m.server.Capabilities, j.log)
	if err != nil {
		return nil, err
	}
	j.results = r
	return r, nil
}

// SimulatedJob is a job run on the simulator.
type SimulatedJob struct {
	*Job
}

// SimulatedSamples returns the simulated controller outputs.
func (s *SimulatedJob) SimulatedSamples(ctx context.Context, analog, digital bool) (*SimulatorSamples, error) {
	table, err := pullSimulatorSamples(ctx, s.m.simulation, s.id, analog, digital)
	if err != nil {
		return nil, err
	}
	return samplesFromTable(table)
}

// QuantumState returns the simulated density matrix at the end of the job.
func (s *SimulatedJob) QuantumState(ctx context.Context) (DensityMatrix, error) {
	return s.m.simulation.GetSimulatedQuantumState(ctx, s.id)
}
