// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"log/slog"
)

// QuantumMachine is an open machine: a config loaded on the controllers.
type QuantumMachine struct {
	id     string
	config map[string]any
	m      *Manager
	log    *slog.Logger
}

func (q *QuantumMachine) ID() string { return q.id }

// Config returns the config the machine was opened with.
func (q *QuantumMachine) Config() map[string]any { return q.config }

// RefreshConfig re-reads the config from the server.
func (q *QuantumMachine) RefreshConfig(ctx context.Context) (map[string]any, error) {
	resp, err := q.m.frontend.GetQM(ctx, q.id)
	if err != nil {
		return nil, err
	}
	q.config = resp.Config
	return q.config, nil
}

func (q *QuantumMachine) Close(ctx context.Context) error {
	return q.m.frontend.CloseQM(ctx, q.id)
}

// Execute adds program at the end of the queue and returns its job.
func (q *QuantumMachine) Execute(ctx context.Context, program Program) (*Job, error) {
	id, err := q.m.frontend.AddToQueue(ctx, q.id, program)
	if err != nil {
		return nil, err
	}
	q.log.InfoContext(ctx, "Executing program", "job_id", id)
	return q.m.job(id, q.id), nil
}

// Compile compiles program for this machine and returns the program id.
func (q *QuantumMachine) Compile(ctx context.Context, program Program) (string, error) {
	return q.m.frontend.Compile(ctx, q.id, program)
}

// AddCompiledToQueue queues a compiled program, optionally overriding some
// of its waveforms.
func (q *QuantumMachine) AddCompiledToQueue(ctx context.Context, programID string, overrides *ExecutionOverrides) (*Job, error) {
	id, err := q.m.frontend.AddCompiledToQueue(ctx, q.id, programID, overrides)
	if err != nil {
		return nil, err
	}
	return q.m.job(id, q.id), nil
}

// PendingJobs returns the queued jobs of the machine keyed by job id.
func (q *QuantumMachine) PendingJobs(ctx context.Context) (map[string]PendingJobStatus, error) {
	return q.m.frontend.GetPendingJobs(ctx, JobQueryParams{QuantumMachineID: q.id})
}

// RemovePendingJobs removes queued jobs and returns how many were removed.
// An empty jobID removes every queued job of the machine.
func (q *QuantumMachine) RemovePendingJobs(ctx context.Context, jobID string) (int, error) {
	params := JobQueryParams{QuantumMachineID: q.id}
	if jobID != "" {
		params.JobID = &QueryValueMatcher{Value: jobID}
	}
	return q.m.frontend.RemovePendingJobs(ctx, params)
}

// RunningJob returns the job currently running on the machine, or nil.
func (q *QuantumMachine) RunningJob(ctx context.Context) (*Job, error) {
	id, err := q.m.frontend.GetRunningJob(ctx, q.id)
	if err != nil || id == "" {
		return nil, err
	}
	return q.m.job(id, q.id), nil
}

func (q *QuantumMachine) SetMixerCorrection(ctx context.Context, mixer MixerInfo, correction Matrix) error {
	return q.m.frontend.SetCorrection(ctx, q.id, mixer, correction)
}

func (q *QuantumMachine) SetIntermediateFrequency(ctx context.Context, element string, freq float64) error {
	return q.m.frontend.SetIntermediateFrequency(ctx, q.id, element, freq)
}

// SetOutputDcOffset sets the DC offset of an element input: "single", "I"
// or "Q".
func (q *QuantumMachine) SetOutputDcOffset(ctx context.Context, element, port string, offset float64) error {
	return q.m.frontend.SetOutputDcOffset(ctx, q.id, element, port, offset)
}

func (q *QuantumMachine) SetOutputFilterTaps(ctx context.Context, element, port string, feedforward, feedback []float64) error {
	return q.m.frontend.SetOutputFilterTaps(ctx, q.id, element, port, feedforward, feedback)
}

func (q *QuantumMachine) SetInputDcOffset(ctx context.Context, element, port string, offset float64) error {
	return q.m.frontend.SetInputDcOffset(ctx, q.id, element, port, offset)
}

func (q *QuantumMachine) SetDigitalDelay(ctx context.Context, element, port string, delay int32) error {
	return q.m.frontend.SetDigitalDelay(ctx, q.id, element, port, delay)
}

func (q *QuantumMachine) SetDigitalBuffer(ctx context.Context, element, port string, buffer int32) error {
	return q.m.frontend.SetDigitalBuffer(ctx, q.id, element, port, buffer)
}

func (q *QuantumMachine) SetDigitalInputThreshold(ctx context.Context, port DigitalInputPort, threshold float64) error {
	return q.m.frontend.SetDigitalInputThreshold(ctx, q.id, port, threshold)
}

func (q *QuantumMachine) SetDigitalInputDeadtime(ctx context.Context, port DigitalInputPort, deadtime int32) error {
	return q.m.frontend.SetDigitalInputDeadtime(ctx, q.id, port, deadtime)
}

func (q *QuantumMachine) SetDigitalInputPolarity(ctx context.Context, port DigitalInputPort, polarity Polarity) error {
	return q.m.frontend.SetDigitalInputPolarity(ctx, q.id, port, polarity)
}

// SetIOValues sets IO1 and IO2. A nil value leaves that IO unchanged.
func (q *QuantumMachine) SetIOValues(ctx context.Context, io1, io2 *Value) error {
	return q.m.frontend.SetIOValues(ctx, q.id, io1, io2)
}

// IOValues returns the current values of IO1 and IO2.
func (q *QuantumMachine) IOValues(ctx context.Context) ([2]IOValues, error) {
	return q.m.frontend.GetIOValues(ctx, q.id)
}
