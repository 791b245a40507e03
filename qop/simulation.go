// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"log/slog"
)

// SimulationApi runs programs on the server-side simulator. It is served by
// the frontend service.
type SimulationApi struct {
	*BaseApi
}

func NewSimulationApi(ctx context.Context, executor *Executor, details ConnectionDetails, logger *slog.Logger) (*SimulationApi, error) {
	base, err := NewBaseApi(ctx, executor, FrontendService, details, logger)
	if err != nil {
		return nil, err
	}
	return &SimulationApi{BaseApi: base}, nil
}

// Simulate runs program against config on the simulator and returns the id
// of the simulated job.
func (a *SimulationApi) Simulate(ctx context.Context, config map[string]any, program Program, opts SimulateOptions, connections []InterOpxConnection) (string, error) {
	req := &SimulationRequest{
		Config:                config,
		HighLevelProgram:      program,
		Simulate:              opts,
		ControllerConnections: connections,
	}
	var resp SimulationResponse
	if err := a.Call(ctx, MethodSimulate, req, &resp); err != nil {
		return "", err
	}
	logServerMessages(ctx, a.log, resp.Messages)
	logServerMessages(ctx, a.log, resp.ConfigValidationErrors)
	if !resp.Success {
		for _, e := range resp.Simulated.Errors {
			a.log.ErrorContext(ctx, e)
		}
		return "", newError(KindSimulation, "Job %s failed. Failed to execute program.", resp.JobID)
	}
	return resp.JobID, nil
}

// GetSimulatedQuantumState returns the density matrix at the end of a
// simulated job.
func (a *SimulationApi) GetSimulatedQuantumState(ctx context.Context, jobID string) (DensityMatrix, error) {
	var resp GetSimulatedQuantumStateResponse
	if err := a.Call(ctx, MethodGetSimulatedQuantumState, &JobRequest{JobID: jobID}, &resp); err != nil {
		return DensityMatrix{}, err
	}
	if !resp.Ok {
		return DensityMatrix{}, newError(KindSimulation, "Error while pulling quantum state")
	}
	return resp.State, nil
}

// PullSimulatorSamples streams the simulated controller samples of a job.
func (a *SimulationApi) PullSimulatorSamples(ctx context.Context, req *PullSimulatorSamplesRequest, onChunk func(*SimulatorSamplesResponse) bool) (StreamOutcome, error) {
	failed := false
	out, err := callStream(ctx, a.BaseApi, MethodPullSimulatorSamples, req, func(chunk *SimulatorSamplesResponse) bool {
		if !chunk.Ok {
			failed = true
			return false
		}
		return onChunk(chunk)
	})
	if err != nil {
		return out, err
	}
	if failed {
		return out, newError(KindSimulation, "Error while pulling samples")
	}
	return out, nil
}
