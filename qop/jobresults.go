// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"log/slog"
)

// JobResultApi wraps the results analyser service.
type JobResultApi struct {
	*BaseApi
}

func NewJobResultApi(ctx context.Context, executor *Executor, details ConnectionDetails, logger *slog.Logger) (*JobResultApi, error) {
	base, err := NewBaseApi(ctx, executor, JobResultsService, details, logger)
	if err != nil {
		return nil, err
	}
	return &JobResultApi{BaseApi: base}, nil
}

// GetJobResultSchema returns the declared result streams of a job.
func (a *JobResultApi) GetJobResultSchema(ctx context.Context, jobID string) ([]ResultSchemaItem, error) {
	var resp GetJobResultSchemaResponse
	if err := a.Call(ctx, MethodGetJobResultSchema, &JobRequest{JobID: jobID}, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *JobResultApi) GetJobState(ctx context.Context, jobID string) (GetJobStateResponse, error) {
	var resp GetJobStateResponse
	err := a.Call(ctx, MethodGetJobState, &JobRequest{JobID: jobID}, &resp)
	return resp, err
}

// GetNamedHeader returns the current header of one result stream.
func (a *JobResultApi) GetNamedHeader(ctx context.Context, jobID, name string, flat bool) (*GetJobNamedResultHeaderResponse, error) {
	req := &GetJobNamedResultHeaderRequest{JobID: jobID, OutputName: name, FlatFormat: flat}
	var resp GetJobNamedResultHeaderResponse
	if err := a.Call(ctx, MethodGetJobNamedResultHeader, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJobNamedResult pulls count items of a result stream starting at start.
// onChunk sees every chunk in order. A chunk explicitly marked not ok ends
// the pull with ErrResult.
func (a *JobResultApi) GetJobNamedResult(ctx context.Context, jobID, name string, start, count int64, onChunk func(*GetJobNamedResultResponse) bool) (StreamOutcome, error) {
	req := &GetJobNamedResultRequest{JobID: jobID, OutputName: name, Limit: count, LongOffset: &start}
	failed := false
	out, err := callStream(ctx, a.BaseApi, MethodGetJobNamedResult, req, func(chunk *GetJobNamedResultResponse) bool {
		if chunk.Ok != nil && !*chunk.Ok {
			failed = true
			return false
		}
		return onChunk(chunk)
	})
	if err != nil {
		return out, err
	}
	if failed {
		return out, newError(KindResult, "server failed to stream result %q of job %s", name, jobID)
	}
	return out, nil
}

func (a *JobResultApi) GetJobErrors(ctx context.Context, jobID string) ([]ExecutionError, error) {
	var resp GetJobErrorsResponse
	if err := a.Call(ctx, MethodGetJobErrors, &JobRequest{JobID: jobID}, &resp); err != nil {
		return nil, err
	}
	return resp.Errors, nil
}

// GetProgramMetadata returns the stream metadata of the job's program. When
// the server cannot provide it a warning is logged and the result is empty.
func (a *JobResultApi) GetProgramMetadata(ctx context.Context, jobID string) (ProgramStreamMetadata, error) {
	var resp GetProgramMetadataResponse
	if err := a.Call(ctx, MethodGetProgramMetadata, &JobRequest{JobID: jobID}, &resp); err != nil {
		return ProgramStreamMetadata{}, err
	}
	if !resp.Success {
		a.log.WarnContext(ctx, "failed to fetch program metadata", "job_id", jobID)
		return ProgramStreamMetadata{}, nil
	}
	return resp.ProgramStreamMetadata, nil
}
