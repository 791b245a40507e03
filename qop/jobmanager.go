// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"log/slog"
)

var (
	setElementCorrectionCodes = []ServerErrorCode{
		CodeMissingElement,
		CodeElementWithSingleInput,
		CodeInvalidElementCorrection,
		CodeElementWithoutIntermediateFrequency,
	}
	getElementCorrectionCodes = []ServerErrorCode{
		CodeMissingElement,
		CodeElementWithSingleInput,
		CodeElementWithoutIntermediateFrequency,
	}
	insertInputStreamCodes = []ServerErrorCode{
		CodeMissingJob,
		CodeInvalidJobExecutionStatus,
		CodeUnknownInputStream,
	}
)

// JobManagerApi wraps the job manager service, which acts on a running job.
// Failures are reported as *ServerError.
type JobManagerApi struct {
	*BaseApi
}

func NewJobManagerApi(ctx context.Context, executor *Executor, details ConnectionDetails, logger *slog.Logger) (*JobManagerApi, error) {
	base, err := NewBaseApi(ctx, executor, JobManagerService, details, logger)
	if err != nil {
		return nil, err
	}
	return &JobManagerApi{BaseApi: base}, nil
}

// SetElementCorrection sets the mixer correction of element within a job.
func (a *JobManagerApi) SetElementCorrection(ctx context.Context, jobID, element string, correction Matrix) error {
	req := &SetElementCorrectionRequest{JobID: jobID, QeName: element, Correction: correction}
	var resp ElementCorrectionResponse
	if err := a.Call(ctx, MethodSetElementCorrection, req, &resp); err != nil {
		return err
	}
	return jobManagerError(&resp.Header, errorContext{elementName: element, correction: &correction}, setElementCorrectionCodes)
}

// GetElementCorrection returns the mixer correction of element within a job.
func (a *JobManagerApi) GetElementCorrection(ctx context.Context, jobID, element string) (Matrix, error) {
	req := &GetElementCorrectionRequest{JobID: jobID, QeName: element}
	var resp ElementCorrectionResponse
	if err := a.Call(ctx, MethodGetElementCorrection, req, &resp); err != nil {
		return Matrix{}, err
	}
	if err := jobManagerError(&resp.Header, errorContext{elementName: element}, getElementCorrectionCodes); err != nil {
		return Matrix{}, err
	}
	return resp.Correction, nil
}

// InsertInputStream pushes data into the program's input stream named
// stream. All values must be of one kind.
func (a *JobManagerApi) InsertInputStream(ctx context.Context, jobID, stream string, data []Value) error {
	req := &InsertInputStreamRequest{JobID: jobID, StreamName: InputStreamPrefix + stream}
	if err := fillInputStream(req, data); err != nil {
		return err
	}
	var resp InsertInputStreamResponse
	if err := a.Call(ctx, MethodInsertInputStream, req, &resp); err != nil {
		return err
	}
	return jobManagerError(&resp.Header, errorContext{}, insertInputStreamCodes)
}
