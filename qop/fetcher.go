// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Selector picks the items of a result stream to fetch.
type Selector struct {
	start, stop *int64
	step        int64
}

// All selects every item received so far.
func All() Selector { return Selector{} }

// Index selects the single item i.
func Index(i int64) Selector {
	stop := i + 1
	return Selector{start: &i, stop: &stop}
}

// Span selects items [start, stop).
func Span(start, stop int64) Selector { return Selector{start: &start, stop: &stop} }

// From selects every item from start on.
func From(start int64) Selector { return Selector{start: &start} }

// Step returns s with a step. Only 1 is supported by the server.
func (s Selector) Step(n int64) Selector {
	s.step = n
	return s
}

func (s Selector) isIndex(i int64) bool {
	return s.start != nil && s.stop != nil && *s.start == i && *s.stop == i+1 && s.step <= 1
}

// resolve returns the concrete [start, stop) range of s over count items.
func (s Selector) resolve(count int64) (int64, int64, error) {
	if s.step != 0 && s.step != 1 {
		return 0, 0, newError(KindUnsupportedSlice, "fetch supports step=1 or None in slices, got %d", s.step)
	}
	clamp := func(v int64) int64 { return max(0, min(v, count)) }
	start, stop := int64(0), count
	if s.start != nil {
		start = clamp(*s.start)
	}
	if s.stop != nil {
		stop = clamp(*s.stop)
	}
	return start, max(start, stop), nil
}

// FetchOption tunes a single fetch.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	flat        bool
	checkErrors bool
}

// FlatStruct asks the server for the flat layout of structured results. It
// also disables the legacy value/timestamp combination.
func FlatStruct() FetchOption {
	return func(o *fetchOptions) { o.flat = true }
}

// CheckForErrors logs an error when the job reports runtime errors.
func CheckForErrors() FetchOption {
	return func(o *fetchOptions) { o.checkErrors = true }
}

func applyFetchOptions(opts []FetchOption) fetchOptions {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// StreamHeader is the live server state of one result stream.
type StreamHeader struct {
	IsSingle           bool
	CountSoFar         int64
	DType              DType
	Shape              []int
	Done               bool
	Closed             bool
	HasDataLoss        bool
	HasExecutionErrors bool
}

// resultStream holds what every fetcher variant shares: the stream identity
// and the calls that read it.
type resultStream struct {
	jobID        string
	schema       ResultSchemaItem
	api          *JobResultApi
	caps         ServerCapabilities
	log          *slog.Logger
	mem          memory.Allocator
	pollInterval time.Duration
	results      *JobResults
}

// Name returns the stream name.
func (r *resultStream) Name() string { return r.schema.Name }

// JobID returns the id of the job the stream belongs to.
func (r *resultStream) JobID() string { return r.jobID }

// ExpectedCount is the item count declared by the program, 0 when unknown.
func (r *resultStream) ExpectedCount() int64 { return int64(r.schema.ExpectedCount) }

// Header queries the current state of the stream.
func (r *resultStream) Header(ctx context.Context) (StreamHeader, error) {
	return r.header(ctx, false)
}

func (r *resultStream) header(ctx context.Context, flat bool) (StreamHeader, error) {
	resp, err := r.api.GetNamedHeader(ctx, r.jobID, r.schema.Name, flat)
	if err != nil {
		return StreamHeader{}, err
	}
	dt, err := ParseDType(resp.SimpleDType)
	if err != nil {
		return StreamHeader{}, err
	}
	shape := make([]int, len(resp.Shape))
	for i, s := range resp.Shape {
		shape[i] = int(s)
	}
	return StreamHeader{
		IsSingle:           resp.IsSingle,
		CountSoFar:         resp.CountSoFar,
		DType:              dt,
		Shape:              shape,
		Done:               resp.Done,
		Closed:             resp.Closed,
		HasDataLoss:        resp.HasDataloss,
		HasExecutionErrors: resp.HasExecutionErrors != nil && *resp.HasExecutionErrors,
	}, nil
}

// fetch reads the selected items into an array. It also returns the
// resolved start index.
func (r *resultStream) fetch(ctx context.Context, sel Selector, o fetchOptions) (*NDArray, int64, error) {
	h, err := r.header(ctx, o.flat)
	if err != nil {
		return nil, 0, err
	}
	start, stop, err := sel.resolve(h.CountSoFar)
	if err != nil {
		return nil, 0, err
	}

	var buf bytes.Buffer
	var count int64
	if stop > start {
		_, err = r.api.GetJobNamedResult(ctx, r.jobID, r.schema.Name, start, stop-start, func(chunk *GetJobNamedResultResponse) bool {
			count += chunk.CountOfItems
			buf.Write(chunk.Data)
			return true
		})
		if err != nil {
			return nil, 0, err
		}
	}

	arr, err := decodeNDArray(r.mem, h.DType, finalShape(int(count), h.Shape), buf.Bytes())
	if err != nil {
		return nil, 0, err
	}
	if h.HasDataLoss {
		r.log.WarnContext(ctx, "Possible data loss detected in data for job: "+r.jobID, "stream", r.schema.Name)
	}
	if o.checkErrors && h.HasExecutionErrors {
		r.log.ErrorContext(ctx, "Runtime errors were detected. Please fetch the execution report using job.ExecutionErrors() for more information.", "job_id", r.jobID)
	}
	return arr, start, nil
}

// CountSoFar returns how many items the server has received.
func (r *resultStream) CountSoFar(ctx context.Context) (int64, error) {
	h, err := r.header(ctx, false)
	return h.CountSoFar, err
}

// JobState returns the streaming state of the whole job.
func (r *resultStream) JobState(ctx context.Context) (GetJobStateResponse, error) {
	if r.caps.JobStreamingState {
		return r.api.GetJobState(ctx, r.jobID)
	}
	h, err := r.header(ctx, false)
	if err != nil {
		return GetJobStateResponse{}, err
	}
	return GetJobStateResponse{Done: h.Done, Closed: h.Closed, HasDataloss: h.HasDataLoss}, nil
}

// IsProcessing reports whether the job may still add items.
func (r *resultStream) IsProcessing(ctx context.Context) (bool, error) {
	st, err := r.JobState(ctx)
	return !(st.Done || st.Closed), err
}

// HasDataLoss reports whether the server flagged possible data loss.
func (r *resultStream) HasDataLoss(ctx context.Context) (bool, error) {
	st, err := r.JobState(ctx)
	return st.HasDataloss, err
}

// WaitForAllValues blocks until the job is done or closed and reports
// whether it completed. A zero timeout waits until ctx is done.
func (r *resultStream) WaitForAllValues(ctx context.Context, timeout time.Duration) (bool, error) {
	err := pollUntil(ctx, r.pollInterval, timeout, "result "+r.schema.Name+" was not done in time", func(ctx context.Context) (bool, error) {
		processing, err := r.IsProcessing(ctx)
		return !processing, err
	})
	if err != nil {
		return false, err
	}
	st, err := r.JobState(ctx)
	return st.Done, err
}

func (r *resultStream) waitForCount(ctx context.Context, count int64, timeout time.Duration) error {
	return pollUntil(ctx, r.pollInterval, timeout, "result "+r.schema.Name+" was not done in time", func(ctx context.Context) (bool, error) {
		n, err := r.CountSoFar(ctx)
		return n >= count, err
	})
}

// StreamMetadata returns the loop variables the program attached to the
// stream, or nil when it has none.
func (r *resultStream) StreamMetadata(ctx context.Context) (*StreamMetadataEntry, error) {
	if r.results == nil {
		return nil, newError(KindResult, "no program metadata for result %s", r.schema.Name)
	}
	meta, err := r.results.ProgramMetadata(ctx)
	if err != nil {
		return nil, err
	}
	for i := range meta.StreamMetadata {
		if meta.StreamMetadata[i].StreamName == r.schema.Name {
			return &meta.StreamMetadata[i], nil
		}
	}
	return nil, nil
}

func (r *resultStream) saveTo(w io.Writer, arr *NDArray) error {
	return writeContainer(w, r.jobID, r.schema.Name, arr)
}
