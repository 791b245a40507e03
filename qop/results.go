// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ResultHandle is implemented by *SingleResult and *MultiResult.
type ResultHandle interface {
	Name() string
	JobID() string
	ExpectedCount() int64
	Header(ctx context.Context) (StreamHeader, error)
	CountSoFar(ctx context.Context) (int64, error)
	JobState(ctx context.Context) (GetJobStateResponse, error)
	IsProcessing(ctx context.Context) (bool, error)
	HasDataLoss(ctx context.Context) (bool, error)
	WaitForValues(ctx context.Context, count int64, timeout time.Duration) error
	WaitForAllValues(ctx context.Context, timeout time.Duration) (bool, error)
	StreamMetadata(ctx context.Context) (*StreamMetadataEntry, error)
	SaveTo(ctx context.Context, w io.Writer, opts ...FetchOption) error
}

var (
	_ ResultHandle = (*SingleResult)(nil)
	_ ResultHandle = (*MultiResult)(nil)
)

// JobResults gives access to every result stream of a job.
type JobResults struct {
	jobID        string
	api          *JobResultApi
	caps         ServerCapabilities
	log          *slog.Logger
	names        []string
	schema       map[string]ResultSchemaItem
	pollInterval time.Duration

	mu       sync.Mutex
	metadata *ProgramStreamMetadata
}

// NewJobResults loads the result schema of jobID.
func NewJobResults(ctx context.Context, api *JobResultApi, jobID string, caps ServerCapabilities, logger *slog.Logger) (*JobResults, error) {
	items, err := api.GetJobResultSchema(ctx, jobID)
	if err != nil {
		return nil, err
	}
	r := &JobResults{
		jobID:        jobID,
		api:          api,
		caps:         caps,
		log:          loggerOrDefault(logger).With("component", "results", "job_id", jobID),
		schema:       make(map[string]ResultSchemaItem, len(items)),
		pollInterval: DefaultPollInterval,
	}
	for _, item := range items {
		if _, dup := r.schema[item.Name]; !dup {
			r.names = append(r.names, item.Name)
		}
		r.schema[item.Name] = item
	}
	return r, nil
}

// SetPollInterval changes how often waits query the server.
func (r *JobResults) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

// Names returns the stream names in schema order.
func (r *JobResults) Names() []string { return append([]string(nil), r.names...) }

func (r *JobResults) stream(name string) (resultStream, error) {
	item, ok := r.schema[name]
	if !ok {
		return resultStream{}, newError(KindResult, "job %s has no result named %q", r.jobID, name)
	}
	return resultStream{
		jobID:        r.jobID,
		schema:       item,
		api:          r.api,
		caps:         r.caps,
		log:          r.log,
		mem:          memory.DefaultAllocator,
		pollInterval: r.pollInterval,
		results:      r,
	}, nil
}

// Get returns the handle of a stream, single or multi as its schema says.
func (r *JobResults) Get(name string) (ResultHandle, bool) {
	s, err := r.stream(name)
	if err != nil {
		return nil, false
	}
	if s.schema.IsSingle {
		return &SingleResult{resultStream: s}, true
	}
	return &MultiResult{resultStream: s}, true
}

// Single returns the handle of a single-value stream.
func (r *JobResults) Single(name string) (*SingleResult, error) {
	s, err := r.stream(name)
	if err != nil {
		return nil, err
	}
	return newSingleResult(s)
}

// Multi returns the handle of an append-only stream.
func (r *JobResults) Multi(name string) (*MultiResult, error) {
	s, err := r.stream(name)
	if err != nil {
		return nil, err
	}
	return newMultiResult(s)
}

// JobState returns the streaming state of the job. Without server support
// for job state it is aggregated from every stream header.
func (r *JobResults) JobState(ctx context.Context) (GetJobStateResponse, error) {
	if r.caps.JobStreamingState {
		return r.api.GetJobState(ctx, r.jobID)
	}
	st := GetJobStateResponse{Done: true, Closed: true}
	for _, name := range r.names {
		s, _ := r.stream(name)
		h, err := s.header(ctx, false)
		if err != nil {
			return GetJobStateResponse{}, err
		}
		st.Done = st.Done && h.Done
		st.Closed = st.Closed && h.Closed
		st.HasDataloss = st.HasDataloss || h.HasDataLoss
	}
	return st, nil
}

// IsProcessing reports whether the job may still add results.
func (r *JobResults) IsProcessing(ctx context.Context) (bool, error) {
	st, err := r.JobState(ctx)
	return !(st.Done || st.Closed), err
}

// WaitForAllValues blocks until the job is done or closed and reports
// whether it completed.
func (r *JobResults) WaitForAllValues(ctx context.Context, timeout time.Duration) (bool, error) {
	err := pollUntil(ctx, r.pollInterval, timeout, "job "+r.jobID+" results were not done in time", func(ctx context.Context) (bool, error) {
		processing, err := r.IsProcessing(ctx)
		return !processing, err
	})
	if err != nil {
		return false, err
	}
	st, err := r.JobState(ctx)
	return st.Done, err
}

// ProgramMetadata returns the stream metadata of the job's program. It is
// fetched once. Extraction errors reported by the server are logged and
// returned as ErrResult.
func (r *JobResults) ProgramMetadata(ctx context.Context) (*ProgramStreamMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.metadata == nil {
		meta, err := r.api.GetProgramMetadata(ctx, r.jobID)
		if err != nil {
			return nil, err
		}
		r.metadata = &meta
	}
	if errs := r.metadata.ExtractionErrors; len(errs) > 0 {
		for _, e := range errs {
			r.log.ErrorContext(ctx, "Error creating stream metadata", "location", e.Location, "err", e.Error)
		}
		return nil, newError(KindResult, "%d errors while extracting stream metadata", len(errs))
	}
	return r.metadata, nil
}

// StreamMetadata returns the metadata of every stream by name.
func (r *JobResults) StreamMetadata(ctx context.Context) (map[string]StreamMetadataEntry, error) {
	meta, err := r.ProgramMetadata(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]StreamMetadataEntry, len(meta.StreamMetadata))
	for _, e := range meta.StreamMetadata {
		out[e.StreamName] = e
	}
	return out, nil
}
