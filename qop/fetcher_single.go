// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"io"
	"time"
)

// SingleResult fetches a stream that holds one value.
type SingleResult struct {
	resultStream
}

func newSingleResult(r resultStream) (*SingleResult, error) {
	if !r.schema.IsSingle {
		return nil, newError(KindSchemaMismatch, "expecting a single-result schema for %s", r.schema.Name)
	}
	return &SingleResult{resultStream: r}, nil
}

// Fetch returns the value of the stream. The selector is ignored: a single
// result always reads item 0.
func (s *SingleResult) Fetch(ctx context.Context, sel Selector, opts ...FetchOption) (any, error) {
	if !sel.isIndex(0) {
		s.log.WarnContext(ctx, "Fetching single result will always return the single value", "stream", s.schema.Name)
	}
	return s.FetchAll(ctx, opts...)
}

// FetchAll returns the value of the stream, or nil when it has none yet.
// Structured values with a single field are unwrapped to that field.
func (s *SingleResult) FetchAll(ctx context.Context, opts ...FetchOption) (any, error) {
	o := applyFetchOptions(opts)
	arr, _, err := s.fetch(ctx, Index(0), o)
	if err != nil {
		return nil, err
	}
	return unwrapSingle(arr, o.flat), nil
}

// WaitForValues blocks until the value is available. count must be 1.
func (s *SingleResult) WaitForValues(ctx context.Context, count int64, timeout time.Duration) error {
	if count != 1 {
		return newError(KindValidation, "single result can wait only for a single value")
	}
	return s.waitForCount(ctx, 1, timeout)
}

// SaveTo writes the raw result array to w as a result container.
func (s *SingleResult) SaveTo(ctx context.Context, w io.Writer, opts ...FetchOption) error {
	arr, _, err := s.fetch(ctx, Index(0), applyFetchOptions(opts))
	if err != nil {
		return err
	}
	defer arr.Release()
	return s.saveTo(w, arr)
}

func unwrapSingle(arr *NDArray, flat bool) any {
	if arr.Size() == 0 {
		arr.Release()
		return nil
	}
	if flat && arr.Len() > 1 {
		return arr
	}
	v := arr.At(0)
	arr.Release()
	if sub, ok := v.(*NDArray); ok {
		return sub
	}
	if rec, ok := v.(map[string]any); ok && !flat && len(rec) == 1 {
		for _, field := range rec {
			return field
		}
	}
	return v
}
