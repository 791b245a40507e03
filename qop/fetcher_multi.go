// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"io"
	"time"
)

// MultiResult fetches an append-only stream of values.
type MultiResult struct {
	resultStream
}

func newMultiResult(r resultStream) (*MultiResult, error) {
	if r.schema.IsSingle {
		return nil, newError(KindSchemaMismatch, "expecting a multi-result schema for %s", r.schema.Name)
	}
	return &MultiResult{resultStream: r}, nil
}

// Fetch returns the selected items. Unless FlatStruct is given, a stream
// with an allied timestamps stream is returned as value/timestamp records.
func (m *MultiResult) Fetch(ctx context.Context, sel Selector, opts ...FetchOption) (*NDArray, error) {
	o := applyFetchOptions(opts)
	ts := m.timestamps()
	if o.flat || ts == nil {
		arr, _, err := m.fetch(ctx, sel, o)
		return arr, err
	}

	o.flat = true
	values, start, err := m.fetch(ctx, sel, o)
	if err != nil {
		return nil, err
	}
	defer values.Release()
	stamps, _, err := ts.fetch(ctx, Span(start, start+int64(values.Len())), fetchOptions{flat: true})
	if err != nil {
		return nil, err
	}
	defer stamps.Release()
	return combineRecords(values, stamps)
}

// FetchAll returns every item received so far.
func (m *MultiResult) FetchAll(ctx context.Context, opts ...FetchOption) (*NDArray, error) {
	return m.Fetch(ctx, All(), opts...)
}

// WaitForValues blocks until at least count items were received.
func (m *MultiResult) WaitForValues(ctx context.Context, count int64, timeout time.Duration) error {
	return m.waitForCount(ctx, count, timeout)
}

// SaveTo writes every item received so far to w as a result container.
func (m *MultiResult) SaveTo(ctx context.Context, w io.Writer, opts ...FetchOption) error {
	arr, err := m.FetchAll(ctx, opts...)
	if err != nil {
		return err
	}
	defer arr.Release()
	return m.saveTo(w, arr)
}

func (m *MultiResult) timestamps() *resultStream {
	if m.results == nil {
		return nil
	}
	item, ok := m.results.schema[m.schema.Name+TimestampsLegacyExt]
	if !ok {
		return nil
	}
	ts := m.resultStream
	ts.schema = item
	return &ts
}
