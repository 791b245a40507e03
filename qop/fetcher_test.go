// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_SelectorResolve(t *testing.T) {
	cases := []struct {
		name        string
		sel         Selector
		count       int64
		start, stop int64
	}{
		{"all", All(), 7, 0, 7},
		{"all of nothing", All(), 0, 0, 0},
		{"index", Index(2), 7, 2, 3},
		{"index past end", Index(9), 7, 7, 7},
		{"span clamped", Span(1, 100), 7, 1, 7},
		{"negative start", Span(-3, 2), 7, 0, 2},
		{"reversed", Span(5, 2), 7, 5, 5},
		{"from", From(4), 7, 4, 7},
		{"from past end", From(9), 7, 7, 7},
		{"explicit step", Span(1, 3).Step(1), 7, 1, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			start, stop, err := c.sel.resolve(c.count)
			require.NoError(t, err)
			assert.Equal(t, c.start, start)
			assert.Equal(t, c.stop, stop)
		})
	}

	_, _, err := All().Step(2).resolve(7)
	require.ErrorIs(t, err, ErrUnsupportedSlice)
	require.ErrorContains(t, err, "step=1")
}

func Test_SelectorIsIndex(t *testing.T) {
	assert.True(t, Index(0).isIndex(0))
	assert.True(t, Span(0, 1).isIndex(0))
	assert.False(t, All().isIndex(0))
	assert.False(t, Index(1).isIndex(0))
}

func Test_UnwrapSingle(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	scalar, err := decodeNDArray(mem, mustDType(t, `"<i8"`), []int{1}, int64Bytes(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), unwrapSingle(scalar, true))

	record, err := decodeNDArray(mem, mustDType(t, `[["value", "<i8"]]`), []int{1}, int64Bytes(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), unwrapSingle(record, false))

	record, err = decodeNDArray(mem, mustDType(t, `[["value", "<i8"]]`), []int{1}, int64Bytes(42))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": int64(42)}, unwrapSingle(record, true))

	empty, err := decodeNDArray(mem, mustDType(t, `"<i8"`), []int{0}, nil)
	require.NoError(t, err)
	assert.Nil(t, unwrapSingle(empty, false))

	vector, err := decodeNDArray(mem, mustDType(t, `"<i8"`), []int{1, 3}, int64Bytes(1, 2, 3))
	require.NoError(t, err)
	row, ok := unwrapSingle(vector, false).(*NDArray)
	require.True(t, ok)
	vs, err := row.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, vs)
	row.Release()

	flat, err := decodeNDArray(mem, mustDType(t, `"<i8"`), []int{3}, int64Bytes(1, 2, 3))
	require.NoError(t, err)
	same, ok := unwrapSingle(flat, true).(*NDArray)
	require.True(t, ok)
	assert.Same(t, flat, same)
	same.Release()
}
