// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseDTypeScalar(t *testing.T) {
	for descr, want := range map[string]DType{
		`"<i8"`: {Kind: ElemInt64, Order: binary.LittleEndian, ItemSize: 8},
		`">i4"`: {Kind: ElemInt32, Order: binary.BigEndian, ItemSize: 4},
		`"<f8"`: {Kind: ElemFloat64, Order: binary.LittleEndian, ItemSize: 8},
		`"|b1"`: {Kind: ElemBool, Order: binary.LittleEndian, ItemSize: 1},
		`"?"`:   {Kind: ElemBool, Order: binary.LittleEndian, ItemSize: 1},
		`"|u1"`: {Kind: ElemUint8, Order: binary.LittleEndian, ItemSize: 1},
	} {
		got, err := ParseDType(descr)
		require.NoError(t, err, descr)
		assert.Equal(t, want, got, descr)
	}

	d, err := ParseDType(`">i4"`)
	require.NoError(t, err)
	assert.Equal(t, `">i4"`, d.String())
}

func Test_ParseDTypeRejects(t *testing.T) {
	for _, descr := range []string{`"<c16"`, `"<i3"`, `"x"`, `not json`, `42`, `[["a"]]`, `[["a", [["b", "<i8"]]]]`} {
		_, err := ParseDType(descr)
		require.ErrorIs(t, err, ErrResult, descr)
	}
}

func Test_ParseDTypeStruct(t *testing.T) {
	d, err := ParseDType(`[["a", "<f8"], ["", "|V4"], ["b", "<i4", [2]]]`)
	require.NoError(t, err)
	require.True(t, d.IsStruct())
	require.Len(t, d.Fields, 2)
	assert.Equal(t, 20, d.ItemSize)
	assert.Equal(t, "a", d.Fields[0].Name)
	assert.Equal(t, 0, d.Fields[0].Offset)
	assert.Equal(t, "b", d.Fields[1].Name)
	assert.Equal(t, 12, d.Fields[1].Offset)
	assert.Equal(t, []int{2}, d.Fields[1].Shape)
	assert.Equal(t, 1, d.FieldIndex("b"))
	assert.Equal(t, -1, d.FieldIndex("missing"))

	assert.Equal(t, `[["a","<f8"],["","|V4"],["b","<i4",[2]]]`, d.String())
	again, err := ParseDType(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, again)
}

func Test_ParseDTypeTupleHint(t *testing.T) {
	hinted, err := ParseDType(`{"__tuple__": true, "items": [["value", "<i8"], ["timestamp", "<i8"]]}`)
	require.NoError(t, err)
	plain, err := ParseDType(`[["value", "<i8"], ["timestamp", "<i8"]]`)
	require.NoError(t, err)
	assert.Equal(t, plain, hinted)

	nested, err := ParseDType(`[["iq", "<f8", {"__tuple__": true, "items": [2]}]]`)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, nested.Fields[0].Shape)
	assert.Equal(t, 16, nested.ItemSize)
}

func Test_FinalShape(t *testing.T) {
	assert.Equal(t, []int{5}, finalShape(5, []int{1}))
	assert.Equal(t, []int{3, 4}, finalShape(3, []int{4}))
	assert.Equal(t, []int{4}, finalShape(1, []int{4}))
	assert.Equal(t, []int{1}, finalShape(1, []int{1}))
	assert.Equal(t, []int{2, 3, 4}, finalShape(2, []int{3, 4}))
	assert.Equal(t, []int{0}, finalShape(0, []int{1}))
}
