// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"encoding/binary"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// NDArray is an n-dimensional result array. Its elements are stored flat,
// in row-major order, in an Arrow array: a primitive array for scalar
// dtypes, a struct array for structured ones.
type NDArray struct {
	DType DType
	Shape []int
	data  arrow.Array
}

// decodeNDArray builds an array of the given shape from the raw element
// bytes in payload.
func decodeNDArray(mem memory.Allocator, dt DType, shape []int, payload []byte) (*NDArray, error) {
	n := product(shape)
	if dt.ItemSize <= 0 {
		return nil, newError(KindResult, "dtype %s has no size", dt)
	}
	if len(payload) != n*dt.ItemSize {
		return nil, newError(KindResult, "payload of %d bytes does not hold %d items of %s", len(payload), n, dt)
	}
	b := array.NewBuilder(mem, dt.arrowType())
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		appendElement(b, dt, payload[i*dt.ItemSize:(i+1)*dt.ItemSize])
	}
	return &NDArray{DType: dt, Shape: shape, data: b.NewArray()}, nil
}

func appendElement(b array.Builder, dt DType, p []byte) {
	if !dt.IsStruct() {
		appendScalar(b, dt, p)
		return
	}
	sb := b.(*array.StructBuilder)
	sb.Append(true)
	for i, f := range dt.Fields {
		fb := sb.FieldBuilder(i)
		if len(f.Shape) == 0 {
			appendScalar(fb, f.DType, p[f.Offset:f.Offset+f.DType.ItemSize])
			continue
		}
		lb := fb.(*array.FixedSizeListBuilder)
		lb.Append(true)
		vb := lb.ValueBuilder()
		for j := 0; j < product(f.Shape); j++ {
			off := f.Offset + j*f.DType.ItemSize
			appendScalar(vb, f.DType, p[off:off+f.DType.ItemSize])
		}
	}
}

func appendScalar(b array.Builder, dt DType, p []byte) {
	o := dt.Order
	switch dt.Kind {
	case ElemBool:
		b.(*array.BooleanBuilder).Append(p[0] != 0)
	case ElemInt8:
		b.(*array.Int8Builder).Append(int8(p[0]))
	case ElemInt16:
		b.(*array.Int16Builder).Append(int16(o.Uint16(p)))
	case ElemInt32:
		b.(*array.Int32Builder).Append(int32(o.Uint32(p)))
	case ElemInt64:
		b.(*array.Int64Builder).Append(int64(o.Uint64(p)))
	case ElemUint8:
		b.(*array.Uint8Builder).Append(p[0])
	case ElemUint16:
		b.(*array.Uint16Builder).Append(o.Uint16(p))
	case ElemUint32:
		b.(*array.Uint32Builder).Append(o.Uint32(p))
	case ElemUint64:
		b.(*array.Uint64Builder).Append(o.Uint64(p))
	case ElemFloat32:
		b.(*array.Float32Builder).Append(math.Float32frombits(o.Uint32(p)))
	case ElemFloat64:
		b.(*array.Float64Builder).Append(math.Float64frombits(o.Uint64(p)))
	}
}

// Arrow returns the flat Arrow array backing a. It stays owned by a.
func (a *NDArray) Arrow() arrow.Array { return a.data }

// Release frees the Arrow memory of a.
func (a *NDArray) Release() {
	if a.data != nil {
		a.data.Release()
		a.data = nil
	}
}

// Size returns the total number of elements.
func (a *NDArray) Size() int { return product(a.Shape) }

// Len returns the length of the leading dimension, or 1 for a 0-d array.
func (a *NDArray) Len() int {
	if len(a.Shape) == 0 {
		return 1
	}
	return a.Shape[0]
}

// Item returns the element at flat index i as a Go value: bool, int64,
// uint64 or float64 for scalars and map[string]any for structured elements.
func (a *NDArray) Item(i int) any { return arrowValue(a.data, i) }

// Values returns every element in flat order.
func (a *NDArray) Values() []any {
	out := make([]any, a.data.Len())
	for i := range out {
		out[i] = arrowValue(a.data, i)
	}
	return out
}

// At returns row i of the leading dimension: an element for 1-d arrays and
// an *NDArray sharing a's memory otherwise.
func (a *NDArray) At(i int) any {
	if len(a.Shape) <= 1 {
		return a.Item(i)
	}
	stride := product(a.Shape[1:])
	return &NDArray{
		DType: a.DType,
		Shape: append([]int(nil), a.Shape[1:]...),
		data:  array.NewSlice(a.data, int64(i*stride), int64((i+1)*stride)),
	}
}

// Field returns the named field of a structured array. Sub-array fields add
// their shape to a's.
func (a *NDArray) Field(name string) (*NDArray, error) {
	idx := a.DType.FieldIndex(name)
	if idx < 0 {
		return nil, newError(KindResult, "dtype %s has no field %q", a.DType, name)
	}
	f := a.DType.Fields[idx]
	col := a.data.(*array.Struct).Field(idx)
	shape := append(append([]int(nil), a.Shape...), f.Shape...)
	if len(f.Shape) == 0 {
		col.Retain()
		return &NDArray{DType: f.DType, Shape: shape, data: col}, nil
	}
	fsl := col.(*array.FixedSizeList)
	var start, end int64
	if fsl.Len() > 0 {
		start, _ = fsl.ValueOffsets(0)
		_, end = fsl.ValueOffsets(fsl.Len() - 1)
	}
	return &NDArray{DType: f.DType, Shape: shape, data: array.NewSlice(fsl.ListValues(), start, end)}, nil
}

// Int64s returns the elements of an integer or boolean array.
func (a *NDArray) Int64s() ([]int64, error) {
	out := make([]int64, a.data.Len())
	for i := range out {
		switch v := arrowValue(a.data, i).(type) {
		case int64:
			out[i] = v
		case uint64:
			out[i] = int64(v)
		case bool:
			if v {
				out[i] = 1
			}
		default:
			return nil, newError(KindResult, "dtype %s is not integral", a.DType)
		}
	}
	return out, nil
}

// Float64s returns the elements of a numeric array as float64.
func (a *NDArray) Float64s() ([]float64, error) {
	out := make([]float64, a.data.Len())
	for i := range out {
		switch v := arrowValue(a.data, i).(type) {
		case float64:
			out[i] = v
		case int64:
			out[i] = float64(v)
		case uint64:
			out[i] = float64(v)
		default:
			return nil, newError(KindResult, "dtype %s is not numeric", a.DType)
		}
	}
	return out, nil
}

func arrowValue(arr arrow.Array, i int) any {
	switch c := arr.(type) {
	case *array.Boolean:
		return c.Value(i)
	case *array.Int8:
		return int64(c.Value(i))
	case *array.Int16:
		return int64(c.Value(i))
	case *array.Int32:
		return int64(c.Value(i))
	case *array.Int64:
		return c.Value(i)
	case *array.Uint8:
		return uint64(c.Value(i))
	case *array.Uint16:
		return uint64(c.Value(i))
	case *array.Uint32:
		return uint64(c.Value(i))
	case *array.Uint64:
		return c.Value(i)
	case *array.Float32:
		return float64(c.Value(i))
	case *array.Float64:
		return c.Value(i)
	case *array.FixedSizeList:
		start, end := c.ValueOffsets(i)
		vals := c.ListValues()
		out := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, arrowValue(vals, int(j)))
		}
		return out
	case *array.Struct:
		st := c.DataType().(*arrow.StructType)
		out := make(map[string]any, c.NumField())
		for f := 0; f < c.NumField(); f++ {
			out[st.Field(f).Name] = arrowValue(c.Field(f), i)
		}
		return out
	default:
		return nil
	}
}

// combineRecords zips two 1-d arrays of equal length into a structured
// array with fields "value" and "timestamp". A 0-d array counts as one row.
func combineRecords(values, timestamps *NDArray) (*NDArray, error) {
	values, timestamps = asRows(values), asRows(timestamps)
	if len(values.Shape) != 1 || len(timestamps.Shape) != 1 {
		return nil, newError(KindResult, "cannot combine values of shape %v with timestamps of shape %v", values.Shape, timestamps.Shape)
	}
	if values.Shape[0] != timestamps.Shape[0] {
		return nil, newError(KindResult, "got %d values but %d timestamps", values.Shape[0], timestamps.Shape[0])
	}
	if values.DType.IsStruct() || timestamps.DType.IsStruct() {
		return nil, newError(KindResult, "cannot combine structured values with timestamps")
	}
	st, err := array.NewStructArray([]arrow.Array{values.data, timestamps.data}, []string{"value", "timestamp"})
	if err != nil {
		return nil, wrapError(KindResult, err, "combine values with timestamps")
	}
	dt := DType{
		Fields: []Field{
			{Name: "value", DType: values.DType},
			{Name: "timestamp", DType: timestamps.DType, Offset: values.DType.ItemSize},
		},
		ItemSize: values.DType.ItemSize + timestamps.DType.ItemSize,
	}
	return &NDArray{DType: dt, Shape: []int{values.Shape[0]}, data: st}, nil
}

func asRows(a *NDArray) *NDArray {
	if len(a.Shape) != 0 {
		return a
	}
	rows := *a
	rows.Shape = []int{1}
	return &rows
}

// Bytes encodes the elements of a in the binary layout of its DType.
func (a *NDArray) Bytes() []byte {
	n := a.data.Len()
	out := make([]byte, n*a.DType.ItemSize)
	for i := 0; i < n; i++ {
		encodeElement(out[i*a.DType.ItemSize:], a.DType, arrowValue(a.data, i))
	}
	return out
}

func encodeElement(p []byte, dt DType, v any) {
	if !dt.IsStruct() {
		encodeScalar(p, dt, v)
		return
	}
	rec, _ := v.(map[string]any)
	for _, f := range dt.Fields {
		if len(f.Shape) == 0 {
			encodeScalar(p[f.Offset:], f.DType, rec[f.Name])
			continue
		}
		items, _ := rec[f.Name].([]any)
		for j, item := range items {
			encodeScalar(p[f.Offset+j*f.DType.ItemSize:], f.DType, item)
		}
	}
}

func encodeScalar(p []byte, dt DType, v any) {
	o := dt.Order
	switch x := v.(type) {
	case bool:
		if x {
			p[0] = 1
		}
	case int64:
		putUint(p, o, dt.ItemSize, uint64(x))
	case uint64:
		putUint(p, o, dt.ItemSize, x)
	case float64:
		if dt.Kind == ElemFloat32 {
			o.PutUint32(p, math.Float32bits(float32(x)))
		} else {
			o.PutUint64(p, math.Float64bits(x))
		}
	}
}

func putUint(p []byte, o binary.ByteOrder, size int, v uint64) {
	switch size {
	case 1:
		p[0] = byte(v)
	case 2:
		o.PutUint16(p, uint16(v))
	case 4:
		o.PutUint32(p, uint32(v))
	default:
		o.PutUint64(p, v)
	}
}
