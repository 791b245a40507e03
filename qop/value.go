// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import "strconv"

// ValueKind tags the representation a Value is sent in.
type ValueKind int

const (
	ValueBool ValueKind = iota + 1
	ValueInt
	ValueFixed
)

func (k ValueKind) String() string {
	switch k {
	case ValueBool:
		return "bool"
	case ValueInt:
		return "int"
	case ValueFixed:
		return "fixed"
	default:
		return "invalid"
	}
}

// Value is a scalar sent to a running program, either as an IO variable or as
// an input stream entry. The caller states its kind explicitly.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
}

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: ValueBool, b: b} }

// IntValue returns an integer Value.
func IntValue(i int64) Value { return Value{kind: ValueInt, i: i} }

// FixedValue returns a fixed-point Value, given as a float.
func FixedValue(f float64) Value { return Value{kind: ValueFixed, f: f} }

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) Bool() bool { return v.b }

func (v Value) Int() int64 { return v.i }

func (v Value) Fixed() float64 { return v.f }

func (v Value) String() string {
	switch v.kind {
	case ValueBool:
		return strconv.FormatBool(v.b)
	case ValueInt:
		return strconv.FormatInt(v.i, 10)
	case ValueFixed:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return "<invalid>"
	}
}

func (v Value) ioSetData(ioNumber int32) (IoValueSetData, error) {
	d := IoValueSetData{IoNumber: ioNumber}
	switch v.kind {
	case ValueBool:
		d.BooleanValue = &v.b
	case ValueInt:
		d.IntValue = &v.i
	case ValueFixed:
		d.DoubleValue = &v.f
	default:
		return d, newError(KindValidation, "io%d value has no kind", ioNumber)
	}
	return d, nil
}

// fillInputStream places data into the one stream field matching its kind.
// Mixed kinds are rejected.
func fillInputStream(req *InsertInputStreamRequest, data []Value) error {
	if len(data) == 0 {
		return newError(KindValidation, "input stream %q: no data", req.StreamName)
	}
	kind := data[0].kind
	for _, v := range data[1:] {
		if v.kind != kind {
			return newError(KindValidation, "input stream %q: mixed value kinds %s and %s, expected a single kind of bool | int | fixed",
				req.StreamName, kind, v.kind)
		}
	}
	switch kind {
	case ValueBool:
		s := &BoolStreamData{Data: make([]bool, len(data))}
		for i, v := range data {
			s.Data[i] = v.b
		}
		req.BoolStreamData = s
	case ValueInt:
		s := &IntStreamData{Data: make([]int64, len(data))}
		for i, v := range data {
			s.Data[i] = v.i
		}
		req.IntStreamData = s
	case ValueFixed:
		s := &FixedStreamData{Data: make([]float64, len(data))}
		for i, v := range data {
			s.Data[i] = v.f
		}
		req.FixedStreamData = s
	default:
		return newError(KindValidation, "input stream %q: value has no kind", req.StreamName)
	}
	return nil
}
