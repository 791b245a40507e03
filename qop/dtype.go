// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"encoding/binary"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// ElemKind is the element type of a scalar DType.
type ElemKind int

const (
	ElemInvalid ElemKind = iota
	ElemBool
	ElemInt8
	ElemInt16
	ElemInt32
	ElemInt64
	ElemUint8
	ElemUint16
	ElemUint32
	ElemUint64
	ElemFloat32
	ElemFloat64
	// ElemVoid is padding inside a structured dtype.
	ElemVoid
)

var elemNames = map[ElemKind]string{
	ElemBool:    "bool",
	ElemInt8:    "int8",
	ElemInt16:   "int16",
	ElemInt32:   "int32",
	ElemInt64:   "int64",
	ElemUint8:   "uint8",
	ElemUint16:  "uint16",
	ElemUint32:  "uint32",
	ElemUint64:  "uint64",
	ElemFloat32: "float32",
	ElemFloat64: "float64",
	ElemVoid:    "void",
}

func (k ElemKind) String() string {
	if n, ok := elemNames[k]; ok {
		return n
	}
	return "invalid"
}

// DType describes the binary layout of one result element. A scalar DType
// has a Kind; a structured one has Fields.
type DType struct {
	Kind     ElemKind
	Order    binary.ByteOrder
	ItemSize int
	Fields   []Field
}

// Field is one named member of a structured DType.
type Field struct {
	Name   string
	DType  DType
	Shape  []int
	Offset int
}

// IsStruct reports whether d has named fields.
func (d DType) IsStruct() bool { return d.Fields != nil }

// FieldIndex returns the index of the named field, or -1.
func (d DType) FieldIndex(name string) int {
	for i, f := range d.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// String returns the JSON descriptor of d, in the form ParseDType accepts.
func (d DType) String() string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d.descr()); err != nil {
		return "<invalid dtype>"
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (d DType) descr() any {
	if !d.IsStruct() {
		return d.typeString()
	}
	out := make([]any, 0, len(d.Fields))
	offset := 0
	pad := func(n int) {
		if n > 0 {
			out = append(out, []any{"", "|V" + strconv.Itoa(n)})
		}
	}
	for _, f := range d.Fields {
		pad(f.Offset - offset)
		entry := []any{f.Name, f.DType.descr()}
		if len(f.Shape) > 0 {
			entry = append(entry, f.Shape)
		}
		out = append(out, entry)
		offset = f.Offset + f.DType.ItemSize*product(f.Shape)
	}
	pad(d.ItemSize - offset)
	return out
}

func (d DType) typeString() string {
	var code byte
	switch d.Kind {
	case ElemBool:
		code = 'b'
	case ElemInt8, ElemInt16, ElemInt32, ElemInt64:
		code = 'i'
	case ElemUint8, ElemUint16, ElemUint32, ElemUint64:
		code = 'u'
	case ElemFloat32, ElemFloat64:
		code = 'f'
	case ElemVoid:
		code = 'V'
	default:
		return "invalid"
	}
	order := byte('<')
	switch {
	case d.ItemSize == 1 || d.Kind == ElemVoid:
		order = '|'
	case d.Order == binary.BigEndian:
		order = '>'
	}
	return string([]byte{order, code}) + strconv.Itoa(d.ItemSize)
}

// ParseDType parses a dtype descriptor as sent by the server: a JSON type
// string, or a list of [name, type] / [name, type, shape] fields. Tuples may
// be hinted as {"__tuple__": true, "items": [...]}.
func ParseDType(descr string) (DType, error) {
	var raw any
	if err := json.Unmarshal([]byte(descr), &raw); err != nil {
		return DType{}, wrapError(KindResult, err, "invalid dtype %q", descr)
	}
	return dtypeFromJSON(untuple(raw))
}

// untuple replaces tuple hints with the list of their items.
func untuple(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if _, ok := t["__tuple__"]; ok {
			items, _ := t["items"].([]any)
			return untuple(items)
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = untuple(e)
		}
		return out
	default:
		return v
	}
}

func dtypeFromJSON(v any) (DType, error) {
	switch t := v.(type) {
	case string:
		return parseTypeString(t)
	case []any:
		return structDType(t)
	default:
		return DType{}, newError(KindResult, "unsupported dtype descriptor %v", v)
	}
}

func structDType(entries []any) (DType, error) {
	d := DType{Fields: []Field{}}
	offset := 0
	for _, e := range entries {
		parts, ok := e.([]any)
		if !ok || len(parts) < 2 || len(parts) > 3 {
			return DType{}, newError(KindResult, "invalid dtype field %v", e)
		}
		name, ok := parts[0].(string)
		if !ok {
			return DType{}, newError(KindResult, "dtype field name %v is not a string", parts[0])
		}
		fd, err := dtypeFromJSON(parts[1])
		if err != nil {
			return DType{}, err
		}
		var shape []int
		if len(parts) == 3 {
			if shape, err = shapeFromJSON(parts[2]); err != nil {
				return DType{}, err
			}
		}
		size := fd.ItemSize * product(shape)
		if name == "" || fd.Kind == ElemVoid {
			offset += size
			continue
		}
		if fd.IsStruct() {
			return DType{}, newError(KindResult, "nested structured field %q is not supported", name)
		}
		d.Fields = append(d.Fields, Field{Name: name, DType: fd, Shape: shape, Offset: offset})
		offset += size
	}
	d.ItemSize = offset
	return d, nil
}

func shapeFromJSON(v any) ([]int, error) {
	switch t := v.(type) {
	case float64:
		return []int{int(t)}, nil
	case []any:
		shape := make([]int, len(t))
		for i, e := range t {
			n, ok := e.(float64)
			if !ok {
				return nil, newError(KindResult, "invalid dtype shape %v", v)
			}
			shape[i] = int(n)
		}
		return shape, nil
	default:
		return nil, newError(KindResult, "invalid dtype shape %v", v)
	}
}

func parseTypeString(s string) (DType, error) {
	if s == "?" {
		return DType{Kind: ElemBool, Order: binary.LittleEndian, ItemSize: 1}, nil
	}
	rest := s
	var order binary.ByteOrder = binary.LittleEndian
	if rest != "" {
		switch rest[0] {
		case '<', '|', '=':
			rest = rest[1:]
		case '>':
			order = binary.BigEndian
			rest = rest[1:]
		}
	}
	if len(rest) < 2 {
		return DType{}, newError(KindResult, "unsupported dtype %q", s)
	}
	size, err := strconv.Atoi(rest[1:])
	if err != nil || size <= 0 {
		return DType{}, newError(KindResult, "unsupported dtype %q", s)
	}
	kind := ElemInvalid
	switch rest[0] {
	case 'b', '?':
		if size == 1 {
			kind = ElemBool
		}
	case 'i':
		kind = map[int]ElemKind{1: ElemInt8, 2: ElemInt16, 4: ElemInt32, 8: ElemInt64}[size]
	case 'u':
		kind = map[int]ElemKind{1: ElemUint8, 2: ElemUint16, 4: ElemUint32, 8: ElemUint64}[size]
	case 'f':
		kind = map[int]ElemKind{4: ElemFloat32, 8: ElemFloat64}[size]
	case 'V':
		kind = ElemVoid
	}
	if kind == ElemInvalid {
		return DType{}, newError(KindResult, "unsupported dtype %q", s)
	}
	return DType{Kind: kind, Order: order, ItemSize: size}, nil
}

// arrowType returns the Arrow type one element of d is stored as.
func (d DType) arrowType() arrow.DataType {
	if d.IsStruct() {
		fields := make([]arrow.Field, len(d.Fields))
		for i, f := range d.Fields {
			var t arrow.DataType = f.DType.arrowType()
			if len(f.Shape) > 0 {
				t = arrow.FixedSizeListOf(int32(product(f.Shape)), t)
			}
			fields[i] = arrow.Field{Name: f.Name, Type: t, Nullable: false}
		}
		return arrow.StructOf(fields...)
	}
	switch d.Kind {
	case ElemBool:
		return arrow.FixedWidthTypes.Boolean
	case ElemInt8:
		return arrow.PrimitiveTypes.Int8
	case ElemInt16:
		return arrow.PrimitiveTypes.Int16
	case ElemInt32:
		return arrow.PrimitiveTypes.Int32
	case ElemInt64:
		return arrow.PrimitiveTypes.Int64
	case ElemUint8:
		return arrow.PrimitiveTypes.Uint8
	case ElemUint16:
		return arrow.PrimitiveTypes.Uint16
	case ElemUint32:
		return arrow.PrimitiveTypes.Uint32
	case ElemUint64:
		return arrow.PrimitiveTypes.Uint64
	case ElemFloat32:
		return arrow.PrimitiveTypes.Float32
	default:
		return arrow.PrimitiveTypes.Float64
	}
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// finalShape applies the shape rule for count received items: one item
// keeps the declared shape, a declared (1,) becomes (count,), and anything
// else gains count as a new leading dimension.
func finalShape(count int, shape []int) []int {
	if count == 1 {
		return append([]int(nil), shape...)
	}
	if len(shape) == 1 && shape[0] == 1 {
		return []int{count}
	}
	return append([]int{count}, shape...)
}
