// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qoptest

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/Query-farm/qop-go/qop"
)

// DefaultChunkItems is how many items one GetJobNamedResult chunk carries
// unless a Result says otherwise.
const DefaultChunkItems = 1024

// Result is one named result stream of a job, stored as raw little-endian
// items.
type Result struct {
	Name string
	// DType is the descriptor sent for structured reads, FlatDType the one
	// sent for flat reads. An empty FlatDType falls back to DType.
	DType     string
	FlatDType string
	Shape     []int32
	IsSingle  bool
	Expected  int32
	// ItemSize is the number of bytes of one item.
	ItemSize   int
	Data       []byte
	ChunkItems int
	// FailChunk, when positive, is the 1-based chunk that is answered with
	// ok=false.
	FailChunk int
}

// Count returns the number of items received so far.
func (r *Result) Count() int64 {
	if r.ItemSize == 0 {
		return 0
	}
	return int64(len(r.Data) / r.ItemSize)
}

func (r *Result) dtype(flat bool) string {
	if flat && r.FlatDType != "" {
		return r.FlatDType
	}
	return r.DType
}

// slice returns the bytes of count items from start, clamped to what has
// been received.
func (r *Result) slice(start, count int64) []byte {
	n := r.Count()
	start = min(max(start, 0), n)
	end := n
	if count > 0 {
		end = min(start+count, n)
	}
	return append([]byte(nil), r.Data[start*int64(r.ItemSize):end*int64(r.ItemSize)]...)
}

// AppendInt64 appends int64 items.
func (r *Result) AppendInt64(vs ...int64) *Result {
	for _, v := range vs {
		r.Data = binary.LittleEndian.AppendUint64(r.Data, uint64(v))
	}
	return r
}

// AppendFloat64 appends float64 items.
func (r *Result) AppendFloat64(vs ...float64) *Result {
	for _, v := range vs {
		r.Data = binary.LittleEndian.AppendUint64(r.Data, math.Float64bits(v))
	}
	return r
}

func scalarResult(name, typ string, single bool) *Result {
	return &Result{
		Name:      name,
		DType:     `[["value", "` + typ + `"]]`,
		FlatDType: `"` + typ + `"`,
		Shape:     []int32{1},
		IsSingle:  single,
		ItemSize:  8,
	}
}

// SingleInt64 returns a single-value stream holding v.
func SingleInt64(name string, v int64) *Result {
	return scalarResult(name, "<i8", true).AppendInt64(v)
}

// SingleFloat64 returns a single-value stream holding v.
func SingleFloat64(name string, v float64) *Result {
	return scalarResult(name, "<f8", true).AppendFloat64(v)
}

// Int64Result returns an append-only stream holding vs.
func Int64Result(name string, vs ...int64) *Result {
	return scalarResult(name, "<i8", false).AppendInt64(vs...)
}

// Float64Result returns an append-only stream holding vs.
func Float64Result(name string, vs ...float64) *Result {
	return scalarResult(name, "<f8", false).AppendFloat64(vs...)
}

// Timestamps returns the legacy timestamps stream that accompanies the
// stream called name.
func Timestamps(name string, ts ...int64) *Result {
	return Int64Result(name+qop.TimestampsLegacyExt, ts...)
}

// Samples is the simulated controller output table of a job.
type Samples struct {
	DType     string
	Count     int64
	Data      []byte
	ChunkSize int
}

// NewSamples builds a samples table. Keys are column names of the form
// "controller:port"; analog columns hold float64 values and digital columns
// booleans. Every column must hold the same number of rows.
func NewSamples(analog map[string][]float64, digital map[string][]bool) *Samples {
	analogNames := sortedNames(analog)
	digitalNames := sortedNames(digital)

	var fields [][2]string
	rows := 0
	for _, n := range analogNames {
		fields = append(fields, [2]string{columnName(n, "analog"), "<f8"})
		rows = max(rows, len(analog[n]))
	}
	for _, n := range digitalNames {
		fields = append(fields, [2]string{columnName(n, "digital"), "|b1"})
		rows = max(rows, len(digital[n]))
	}
	descr, _ := json.Marshal(fields)

	s := &Samples{DType: string(descr), Count: int64(rows)}
	for i := 0; i < rows; i++ {
		for _, n := range analogNames {
			var v float64
			if i < len(analog[n]) {
				v = analog[n][i]
			}
			s.Data = binary.LittleEndian.AppendUint64(s.Data, math.Float64bits(v))
		}
		for _, n := range digitalNames {
			var b byte
			if i < len(digital[n]) && digital[n][i] {
				b = 1
			}
			s.Data = append(s.Data, b)
		}
	}
	return s
}

func columnName(key, kind string) string {
	con, port, _ := strings.Cut(key, ":")
	return con + ":" + kind + ":" + port
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
