// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"encoding/hex"
	"io"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/zeebo/blake3"
)

// Schema metadata keys of a saved result container.
const (
	MetaDType  = "qop.dtype"
	MetaShape  = "qop.shape"
	MetaJobID  = "qop.job_id"
	MetaStream = "qop.stream"
	MetaDigest = "qop.blake3"
)

// SavedResult is a result array read back from a container.
type SavedResult struct {
	JobID  string
	Stream string
	Array  *NDArray
}

// writeContainer writes arr as one Arrow IPC stream. The schema metadata
// records dtype, shape, origin and the blake3 digest of the element bytes.
func writeContainer(w io.Writer, jobID, stream string, arr *NDArray) error {
	sum := blake3.Sum256(arr.Bytes())
	meta := arrow.NewMetadata(
		[]string{MetaDType, MetaShape, MetaJobID, MetaStream, MetaDigest},
		[]string{arr.DType.String(), formatShape(arr.Shape), jobID, stream, hex.EncodeToString(sum[:])},
	)
	schema := arrow.NewSchema([]arrow.Field{{Name: "data", Type: arr.data.DataType()}}, &meta)

	batch := array.NewRecordBatch(schema, []arrow.Array{arr.data}, int64(arr.data.Len()))
	defer batch.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(schema))
	if err := iw.Write(batch); err != nil {
		iw.Close()
		return wrapError(KindResult, err, "write result container")
	}
	if err := iw.Close(); err != nil {
		return wrapError(KindResult, err, "close result container")
	}
	return nil
}

// ReadSavedResult reads a container written by a fetcher's SaveTo and
// verifies its digest.
func ReadSavedResult(r io.Reader) (*SavedResult, error) {
	rd, err := ipc.NewReader(r)
	if err != nil {
		return nil, wrapError(KindResult, err, "open result container")
	}
	defer rd.Release()

	meta := rd.Schema().Metadata()
	get := func(key string) string {
		v, _ := meta.GetValue(key)
		return v
	}
	dt, err := ParseDType(get(MetaDType))
	if err != nil {
		return nil, err
	}
	shape, err := parseShape(get(MetaShape))
	if err != nil {
		return nil, err
	}

	var data arrow.Array
	if rd.Next() {
		data = rd.RecordBatch().Column(0)
		data.Retain()
	} else {
		if err := rd.Err(); err != nil {
			return nil, wrapError(KindResult, err, "read result container")
		}
		b := array.NewBuilder(memory.DefaultAllocator, dt.arrowType())
		data = b.NewArray()
		b.Release()
	}
	arr := &NDArray{DType: dt, Shape: shape, data: data}
	if data.Len() != arr.Size() {
		arr.Release()
		return nil, newError(KindResult, "container holds %d items, shape %v needs %d", data.Len(), shape, product(shape))
	}

	sum := blake3.Sum256(arr.Bytes())
	if want := get(MetaDigest); want != hex.EncodeToString(sum[:]) {
		arr.Release()
		return nil, newError(KindResult, "result container digest mismatch")
	}
	return &SavedResult{JobID: get(MetaJobID), Stream: get(MetaStream), Array: arr}, nil
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, s := range shape {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ",")
}

func parseShape(s string) ([]int, error) {
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	shape := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, newError(KindResult, "invalid shape %q", s)
		}
		shape[i] = n
	}
	return shape, nil
}
