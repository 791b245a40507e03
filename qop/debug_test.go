// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/metadata"
)

func Test_DebugDataEvictsOldest(t *testing.T) {
	d := &DebugData{limit: 3}
	for i := 0; i < 5; i++ {
		d.Append(metadata.Pairs("seq", strconv.Itoa(i)))
	}
	assert.Equal(t, 3, d.Len())

	var seqs []string
	for _, md := range d.ReceivedHeaders() {
		seqs = append(seqs, md.Get("seq")[0])
	}
	assert.Equal(t, []string{"2", "3", "4"}, seqs)
}

func Test_DebugDataCopiesHeaders(t *testing.T) {
	d := NewDebugData()
	md := metadata.Pairs("k", "v")
	d.Append(md)
	md.Set("k", "changed")
	assert.Equal(t, []string{"v"}, d.ReceivedHeaders()[0].Get("k"))
}
