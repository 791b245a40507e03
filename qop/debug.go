// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"sync"

	"google.golang.org/grpc/metadata"
)

// DebugDataCapacity bounds the number of response headers a DebugData keeps.
const DebugDataCapacity = 10000

// DebugData records the header metadata of every response received on the
// connections it is attached to. Once full, the oldest entries are evicted.
type DebugData struct {
	mu    sync.Mutex
	buf   []metadata.MD
	start int
	limit int
}

// NewDebugData returns an empty sink holding up to DebugDataCapacity entries.
func NewDebugData() *DebugData {
	return &DebugData{limit: DebugDataCapacity}
}

// Append records md, evicting the oldest entry when full.
func (d *DebugData) Append(md metadata.MD) {
	d.mu.Lock()
	defer d.mu.Unlock()
	limit := d.limit
	if limit <= 0 {
		limit = DebugDataCapacity
	}
	if len(d.buf) < limit {
		d.buf = append(d.buf, md.Copy())
		return
	}
	d.buf[d.start] = md.Copy()
	d.start = (d.start + 1) % limit
}

// ReceivedHeaders returns the recorded headers, oldest first.
func (d *DebugData) ReceivedHeaders() []metadata.MD {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]metadata.MD, 0, len(d.buf))
	out = append(out, d.buf[d.start:]...)
	out = append(out, d.buf[:d.start]...)
	return out
}

// Len returns the number of recorded entries.
func (d *DebugData) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf)
}
