// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ControllerSamples holds the simulated output of one controller, keyed by
// port. Ports of the first connection ("1-...") are also keyed without the
// connection prefix.
type ControllerSamples struct {
	Analog  map[string]*NDArray
	Digital map[string]*NDArray
}

// SimulatorSamples holds the simulated output of every controller.
type SimulatorSamples struct {
	Controllers map[string]*ControllerSamples
}

// Controller returns the samples of the named controller.
func (s *SimulatorSamples) Controller(name string) (*ControllerSamples, bool) {
	c, ok := s.Controllers[name]
	return c, ok
}

// Names returns the controller names in sorted order.
func (s *SimulatorSamples) Names() []string {
	names := make([]string, 0, len(s.Controllers))
	for n := range s.Controllers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// pullSimulatorSamples reads the raw sample table of a simulated job. The
// stream opens with a header chunk declaring the dtype and count.
func pullSimulatorSamples(ctx context.Context, api *SimulationApi, jobID string, analog, digital bool) (*NDArray, error) {
	req := &PullSimulatorSamplesRequest{
		JobID:                 jobID,
		IncludeAnalog:         analog,
		IncludeDigital:        digital,
		IncludeAllConnections: true,
	}
	var header *SamplesHeader
	var buf bytes.Buffer
	_, err := api.PullSimulatorSamples(ctx, req, func(chunk *SimulatorSamplesResponse) bool {
		switch {
		case chunk.Header != nil:
			header = chunk.Header
		case chunk.Data != nil:
			buf.Write(chunk.Data.Data)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, newError(KindSimulation, "samples stream of job %s has no header", jobID)
	}
	dt, err := ParseDType(header.SimpleDType)
	if err != nil {
		return nil, err
	}
	return decodeNDArray(memory.DefaultAllocator, dt, []int{int(header.CountOfItems)}, buf.Bytes())
}

// samplesFromTable splits a table whose columns are named
// "controller:analog|digital:port" into per-controller samples.
func samplesFromTable(table *NDArray) (*SimulatorSamples, error) {
	out := &SimulatorSamples{Controllers: map[string]*ControllerSamples{}}
	for _, f := range table.DType.Fields {
		parts := strings.SplitN(f.Name, ":", 3)
		if len(parts) != 3 {
			return nil, newError(KindSimulation, "unexpected samples column %q", f.Name)
		}
		col, err := table.Field(f.Name)
		if err != nil {
			return nil, err
		}
		c, ok := out.Controllers[parts[0]]
		if !ok {
			c = &ControllerSamples{Analog: map[string]*NDArray{}, Digital: map[string]*NDArray{}}
			out.Controllers[parts[0]] = c
		}
		var ports map[string]*NDArray
		switch parts[1] {
		case "analog":
			ports = c.Analog
		case "digital":
			ports = c.Digital
		default:
			return nil, newError(KindSimulation, "unexpected samples column %q", f.Name)
		}
		ports[parts[2]] = col
	}
	for _, c := range out.Controllers {
		addFirstConnectionKeys(c.Analog)
		addFirstConnectionKeys(c.Digital)
	}
	return out, nil
}

func addFirstConnectionKeys(ports map[string]*NDArray) {
	short := map[string]*NDArray{}
	for k, v := range ports {
		if s, ok := strings.CutPrefix(k, "1-"); ok {
			short[s] = v
		}
	}
	for k, v := range short {
		ports[k] = v
	}
}
