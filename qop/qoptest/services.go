// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qoptest

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/Query-farm/qop-go/qop"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// unary builds the method descriptor of a unary call served by fn.
func unary[Req, Resp any](service, method string, fn func(*Gateway, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			g := srv.(*Gateway)
			if interceptor == nil {
				return fn(g, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: qop.FullMethod(service, method)}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return fn(g, ctx, req.(*Req))
			})
		},
	}
}

// serverStream builds the descriptor of a server-streaming call served by fn.
func serverStream[Req, Resp any](method string, fn func(*Gateway, *Req, func(*Resp) error) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			req := new(Req)
			if err := stream.RecvMsg(req); err != nil {
				return err
			}
			return fn(srv.(*Gateway), req, func(m *Resp) error { return stream.SendMsg(m) })
		},
	}
}

var frontendDesc = grpc.ServiceDesc{
	ServiceName: qop.FrontendService,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(qop.FrontendService, qop.MethodGetVersion, (*Gateway).getVersion),
		unary(qop.FrontendService, qop.MethodHealthCheck, (*Gateway).healthCheck),
		unary(qop.FrontendService, qop.MethodResetDataProcessing, (*Gateway).resetDataProcessing),
		unary(qop.FrontendService, qop.MethodOpenQuantumMachine, (*Gateway).openQuantumMachine),
		unary(qop.FrontendService, qop.MethodListOpenQuantumMachines, (*Gateway).listOpenQuantumMachines),
		unary(qop.FrontendService, qop.MethodGetQuantumMachine, (*Gateway).getQuantumMachine),
		unary(qop.FrontendService, qop.MethodCloseQuantumMachine, (*Gateway).closeQuantumMachine),
		unary(qop.FrontendService, qop.MethodCloseAllQuantumMachines, (*Gateway).closeAllQuantumMachines),
		unary(qop.FrontendService, qop.MethodGetControllers, (*Gateway).getControllers),
		unary(qop.FrontendService, qop.MethodClearAllJobResults, (*Gateway).clearAllJobResults),
		unary(qop.FrontendService, qop.MethodPerformHalDebugCommand, (*Gateway).performHalDebugCommand),
		unary(qop.FrontendService, qop.MethodAddToQueue, (*Gateway).addToQueue),
		unary(qop.FrontendService, qop.MethodAddCompiledToQueue, (*Gateway).addCompiledToQueue),
		unary(qop.FrontendService, qop.MethodCompile, (*Gateway).compile),
		unary(qop.FrontendService, qop.MethodPerformQmRequest, (*Gateway).performQmRequest),
		unary(qop.FrontendService, qop.MethodRequestData, (*Gateway).requestData),
		unary(qop.FrontendService, qop.MethodHalt, (*Gateway).halt),
		unary(qop.FrontendService, qop.MethodResume, (*Gateway).resume),
		unary(qop.FrontendService, qop.MethodPausedStatus, (*Gateway).pausedStatus),
		unary(qop.FrontendService, qop.MethodIsJobRunning, (*Gateway).isJobRunning),
		unary(qop.FrontendService, qop.MethodIsJobAcquiringData, (*Gateway).isJobAcquiringData),
		unary(qop.FrontendService, qop.MethodGetJobExecutionStatus, (*Gateway).getJobExecutionStatus),
		unary(qop.FrontendService, qop.MethodRemovePendingJobs, (*Gateway).removePendingJobs),
		unary(qop.FrontendService, qop.MethodGetPendingJobs, (*Gateway).getPendingJobs),
		unary(qop.FrontendService, qop.MethodGetRunningJob, (*Gateway).getRunningJob),
		unary(qop.FrontendService, qop.MethodSimulate, (*Gateway).simulate),
		unary(qop.FrontendService, qop.MethodGetSimulatedQuantumState, (*Gateway).getSimulatedQuantumState),
	},
	Streams: []grpc.StreamDesc{
		serverStream(qop.MethodPullSimulatorSamples, (*Gateway).pullSimulatorSamples),
	},
}

var jobManagerDesc = grpc.ServiceDesc{
	ServiceName: qop.JobManagerService,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(qop.JobManagerService, qop.MethodSetElementCorrection, (*Gateway).setElementCorrection),
		unary(qop.JobManagerService, qop.MethodGetElementCorrection, (*Gateway).getElementCorrection),
		unary(qop.JobManagerService, qop.MethodInsertInputStream, (*Gateway).insertInputStream),
	},
}

var jobResultsDesc = grpc.ServiceDesc{
	ServiceName: qop.JobResultsService,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(qop.JobResultsService, qop.MethodGetJobResultSchema, (*Gateway).getJobResultSchema),
		unary(qop.JobResultsService, qop.MethodGetJobState, (*Gateway).getJobState),
		unary(qop.JobResultsService, qop.MethodGetJobNamedResultHeader, (*Gateway).getJobNamedResultHeader),
		unary(qop.JobResultsService, qop.MethodGetJobErrors, (*Gateway).getJobErrors),
		unary(qop.JobResultsService, qop.MethodGetProgramMetadata, (*Gateway).getProgramMetadata),
	},
	Streams: []grpc.StreamDesc{
		serverStream(qop.MethodGetJobNamedResult, (*Gateway).getJobNamedResult),
	},
}

var infoDesc = grpc.ServiceDesc{
	ServiceName: qop.InfoService,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(qop.InfoService, qop.MethodGetInfo, (*Gateway).getInfo),
	},
}

func (g *Gateway) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	if f, ok := g.record(info.FullMethod, md); ok {
		if len(f.header) > 0 {
			_ = grpc.SendHeader(ctx, f.header)
			_ = grpc.SetTrailer(ctx, f.header)
		}
		return nil, f.err
	}
	return handler(ctx, req)
}

func (g *Gateway) streamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	md, _ := metadata.FromIncomingContext(ss.Context())
	if f, ok := g.record(info.FullMethod, md); ok {
		if len(f.header) > 0 {
			_ = ss.SendHeader(f.header)
			ss.SetTrailer(f.header)
		}
		return f.err
	}
	return handler(srv, ss)
}

// ---------------------------------------------------------------------------
// Frontend: session and machines

func (g *Gateway) getVersion(_ context.Context, _ *qop.Empty) (*qop.StringValue, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &qop.StringValue{Value: g.version}, nil
}

func (g *Gateway) healthCheck(_ context.Context, _ *qop.Empty) (*qop.HealthCheckResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	resp := g.health
	return &resp, nil
}

func (g *Gateway) resetDataProcessing(_ context.Context, _ *qop.Empty) (*qop.Empty, error) {
	return &qop.Empty{}, nil
}

func (g *Gateway) openQuantumMachine(_ context.Context, req *qop.OpenQuantumMachineRequest) (*qop.OpenQuantumMachineResponse, error) {
	if len(req.Config) == 0 {
		return &qop.OpenQuantumMachineResponse{
			ConfigValidationErrors: []qop.ConfigValidationError{{Path: "config", Group: "config", Message: "config is empty"}},
		}, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if req.Always {
		clear(g.machines)
	}
	id := g.nextID("qm")
	g.machines[id] = req.Config
	return &qop.OpenQuantumMachineResponse{Success: true, MachineID: id}, nil
}

func (g *Gateway) listOpenQuantumMachines(_ context.Context, _ *qop.Empty) (*qop.ListOpenQuantumMachinesResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &qop.ListOpenQuantumMachinesResponse{MachineIDs: g.machineIDs()}, nil
}

func (g *Gateway) getQuantumMachine(_ context.Context, req *qop.MachineRequest) (*qop.GetQuantumMachineResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cfg, ok := g.machines[req.MachineID]
	if !ok {
		return &qop.GetQuantumMachineResponse{Errors: notFound("quantum machine", req.MachineID)}, nil
	}
	return &qop.GetQuantumMachineResponse{Success: true, MachineID: req.MachineID, Config: cfg}, nil
}

func (g *Gateway) closeQuantumMachine(_ context.Context, req *qop.MachineRequest) (*qop.SuccessResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.machines[req.MachineID]; !ok {
		return &qop.SuccessResponse{Errors: notFound("quantum machine", req.MachineID)}, nil
	}
	delete(g.machines, req.MachineID)
	return &qop.SuccessResponse{Success: true}, nil
}

func (g *Gateway) closeAllQuantumMachines(_ context.Context, _ *qop.Empty) (*qop.SuccessResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.machines)
	return &qop.SuccessResponse{Success: true}, nil
}

func (g *Gateway) getControllers(_ context.Context, _ *qop.Empty) (*qop.GetControllersResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &qop.GetControllersResponse{Controllers: append([]qop.Controller(nil), g.controllers...)}, nil
}

func (g *Gateway) clearAllJobResults(_ context.Context, _ *qop.Empty) (*qop.Empty, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, j := range g.jobs {
		j.Results = nil
	}
	return &qop.Empty{}, nil
}

func (g *Gateway) performHalDebugCommand(_ context.Context, req *qop.PerformHalDebugCommandRequest) (*qop.PerformHalDebugCommandResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.controllers {
		if c.Name == req.ControllerName {
			return &qop.PerformHalDebugCommandResponse{Success: true, Response: c.Name + ": " + req.Command}, nil
		}
	}
	return &qop.PerformHalDebugCommandResponse{Response: "unknown controller " + req.ControllerName}, nil
}

// ---------------------------------------------------------------------------
// Frontend: queue and compilation

func (g *Gateway) addToQueue(_ context.Context, req *qop.AddToQueueRequest) (*qop.AddToQueueResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.machines[req.QuantumMachineID]; !ok {
		return &qop.AddToQueueResponse{Messages: []qop.ServerMessage{
			{Level: qop.MessageError, Message: "quantum machine " + req.QuantumMachineID + " is not open"},
		}}, nil
	}
	if req.HighLevelProgram.Body == nil {
		return &qop.AddToQueueResponse{Messages: []qop.ServerMessage{
			{Level: qop.MessageError, Message: "program is empty"},
		}}, nil
	}
	j := g.newJob(req.QuantumMachineID, false)
	return &qop.AddToQueueResponse{Ok: true, JobID: j.ID}, nil
}

func (g *Gateway) compile(_ context.Context, req *qop.CompileRequest) (*qop.CompileResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.machines[req.QuantumMachineID]; !ok {
		return &qop.CompileResponse{Messages: []qop.ServerMessage{
			{Level: qop.MessageError, Message: "quantum machine " + req.QuantumMachineID + " is not open"},
		}}, nil
	}
	id := g.nextID("program")
	g.programs[id] = req.QuantumMachineID
	return &qop.CompileResponse{Ok: true, ProgramID: id}, nil
}

func (g *Gateway) addCompiledToQueue(_ context.Context, req *qop.AddCompiledToQueueRequest) (*qop.AddCompiledToQueueResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	machine, ok := g.programs[req.ProgramID]
	if !ok || machine != req.QuantumMachineID {
		return &qop.AddCompiledToQueueResponse{Errors: notFound("program", req.ProgramID)}, nil
	}
	j := g.newJob(machine, false)
	return &qop.AddCompiledToQueueResponse{Ok: true, JobID: j.ID}, nil
}

// ---------------------------------------------------------------------------
// Frontend: machine setters

func (g *Gateway) performQmRequest(_ context.Context, req *qop.HighQmApiRequest) (*qop.HighQmApiResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.machines[req.QuantumMachineID]; !ok {
		return &qop.HighQmApiResponse{Errors: notFound("quantum machine", req.QuantumMachineID)}, nil
	}
	g.qmRequests = append(g.qmRequests, *req)
	if set := req.SetIoValues; set != nil {
		io := g.ioValues[req.QuantumMachineID]
		for _, d := range set.IoValueSetData {
			if d.IoNumber < 1 || d.IoNumber > 2 {
				continue
			}
			v := &io[d.IoNumber-1]
			switch {
			case d.IntValue != nil:
				*v = qop.IOValues{IntValue: *d.IntValue, DoubleValue: float64(*d.IntValue), BooleanValue: *d.IntValue != 0}
			case d.DoubleValue != nil:
				*v = qop.IOValues{IntValue: int64(*d.DoubleValue), DoubleValue: *d.DoubleValue, BooleanValue: *d.DoubleValue != 0}
			case d.BooleanValue != nil:
				*v = qop.IOValues{BooleanValue: *d.BooleanValue}
				if *d.BooleanValue {
					v.IntValue, v.DoubleValue = 1, 1
				}
			}
		}
		g.ioValues[req.QuantumMachineID] = io
	}
	return &qop.HighQmApiResponse{Ok: true}, nil
}

func (g *Gateway) requestData(_ context.Context, req *qop.QmDataRequest) (*qop.QmDataResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	resp := &qop.QmDataResponse{Success: true}
	for _, r := range req.IoValueRequest {
		if _, ok := g.machines[r.QuantumMachineID]; !ok {
			return &qop.QmDataResponse{Errors: notFound("quantum machine", r.QuantumMachineID)}, nil
		}
		if r.IoNumber < 1 || r.IoNumber > 2 {
			continue
		}
		resp.IoValueResponse = append(resp.IoValueResponse, qop.IoValueResponse{
			IoNumber: r.IoNumber,
			Values:   g.ioValues[r.QuantumMachineID][r.IoNumber-1],
		})
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// Frontend: job control

func (g *Gateway) halt(_ context.Context, req *qop.JobRequest) (*qop.OkResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[req.JobID]
	if !ok {
		return &qop.OkResponse{}, nil
	}
	j.Status, j.Done, j.Closed, j.Paused = qop.JobStatusCanceled, true, true, false
	return &qop.OkResponse{Ok: true}, nil
}

func (g *Gateway) resume(_ context.Context, req *qop.JobRequest) (*qop.OkResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[req.JobID]
	if !ok {
		return &qop.OkResponse{}, nil
	}
	j.Paused = false
	return &qop.OkResponse{Ok: true}, nil
}

func (g *Gateway) pausedStatus(_ context.Context, req *qop.JobRequest) (*qop.PausedStatusResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[req.JobID]
	return &qop.PausedStatusResponse{IsPaused: ok && j.Paused}, nil
}

func (g *Gateway) isJobRunning(_ context.Context, req *qop.JobRequest) (*qop.IsJobRunningResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[req.JobID]
	return &qop.IsJobRunningResponse{IsRunning: ok && j.Status == qop.JobStatusRunning}, nil
}

func (g *Gateway) isJobAcquiringData(_ context.Context, req *qop.JobRequest) (*qop.IsJobAcquiringDataResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[req.JobID]
	switch {
	case !ok:
		return &qop.IsJobAcquiringDataResponse{AcquiringStatus: qop.AcquireStopped}, nil
	case j.Done || j.Closed:
		return &qop.IsJobAcquiringDataResponse{AcquiringStatus: qop.NoDataToAcquire}, nil
	default:
		return &qop.IsJobAcquiringDataResponse{AcquiringStatus: qop.HasDataToAcquire}, nil
	}
}

func (g *Gateway) getJobExecutionStatus(_ context.Context, req *qop.GetJobExecutionStatusRequest) (*qop.GetJobExecutionStatusResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[req.JobID]
	if !ok {
		return &qop.GetJobExecutionStatusResponse{Status: qop.JobExecutionStatus{Status: qop.JobStatusUnknown}}, nil
	}
	return &qop.GetJobExecutionStatusResponse{Status: qop.JobExecutionStatus{
		Status:          j.Status,
		AddedBy:         j.AddedBy,
		TimeAdded:       j.TimeAdded,
		PositionInQueue: g.queuePosition(j),
	}}, nil
}

// pendingJobs returns the pending jobs matching params, oldest first.
func (g *Gateway) pendingJobs(params *qop.JobQueryParams) []*Job {
	var out []*Job
	for _, j := range g.jobs {
		if j.Status != qop.JobStatusPending {
			continue
		}
		if params.QuantumMachineID != "" && j.MachineID != params.QuantumMachineID {
			continue
		}
		if params.JobID != nil && j.ID != params.JobID.Value {
			continue
		}
		if params.UserID != nil && j.AddedBy != params.UserID.Value {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].TimeAdded.Equal(out[b].TimeAdded) {
			return out[a].TimeAdded.Before(out[b].TimeAdded)
		}
		return out[a].ID < out[b].ID
	})
	if params.Position != nil {
		pos := int(*params.Position) - 1
		if pos < 0 || pos >= len(out) {
			return nil
		}
		return out[pos : pos+1]
	}
	return out
}

func (g *Gateway) queuePosition(j *Job) int32 {
	if j.Status != qop.JobStatusPending {
		return 0
	}
	for i, p := range g.pendingJobs(&qop.JobQueryParams{QuantumMachineID: j.MachineID}) {
		if p == j {
			return int32(i + 1)
		}
	}
	return 0
}

func (g *Gateway) removePendingJobs(_ context.Context, req *qop.JobQueryParams) (*qop.RemovePendingJobsResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := g.pendingJobs(req)
	for _, j := range removed {
		delete(g.jobs, j.ID)
	}
	return &qop.RemovePendingJobsResponse{NumbersOfJobsRemoved: int32(len(removed))}, nil
}

func (g *Gateway) getPendingJobs(_ context.Context, req *qop.JobQueryParams) (*qop.GetPendingJobsResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	resp := &qop.GetPendingJobsResponse{PendingJobs: map[string]qop.PendingJobStatus{}}
	for _, j := range g.pendingJobs(req) {
		resp.PendingJobs[j.ID] = qop.PendingJobStatus{
			PositionInQueue: g.queuePosition(j),
			TimeAdded:       j.TimeAdded,
			AddedBy:         j.AddedBy,
		}
	}
	return resp, nil
}

func (g *Gateway) getRunningJob(_ context.Context, req *qop.MachineRequest) (*qop.GetRunningJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, j := range g.jobs {
		if j.MachineID == req.MachineID && j.Status == qop.JobStatusRunning {
			return &qop.GetRunningJobResponse{JobID: j.ID}, nil
		}
	}
	return &qop.GetRunningJobResponse{}, nil
}

// ---------------------------------------------------------------------------
// Frontend: simulation

func (g *Gateway) simulate(_ context.Context, req *qop.SimulationRequest) (*qop.SimulationResponse, error) {
	if len(req.Config) == 0 {
		return &qop.SimulationResponse{
			ConfigValidationErrors: []qop.ServerMessage{{Level: qop.MessageError, Message: "config is empty"}},
			Simulated:              qop.SimulatedResponsePart{Errors: []string{"invalid config"}},
		}, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	j := g.newJob("", true)
	return &qop.SimulationResponse{Success: true, JobID: j.ID}, nil
}

func (g *Gateway) getSimulatedQuantumState(_ context.Context, req *qop.JobRequest) (*qop.GetSimulatedQuantumStateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[req.JobID]
	if !ok || !j.Simulated {
		return &qop.GetSimulatedQuantumStateResponse{}, nil
	}
	// The ground state |0><0| of a single qubit.
	return &qop.GetSimulatedQuantumStateResponse{Ok: true, State: qop.DensityMatrix{
		Dimension: 2,
		Elements:  []qop.Complex{{Re: 1}, {}, {}, {}},
	}}, nil
}

func (g *Gateway) pullSimulatorSamples(req *qop.PullSimulatorSamplesRequest, send func(*qop.SimulatorSamplesResponse) error) error {
	g.mu.Lock()
	j, ok := g.jobs[req.JobID]
	samples := g.samples
	g.mu.Unlock()
	if !ok || !j.Simulated || samples == nil {
		return send(&qop.SimulatorSamplesResponse{})
	}

	if err := send(&qop.SimulatorSamplesResponse{
		Ok:     true,
		Header: &qop.SamplesHeader{SimpleDType: samples.DType, CountOfItems: samples.Count},
	}); err != nil {
		return err
	}
	chunk := samples.ChunkSize
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	for off := 0; off < len(samples.Data); off += chunk {
		end := min(off+chunk, len(samples.Data))
		if err := send(&qop.SimulatorSamplesResponse{Ok: true, Data: &qop.SamplesData{Data: samples.Data[off:end]}}); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Job manager

func jobManagerFailure(t qop.JobManagerErrorType, details qop.JobErrorDetails) qop.JobManagerResponseHeader {
	return qop.JobManagerResponseHeader{ErrorType: t, Details: details}
}

// elementHeader validates that element exists in the config of the job's
// machine.
func (g *Gateway) elementHeader(jobID, element string) (*Job, qop.JobManagerResponseHeader) {
	j, ok := g.jobs[jobID]
	if !ok {
		return nil, jobManagerFailure(qop.JobManagerErrorMissingJob, qop.JobErrorDetails{})
	}
	if j.Simulated {
		return nil, jobManagerFailure(qop.JobManagerErrorInvalidOperationOnSimulatorJob, qop.JobErrorDetails{})
	}
	elements, _ := g.machines[j.MachineID]["elements"].(map[string]any)
	if _, ok := elements[element]; !ok {
		return nil, jobManagerFailure(qop.JobManagerErrorConfigQuery, qop.JobErrorDetails{
			Message:         "element " + element + " not found",
			ConfigQueryType: qop.ConfigQueryErrorMissingElement,
		})
	}
	return j, qop.JobManagerResponseHeader{Success: true}
}

func (g *Gateway) setElementCorrection(_ context.Context, req *qop.SetElementCorrectionRequest) (*qop.ElementCorrectionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, header := g.elementHeader(req.JobID, req.QeName)
	if j == nil {
		return &qop.ElementCorrectionResponse{Header: header}, nil
	}
	c := req.Correction
	for _, v := range []float64{c.V00, c.V01, c.V10, c.V11} {
		if math.Abs(v) >= 2 {
			return &qop.ElementCorrectionResponse{Header: jobManagerFailure(qop.JobManagerErrorJobOperationSpecific, qop.JobErrorDetails{
				Message:       "correction values must be in the range (-2, 2)",
				OperationType: qop.JobOperationErrorInvalidCorrectionMatrix,
			})}, nil
		}
	}
	j.Corrections[req.QeName] = c
	return &qop.ElementCorrectionResponse{Header: header, Correction: c}, nil
}

func (g *Gateway) getElementCorrection(_ context.Context, req *qop.GetElementCorrectionRequest) (*qop.ElementCorrectionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, header := g.elementHeader(req.JobID, req.QeName)
	if j == nil {
		return &qop.ElementCorrectionResponse{Header: header}, nil
	}
	c, ok := j.Corrections[req.QeName]
	if !ok {
		c = qop.Matrix{V00: 1, V11: 1}
	}
	return &qop.ElementCorrectionResponse{Header: header, Correction: c}, nil
}

func (g *Gateway) insertInputStream(_ context.Context, req *qop.InsertInputStreamRequest) (*qop.InsertInputStreamResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[req.JobID]
	switch {
	case !ok:
		return &qop.InsertInputStreamResponse{Header: jobManagerFailure(qop.JobManagerErrorMissingJob, qop.JobErrorDetails{})}, nil
	case j.Done || j.Closed:
		return &qop.InsertInputStreamResponse{Header: jobManagerFailure(qop.JobManagerErrorInvalidJobExecutionStatus, qop.JobErrorDetails{})}, nil
	}
	name, ok := strings.CutPrefix(req.StreamName, qop.InputStreamPrefix)
	if !ok || name == "" {
		return &qop.InsertInputStreamResponse{Header: jobManagerFailure(qop.JobManagerErrorUnknownInputStream, qop.JobErrorDetails{})}, nil
	}
	var values []any
	switch {
	case req.BoolStreamData != nil:
		for _, v := range req.BoolStreamData.Data {
			values = append(values, v)
		}
	case req.IntStreamData != nil:
		for _, v := range req.IntStreamData.Data {
			values = append(values, v)
		}
	case req.FixedStreamData != nil:
		for _, v := range req.FixedStreamData.Data {
			values = append(values, v)
		}
	}
	j.Inputs[name] = append(j.Inputs[name], values...)
	return &qop.InsertInputStreamResponse{Header: qop.JobManagerResponseHeader{Success: true}}, nil
}

// ---------------------------------------------------------------------------
// Job results

func (g *Gateway) getJobResultSchema(_ context.Context, req *qop.JobRequest) (*qop.GetJobResultSchemaResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	resp := &qop.GetJobResultSchemaResponse{}
	j, ok := g.jobs[req.JobID]
	if !ok {
		return resp, nil
	}
	for _, r := range j.Results {
		resp.Items = append(resp.Items, qop.ResultSchemaItem{
			Name:          r.Name,
			SimpleDType:   r.DType,
			IsSingle:      r.IsSingle,
			ExpectedCount: r.Expected,
			Shape:         r.Shape,
		})
	}
	return resp, nil
}

func (g *Gateway) getJobState(_ context.Context, req *qop.JobRequest) (*qop.GetJobStateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[req.JobID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "job %s not found", req.JobID)
	}
	return &qop.GetJobStateResponse{Done: j.Done, Closed: j.Closed, HasDataloss: j.DataLoss}, nil
}

func (g *Gateway) namedResult(jobID, name string) (*Job, *Result, error) {
	j, ok := g.jobs[jobID]
	if !ok {
		return nil, nil, status.Errorf(codes.NotFound, "job %s not found", jobID)
	}
	r := j.result(name)
	if r == nil {
		return nil, nil, status.Errorf(codes.NotFound, "job %s has no result %s", jobID, name)
	}
	return j, r, nil
}

func (g *Gateway) getJobNamedResultHeader(_ context.Context, req *qop.GetJobNamedResultHeaderRequest) (*qop.GetJobNamedResultHeaderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, r, err := g.namedResult(req.JobID, req.OutputName)
	if err != nil {
		return nil, err
	}
	hasErrors := len(j.Errors) > 0
	return &qop.GetJobNamedResultHeaderResponse{
		IsSingle:           r.IsSingle,
		CountSoFar:         r.Count(),
		SimpleDType:        r.dtype(req.FlatFormat),
		Done:               j.Done,
		Closed:             j.Closed,
		HasDataloss:        j.DataLoss,
		Shape:              r.Shape,
		HasExecutionErrors: &hasErrors,
	}, nil
}

func (g *Gateway) getJobNamedResult(req *qop.GetJobNamedResultRequest, send func(*qop.GetJobNamedResultResponse) error) error {
	g.mu.Lock()
	_, r, err := g.namedResult(req.JobID, req.OutputName)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	start := int64(req.Offset)
	if req.LongOffset != nil {
		start = *req.LongOffset
	}
	data := r.slice(start, req.Limit)
	itemSize, chunkItems, failChunk := r.ItemSize, r.ChunkItems, r.FailChunk
	g.mu.Unlock()

	if chunkItems <= 0 {
		chunkItems = DefaultChunkItems
	}
	chunkBytes := chunkItems * itemSize
	for i, off := 1, 0; off < len(data); i, off = i+1, off+chunkBytes {
		ok := i != failChunk
		if !ok {
			return send(&qop.GetJobNamedResultResponse{Ok: &ok})
		}
		end := min(off+chunkBytes, len(data))
		if err := send(&qop.GetJobNamedResultResponse{
			CountOfItems: int64((end - off) / itemSize),
			Data:         data[off:end],
			Ok:           &ok,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) getJobErrors(_ context.Context, req *qop.JobRequest) (*qop.GetJobErrorsResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	resp := &qop.GetJobErrorsResponse{JobID: req.JobID}
	if j, ok := g.jobs[req.JobID]; ok {
		resp.Errors = append(resp.Errors, j.Errors...)
	}
	return resp, nil
}

func (g *Gateway) getProgramMetadata(_ context.Context, req *qop.JobRequest) (*qop.GetProgramMetadataResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[req.JobID]
	if !ok {
		return &qop.GetProgramMetadataResponse{JobID: req.JobID}, nil
	}
	return &qop.GetProgramMetadataResponse{Success: true, JobID: j.ID, ProgramStreamMetadata: j.Metadata}, nil
}

// ---------------------------------------------------------------------------
// Info

func (g *Gateway) getInfo(_ context.Context, _ *qop.Empty) (*qop.GetInfoResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	resp := g.info
	resp.Capabilities = append([]string(nil), g.info.Capabilities...)
	return &resp, nil
}

func notFound(what, id string) []qop.ErrorMessage {
	return []qop.ErrorMessage{{Message: what + " " + id + " not found"}}
}
