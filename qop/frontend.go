// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"log/slog"
)

// FrontendApi wraps the gateway's frontend service: machine lifecycle, the
// job queue and the high-level setters of an open machine.
type FrontendApi struct {
	*BaseApi
}

// NewFrontendApi returns a FrontendApi on the channel for details.
func NewFrontendApi(ctx context.Context, executor *Executor, details ConnectionDetails, logger *slog.Logger) (*FrontendApi, error) {
	base, err := NewBaseApi(ctx, executor, FrontendService, details, logger)
	if err != nil {
		return nil, err
	}
	return &FrontendApi{BaseApi: base}, nil
}

// GetVersion returns the QOP server version string.
func (a *FrontendApi) GetVersion(ctx context.Context) (string, error) {
	var resp StringValue
	if err := a.Call(ctx, MethodGetVersion, &Empty{}, &resp); err != nil {
		return "", err
	}
	return resp.Value, nil
}

// HealthCheck asks the server for its health. Warnings and errors are logged.
// A failed check returns ErrHealthCheck in strict mode and nil otherwise.
func (a *FrontendApi) HealthCheck(ctx context.Context, strict bool) error {
	a.log.InfoContext(ctx, "Performing health check")
	var resp HealthCheckResponse
	if err := a.Call(ctx, MethodHealthCheck, &Empty{}, &resp); err != nil {
		return err
	}
	for _, w := range resp.WarningMessages {
		a.log.WarnContext(ctx, "Health check warning", "message", w)
	}
	if !resp.Ok {
		a.log.ErrorContext(ctx, "Health check error", "message", resp.Message)
		for _, e := range resp.ErrorMessages {
			a.log.ErrorContext(ctx, "Health check error", "message", e)
		}
		if strict {
			return newError(KindHealthCheck, "Health check failed")
		}
		return nil
	}
	a.log.InfoContext(ctx, "Health check passed")
	return nil
}

func (a *FrontendApi) ResetDataProcessing(ctx context.Context) error {
	return a.Call(ctx, MethodResetDataProcessing, &Empty{}, &Empty{})
}

// OpenQM opens a quantum machine for config and returns its id. With
// closeOthers set, machines sharing its resources are closed first.
func (a *FrontendApi) OpenQM(ctx context.Context, config map[string]any, closeOthers bool) (string, error) {
	req := &OpenQuantumMachineRequest{Config: config, Always: closeOthers, Never: !closeOthers}
	var resp OpenQuantumMachineResponse
	if err := a.Call(ctx, MethodOpenQuantumMachine, req, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		for _, e := range resp.ConfigValidationErrors {
			a.log.ErrorContext(ctx, "CONFIG ERROR", "key", e.Path, "group", e.Group, "message", e.Message)
		}
		for _, e := range resp.PhysicalValidationErrors {
			a.log.ErrorContext(ctx, "PHYSICAL CONFIG ERROR", "key", e.Path, "group", e.Group, "message", e.Message)
		}
		return "", newError(KindOpenQM, "Can not open QM. Please see previous errors")
	}
	for _, w := range resp.OpenQmWarnings {
		a.log.WarnContext(ctx, "Open QM ended with warning", "code", w.Code, "message", w.Message)
	}
	return resp.MachineID, nil
}

func (a *FrontendApi) ListOpenQMs(ctx context.Context) ([]string, error) {
	var resp ListOpenQuantumMachinesResponse
	if err := a.Call(ctx, MethodListOpenQuantumMachines, &Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.MachineIDs, nil
}

// GetQM returns the id and config of an open machine.
func (a *FrontendApi) GetQM(ctx context.Context, machineID string) (*GetQuantumMachineResponse, error) {
	var resp GetQuantumMachineResponse
	if err := a.Call(ctx, MethodGetQuantumMachine, &MachineRequest{MachineID: machineID}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, newError(KindRequest, "Failed to fetch quantum machine: %s", joinErrorMessages(resp.Errors))
	}
	return &resp, nil
}

func (a *FrontendApi) CloseQM(ctx context.Context, machineID string) error {
	var resp SuccessResponse
	if err := a.Call(ctx, MethodCloseQuantumMachine, &MachineRequest{MachineID: machineID}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return newError(KindRequest, "Failed to close quantum machine %s: %s", machineID, joinErrorMessages(resp.Errors))
	}
	return nil
}

func (a *FrontendApi) CloseAllQMs(ctx context.Context) error {
	var resp SuccessResponse
	if err := a.Call(ctx, MethodCloseAllQuantumMachines, &Empty{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		for _, e := range resp.Errors {
			a.log.ErrorContext(ctx, e.Message)
		}
		return newError(KindRequest, "Can not close all quantum machines. Please see previous errors")
	}
	return nil
}

func (a *FrontendApi) GetControllers(ctx context.Context) ([]Controller, error) {
	var resp GetControllersResponse
	if err := a.Call(ctx, MethodGetControllers, &Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Controllers, nil
}

func (a *FrontendApi) ClearAllJobResults(ctx context.Context) error {
	return a.Call(ctx, MethodClearAllJobResults, &Empty{}, &Empty{})
}

// SendDebugCommand runs a HAL debug command on a controller and returns its
// output.
func (a *FrontendApi) SendDebugCommand(ctx context.Context, controller, command string) (string, error) {
	req := &PerformHalDebugCommandRequest{ControllerName: controller, Command: command}
	var resp PerformHalDebugCommandResponse
	if err := a.Call(ctx, MethodPerformHalDebugCommand, req, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &ConnectionError{Message: resp.Response}
	}
	return resp.Response, nil
}

// AddToQueue appends program to the machine's queue and returns the job id.
func (a *FrontendApi) AddToQueue(ctx context.Context, machineID string, program Program) (string, error) {
	req := &AddToQueueRequest{
		QuantumMachineID: machineID,
		HighLevelProgram: program,
		QueuePosition:    QueuePosition{End: &Empty{}},
	}
	var resp AddToQueueResponse
	if err := a.Call(ctx, MethodAddToQueue, req, &resp); err != nil {
		return "", err
	}
	logServerMessages(ctx, a.log, resp.Messages)
	if !resp.Ok {
		return "", newError(KindQueue, "Job %s failed. Failed to execute program.", resp.JobID)
	}
	return resp.JobID, nil
}

// AddCompiledToQueue queues a previously compiled program.
func (a *FrontendApi) AddCompiledToQueue(ctx context.Context, machineID, programID string, overrides *ExecutionOverrides) (string, error) {
	req := &AddCompiledToQueueRequest{
		QuantumMachineID:   machineID,
		ProgramID:          programID,
		QueuePosition:      QueuePosition{End: &Empty{}},
		ExecutionOverrides: overrides,
	}
	var resp AddCompiledToQueueResponse
	if err := a.Call(ctx, MethodAddCompiledToQueue, req, &resp); err != nil {
		return "", err
	}
	if !resp.Ok {
		for _, e := range resp.Errors {
			a.log.ErrorContext(ctx, e.Message)
		}
		return "", newError(KindQueue, "Job %s failed. Failed to execute program.", resp.JobID)
	}
	return resp.JobID, nil
}

// Compile compiles program on the machine and returns the program id.
func (a *FrontendApi) Compile(ctx context.Context, machineID string, program Program) (string, error) {
	req := &CompileRequest{QuantumMachineID: machineID, HighLevelProgram: program}
	var resp CompileResponse
	if err := a.Call(ctx, MethodCompile, req, &resp); err != nil {
		return "", err
	}
	logServerMessages(ctx, a.log, resp.Messages)
	if !resp.Ok {
		return "", newError(KindCompilation, "Compilation of program %s failed", resp.ProgramID)
	}
	return resp.ProgramID, nil
}

// PerformQmRequest sends one high-level setter request.
func (a *FrontendApi) PerformQmRequest(ctx context.Context, req *HighQmApiRequest) error {
	var resp HighQmApiResponse
	if err := a.Call(ctx, MethodPerformQmRequest, req, &resp); err != nil {
		return err
	}
	if !resp.Ok {
		return newError(KindRequest, "Failed: %s", joinErrorMessages(resp.Errors))
	}
	return nil
}

func (a *FrontendApi) SetCorrection(ctx context.Context, machineID string, mixer MixerInfo, correction Matrix) error {
	return a.PerformQmRequest(ctx, &HighQmApiRequest{
		QuantumMachineID: machineID,
		SetCorrection:    &SetCorrection{Mixer: mixer, Correction: correction},
	})
}

func (a *FrontendApi) SetIntermediateFrequency(ctx context.Context, machineID, element string, freq float64) error {
	return a.PerformQmRequest(ctx, &HighQmApiRequest{
		QuantumMachineID: machineID,
		SetFrequency:     &SetFrequency{Qe: element, Value: freq},
	})
}

// SetOutputDcOffset sets the DC offset of one element output. port is
// "single", "I" or "Q".
func (a *FrontendApi) SetOutputDcOffset(ctx context.Context, machineID, element, port string, offset float64) error {
	set := &SetOutputDcOffset{Qe: QePort{Qe: element, Port: port}}
	switch port {
	case "single", "I":
		set.I = offset
	case "Q":
		set.Q = offset
	default:
		return newError(KindValidation, "element %q has no output port %q", element, port)
	}
	return a.PerformQmRequest(ctx, &HighQmApiRequest{QuantumMachineID: machineID, SetOutputDcOffset: set})
}

func (a *FrontendApi) SetOutputFilterTaps(ctx context.Context, machineID, element, port string, feedforward, feedback []float64) error {
	return a.PerformQmRequest(ctx, &HighQmApiRequest{
		QuantumMachineID: machineID,
		SetOutputFilterTaps: &SetOutputFilterTaps{
			Qe:     QePort{Qe: element, Port: port},
			Filter: AnalogOutputPortFilter{Feedforward: feedforward, Feedback: feedback},
		},
	})
}

func (a *FrontendApi) SetInputDcOffset(ctx context.Context, machineID, element, port string, offset float64) error {
	return a.PerformQmRequest(ctx, &HighQmApiRequest{
		QuantumMachineID: machineID,
		SetInputDcOffset: &SetInputDcOffset{Qe: QePort{Qe: element, Port: port}, Offset: offset},
	})
}

func (a *FrontendApi) SetDigitalDelay(ctx context.Context, machineID, element, port string, delay int32) error {
	return a.PerformQmRequest(ctx, &HighQmApiRequest{
		QuantumMachineID: machineID,
		SetDigitalRoute:  &SetDigitalRoute{Delay: &QePort{Qe: element, Port: port}, Value: delay},
	})
}

func (a *FrontendApi) SetDigitalBuffer(ctx context.Context, machineID, element, port string, buffer int32) error {
	return a.PerformQmRequest(ctx, &HighQmApiRequest{
		QuantumMachineID: machineID,
		SetDigitalRoute:  &SetDigitalRoute{Buffer: &QePort{Qe: element, Port: port}, Value: buffer},
	})
}

// SetIOValues sets IO1 and IO2. A nil value leaves that variable unchanged.
func (a *FrontendApi) SetIOValues(ctx context.Context, machineID string, io1, io2 *Value) error {
	set := &SetIoValues{All: true}
	for i, v := range []*Value{io1, io2} {
		if v == nil {
			continue
		}
		d, err := v.ioSetData(int32(i + 1))
		if err != nil {
			return err
		}
		set.IoValueSetData = append(set.IoValueSetData, d)
	}
	return a.PerformQmRequest(ctx, &HighQmApiRequest{QuantumMachineID: machineID, SetIoValues: set})
}

func (a *FrontendApi) SetDigitalInputThreshold(ctx context.Context, machineID string, port DigitalInputPort, threshold float64) error {
	return a.PerformQmRequest(ctx, &HighQmApiRequest{
		QuantumMachineID:         machineID,
		SetDigitalInputThreshold: &SetDigitalInputThreshold{DigitalPort: port, Threshold: threshold},
	})
}

func (a *FrontendApi) SetDigitalInputDeadtime(ctx context.Context, machineID string, port DigitalInputPort, deadtime int32) error {
	return a.PerformQmRequest(ctx, &HighQmApiRequest{
		QuantumMachineID:        machineID,
		SetDigitalInputDeadtime: &SetDigitalInputDeadtime{DigitalPort: port, Deadtime: deadtime},
	})
}

func (a *FrontendApi) SetDigitalInputPolarity(ctx context.Context, machineID string, port DigitalInputPort, polarity Polarity) error {
	return a.PerformQmRequest(ctx, &HighQmApiRequest{
		QuantumMachineID:        machineID,
		SetDigitalInputPolarity: &SetDigitalInputPolarity{DigitalPort: port, Polarity: polarity},
	})
}

// GetIOValues returns the current values of IO1 and IO2.
func (a *FrontendApi) GetIOValues(ctx context.Context, machineID string) ([2]IOValues, error) {
	var out [2]IOValues
	req := &QmDataRequest{IoValueRequest: []IoValueRequest{
		{IoNumber: 1, QuantumMachineID: machineID},
		{IoNumber: 2, QuantumMachineID: machineID},
	}}
	var resp QmDataResponse
	if err := a.Call(ctx, MethodRequestData, req, &resp); err != nil {
		return out, err
	}
	if !resp.Success {
		return out, newError(KindRequest, "Failed to fetch IO values: %s", joinErrorMessages(resp.Errors))
	}
	for _, r := range resp.IoValueResponse {
		if r.IoNumber == 1 || r.IoNumber == 2 {
			out[r.IoNumber-1] = r.Values
		}
	}
	return out, nil
}

func (a *FrontendApi) Halt(ctx context.Context, jobID string) (bool, error) {
	var resp OkResponse
	if err := a.Call(ctx, MethodHalt, &JobRequest{JobID: jobID}, &resp); err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (a *FrontendApi) Resume(ctx context.Context, jobID string) (bool, error) {
	var resp OkResponse
	if err := a.Call(ctx, MethodResume, &JobRequest{JobID: jobID}, &resp); err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (a *FrontendApi) IsPaused(ctx context.Context, jobID string) (bool, error) {
	var resp PausedStatusResponse
	if err := a.Call(ctx, MethodPausedStatus, &JobRequest{JobID: jobID}, &resp); err != nil {
		return false, err
	}
	return resp.IsPaused, nil
}

func (a *FrontendApi) IsJobRunning(ctx context.Context, jobID string) (bool, error) {
	var resp IsJobRunningResponse
	if err := a.Call(ctx, MethodIsJobRunning, &JobRequest{JobID: jobID}, &resp); err != nil {
		return false, err
	}
	return resp.IsRunning, nil
}

func (a *FrontendApi) IsDataAcquiring(ctx context.Context, jobID string) (AcquiringStatus, error) {
	var resp IsJobAcquiringDataResponse
	if err := a.Call(ctx, MethodIsJobAcquiringData, &JobRequest{JobID: jobID}, &resp); err != nil {
		return AcquireStopped, err
	}
	return resp.AcquiringStatus, nil
}

func (a *FrontendApi) GetJobExecutionStatus(ctx context.Context, jobID, machineID string) (JobExecutionStatus, error) {
	req := &GetJobExecutionStatusRequest{JobID: jobID, QuantumMachineID: machineID}
	var resp GetJobExecutionStatusResponse
	if err := a.Call(ctx, MethodGetJobExecutionStatus, req, &resp); err != nil {
		return JobExecutionStatus{Status: JobStatusUnknown}, err
	}
	if resp.Status.Status == "" {
		resp.Status.Status = JobStatusUnknown
	}
	return resp.Status, nil
}

// RemovePendingJobs removes the queued jobs matching params and returns how
// many were removed.
func (a *FrontendApi) RemovePendingJobs(ctx context.Context, params JobQueryParams) (int, error) {
	var resp RemovePendingJobsResponse
	if err := a.Call(ctx, MethodRemovePendingJobs, &params, &resp); err != nil {
		return 0, err
	}
	return int(resp.NumbersOfJobsRemoved), nil
}

func (a *FrontendApi) GetPendingJobs(ctx context.Context, params JobQueryParams) (map[string]PendingJobStatus, error) {
	var resp GetPendingJobsResponse
	if err := a.Call(ctx, MethodGetPendingJobs, &params, &resp); err != nil {
		return nil, err
	}
	return resp.PendingJobs, nil
}

// GetRunningJob returns the id of the machine's running job, or "" when idle.
func (a *FrontendApi) GetRunningJob(ctx context.Context, machineID string) (string, error) {
	var resp GetRunningJobResponse
	if err := a.Call(ctx, MethodGetRunningJob, &MachineRequest{MachineID: machineID}, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}
