// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"strings"
	"time"
)

// Request and response messages exchanged with the gateway services. Keys
// are the server's field numbers; absent fields decode to their zero value.

// Empty is the message for calls that take or return no fields.
type Empty struct{}

// StringValue wraps a single string response.
type StringValue struct {
	Value string `cbor:"1,keyasint,omitempty"`
}

// ErrorMessage is one entry of a response's error list.
type ErrorMessage struct {
	Message string `cbor:"1,keyasint,omitempty"`
}

func joinErrorMessages(errs []ErrorMessage) string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "\n")
}

// Matrix is a 2x2 IQ mixer correction matrix.
type Matrix struct {
	V00 float64 `cbor:"1,keyasint,omitempty"`
	V01 float64 `cbor:"2,keyasint,omitempty"`
	V10 float64 `cbor:"3,keyasint,omitempty"`
	V11 float64 `cbor:"4,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Frontend: session and machines

type HealthCheckResponse struct {
	Ok              bool     `cbor:"1,keyasint,omitempty"`
	Message         string   `cbor:"2,keyasint,omitempty"`
	WarningMessages []string `cbor:"3,keyasint,omitempty"`
	ErrorMessages   []string `cbor:"4,keyasint,omitempty"`
}

type ConfigValidationError struct {
	Path    string `cbor:"1,keyasint,omitempty"`
	Group   string `cbor:"2,keyasint,omitempty"`
	Message string `cbor:"3,keyasint,omitempty"`
}

type OpenQmWarning struct {
	Code    int    `cbor:"1,keyasint,omitempty"`
	Message string `cbor:"2,keyasint,omitempty"`
}

// OpenQuantumMachineRequest carries the machine config as an opaque document.
// Exactly one of Always and Never is set.
type OpenQuantumMachineRequest struct {
	Config map[string]any `cbor:"1,keyasint,omitempty"`
	Always bool           `cbor:"2,keyasint,omitempty"`
	Never  bool           `cbor:"3,keyasint,omitempty"`
}

type OpenQuantumMachineResponse struct {
	Success                  bool                    `cbor:"1,keyasint,omitempty"`
	MachineID                string                  `cbor:"2,keyasint,omitempty"`
	ConfigValidationErrors   []ConfigValidationError `cbor:"3,keyasint,omitempty"`
	PhysicalValidationErrors []ConfigValidationError `cbor:"4,keyasint,omitempty"`
	OpenQmWarnings           []OpenQmWarning         `cbor:"5,keyasint,omitempty"`
}

type ListOpenQuantumMachinesResponse struct {
	MachineIDs []string `cbor:"1,keyasint,omitempty"`
}

type MachineRequest struct {
	MachineID string `cbor:"1,keyasint,omitempty"`
}

type GetQuantumMachineResponse struct {
	Success   bool           `cbor:"1,keyasint,omitempty"`
	MachineID string         `cbor:"2,keyasint,omitempty"`
	Config    map[string]any `cbor:"3,keyasint,omitempty"`
	Errors    []ErrorMessage `cbor:"4,keyasint,omitempty"`
}

type SuccessResponse struct {
	Success bool           `cbor:"1,keyasint,omitempty"`
	Errors  []ErrorMessage `cbor:"2,keyasint,omitempty"`
}

// Controller describes one control unit attached to the gateway.
type Controller struct {
	Name     string `cbor:"1,keyasint,omitempty"`
	Hostname string `cbor:"2,keyasint,omitempty"`
	Type     string `cbor:"3,keyasint,omitempty"`
}

type GetControllersResponse struct {
	Controllers []Controller `cbor:"1,keyasint,omitempty"`
}

type PerformHalDebugCommandRequest struct {
	ControllerName string `cbor:"1,keyasint,omitempty"`
	Command        string `cbor:"2,keyasint,omitempty"`
}

type PerformHalDebugCommandResponse struct {
	Success  bool   `cbor:"1,keyasint,omitempty"`
	Response string `cbor:"2,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Frontend: queue and compilation

// Program is a serialized QUA program. Body is produced by the program
// builder and passed through untouched.
type Program struct {
	Body            any              `cbor:"1,keyasint,omitempty"`
	CompilerOptions *CompilerOptions `cbor:"2,keyasint,omitempty"`
}

// CompilerOptions tunes compilation of a single program.
type CompilerOptions struct {
	Strict *bool    `cbor:"1,keyasint,omitempty"`
	Flags  []string `cbor:"2,keyasint,omitempty"`
}

// QueuePosition selects where a program is inserted. Exactly one field is set.
type QueuePosition struct {
	Start *Empty `cbor:"1,keyasint,omitempty"`
	End   *Empty `cbor:"2,keyasint,omitempty"`
}

type AddToQueueRequest struct {
	QuantumMachineID string        `cbor:"1,keyasint,omitempty"`
	HighLevelProgram Program       `cbor:"2,keyasint"`
	QueuePosition    QueuePosition `cbor:"3,keyasint"`
}

type AddToQueueResponse struct {
	Ok       bool            `cbor:"1,keyasint,omitempty"`
	JobID    string          `cbor:"2,keyasint,omitempty"`
	Messages []ServerMessage `cbor:"3,keyasint,omitempty"`
}

// ExecutionOverrides replaces named waveforms of a compiled program.
type ExecutionOverrides struct {
	Waveforms map[string][]float64 `cbor:"1,keyasint,omitempty"`
}

type AddCompiledToQueueRequest struct {
	QuantumMachineID   string              `cbor:"1,keyasint,omitempty"`
	ProgramID          string              `cbor:"2,keyasint,omitempty"`
	QueuePosition      QueuePosition       `cbor:"3,keyasint"`
	ExecutionOverrides *ExecutionOverrides `cbor:"4,keyasint,omitempty"`
}

type AddCompiledToQueueResponse struct {
	Ok     bool           `cbor:"1,keyasint,omitempty"`
	JobID  string         `cbor:"2,keyasint,omitempty"`
	Errors []ErrorMessage `cbor:"3,keyasint,omitempty"`
}

type CompileRequest struct {
	QuantumMachineID string  `cbor:"1,keyasint,omitempty"`
	HighLevelProgram Program `cbor:"2,keyasint"`
}

type CompileResponse struct {
	Ok        bool            `cbor:"1,keyasint,omitempty"`
	ProgramID string          `cbor:"2,keyasint,omitempty"`
	Messages  []ServerMessage `cbor:"3,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Frontend: machine setters

// HighQmApiRequest applies one runtime change to an open machine. Exactly one
// of the Set fields is non-nil.
type HighQmApiRequest struct {
	QuantumMachineID         string                    `cbor:"1,keyasint,omitempty"`
	SetCorrection            *SetCorrection            `cbor:"2,keyasint,omitempty"`
	SetFrequency             *SetFrequency             `cbor:"3,keyasint,omitempty"`
	SetOutputDcOffset        *SetOutputDcOffset        `cbor:"4,keyasint,omitempty"`
	SetOutputFilterTaps      *SetOutputFilterTaps      `cbor:"5,keyasint,omitempty"`
	SetInputDcOffset         *SetInputDcOffset         `cbor:"6,keyasint,omitempty"`
	SetDigitalRoute          *SetDigitalRoute          `cbor:"7,keyasint,omitempty"`
	SetIoValues              *SetIoValues              `cbor:"8,keyasint,omitempty"`
	SetDigitalInputThreshold *SetDigitalInputThreshold `cbor:"9,keyasint,omitempty"`
	SetDigitalInputDeadtime  *SetDigitalInputDeadtime  `cbor:"10,keyasint,omitempty"`
	SetDigitalInputPolarity  *SetDigitalInputPolarity  `cbor:"11,keyasint,omitempty"`
}

type HighQmApiResponse struct {
	Ok     bool           `cbor:"1,keyasint,omitempty"`
	Errors []ErrorMessage `cbor:"2,keyasint,omitempty"`
}

// MixerInfo identifies the mixer a correction applies to.
type MixerInfo struct {
	Mixer                 string  `cbor:"1,keyasint,omitempty"`
	FrequencyNegative     bool    `cbor:"2,keyasint,omitempty"`
	IntermediateFrequency float64 `cbor:"3,keyasint,omitempty"`
	LoFrequency           float64 `cbor:"4,keyasint,omitempty"`
}

type SetCorrection struct {
	Mixer      MixerInfo `cbor:"1,keyasint"`
	Correction Matrix    `cbor:"2,keyasint"`
}

type SetFrequency struct {
	Qe    string  `cbor:"1,keyasint,omitempty"`
	Value float64 `cbor:"2,keyasint,omitempty"`
}

// QePort names one port of an element.
type QePort struct {
	Qe   string `cbor:"1,keyasint,omitempty"`
	Port string `cbor:"2,keyasint,omitempty"`
}

type SetOutputDcOffset struct {
	Qe QePort  `cbor:"1,keyasint"`
	I  float64 `cbor:"2,keyasint,omitempty"`
	Q  float64 `cbor:"3,keyasint,omitempty"`
}

// AnalogOutputPortFilter holds the IIR/FIR taps of an analog output.
type AnalogOutputPortFilter struct {
	Feedforward []float64 `cbor:"1,keyasint,omitempty"`
	Feedback    []float64 `cbor:"2,keyasint,omitempty"`
}

type SetOutputFilterTaps struct {
	Qe     QePort                 `cbor:"1,keyasint"`
	Filter AnalogOutputPortFilter `cbor:"2,keyasint"`
}

type SetInputDcOffset struct {
	Qe     QePort  `cbor:"1,keyasint"`
	Offset float64 `cbor:"2,keyasint,omitempty"`
}

// SetDigitalRoute sets either the delay or the buffer of a digital route.
type SetDigitalRoute struct {
	Delay  *QePort `cbor:"1,keyasint,omitempty"`
	Buffer *QePort `cbor:"2,keyasint,omitempty"`
	Value  int32   `cbor:"3,keyasint,omitempty"`
}

type IoValueSetData struct {
	IoNumber     int32    `cbor:"1,keyasint,omitempty"`
	IntValue     *int64   `cbor:"2,keyasint,omitempty"`
	DoubleValue  *float64 `cbor:"3,keyasint,omitempty"`
	BooleanValue *bool    `cbor:"4,keyasint,omitempty"`
}

type SetIoValues struct {
	All            bool             `cbor:"1,keyasint,omitempty"`
	IoValueSetData []IoValueSetData `cbor:"2,keyasint,omitempty"`
}

// DigitalInputPort addresses one digital input of a controller.
type DigitalInputPort struct {
	ControllerName string `cbor:"1,keyasint,omitempty"`
	PortNumber     int32  `cbor:"2,keyasint,omitempty"`
}

type SetDigitalInputThreshold struct {
	DigitalPort DigitalInputPort `cbor:"1,keyasint"`
	Threshold   float64          `cbor:"2,keyasint,omitempty"`
}

type SetDigitalInputDeadtime struct {
	DigitalPort DigitalInputPort `cbor:"1,keyasint"`
	Deadtime    int32            `cbor:"2,keyasint,omitempty"`
}

// Polarity is the edge a digital input triggers on.
type Polarity int

const (
	PolarityRising Polarity = iota
	PolarityFalling
)

type SetDigitalInputPolarity struct {
	DigitalPort DigitalInputPort `cbor:"1,keyasint"`
	Polarity    Polarity         `cbor:"2,keyasint,omitempty"`
}

type IoValueRequest struct {
	IoNumber         int32  `cbor:"1,keyasint,omitempty"`
	QuantumMachineID string `cbor:"2,keyasint,omitempty"`
}

type QmDataRequest struct {
	IoValueRequest []IoValueRequest `cbor:"1,keyasint,omitempty"`
}

// IOValues is the current content of an IO variable in every representation.
type IOValues struct {
	IntValue     int64   `cbor:"1,keyasint,omitempty"`
	DoubleValue  float64 `cbor:"2,keyasint,omitempty"`
	BooleanValue bool    `cbor:"3,keyasint,omitempty"`
}

type IoValueResponse struct {
	IoNumber int32    `cbor:"1,keyasint,omitempty"`
	Values   IOValues `cbor:"2,keyasint"`
}

type QmDataResponse struct {
	Success         bool              `cbor:"1,keyasint,omitempty"`
	Errors          []ErrorMessage    `cbor:"2,keyasint,omitempty"`
	IoValueResponse []IoValueResponse `cbor:"3,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Frontend: job control

type JobRequest struct {
	JobID string `cbor:"1,keyasint,omitempty"`
}

type OkResponse struct {
	Ok bool `cbor:"1,keyasint,omitempty"`
}

type PausedStatusResponse struct {
	IsPaused bool `cbor:"1,keyasint,omitempty"`
}

type IsJobRunningResponse struct {
	IsRunning bool `cbor:"1,keyasint,omitempty"`
}

// AcquiringStatus reports whether a job still has results to acquire.
type AcquiringStatus int

const (
	AcquireStopped AcquiringStatus = iota
	HasDataToAcquire
	NoDataToAcquire
)

func (s AcquiringStatus) String() string {
	switch s {
	case HasDataToAcquire:
		return "HasDataToAcquire"
	case NoDataToAcquire:
		return "NoDataToAcquire"
	default:
		return "AcquireStopped"
	}
}

type IsJobAcquiringDataResponse struct {
	AcquiringStatus AcquiringStatus `cbor:"1,keyasint,omitempty"`
}

type GetJobExecutionStatusRequest struct {
	JobID            string `cbor:"1,keyasint,omitempty"`
	QuantumMachineID string `cbor:"2,keyasint,omitempty"`
}

// JobStatus names the execution state of a job.
type JobStatus string

const (
	JobStatusUnknown   JobStatus = "unknown"
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCanceled  JobStatus = "canceled"
	JobStatusLoading   JobStatus = "loading"
	JobStatusError     JobStatus = "error"
)

// JobExecutionStatus is the server's view of one job. AddedBy and TimeAdded
// are only meaningful for pending, running, completed and loading jobs.
type JobExecutionStatus struct {
	Status          JobStatus `cbor:"1,keyasint,omitempty"`
	AddedBy         string    `cbor:"2,keyasint,omitempty"`
	TimeAdded       time.Time `cbor:"3,keyasint"`
	PositionInQueue int32     `cbor:"4,keyasint,omitempty"`
}

type GetJobExecutionStatusResponse struct {
	Status JobExecutionStatus `cbor:"1,keyasint"`
}

type QueryValueMatcher struct {
	Value string `cbor:"1,keyasint,omitempty"`
}

type JobQueryParams struct {
	QuantumMachineID string             `cbor:"1,keyasint,omitempty"`
	JobID            *QueryValueMatcher `cbor:"2,keyasint,omitempty"`
	Position         *int32             `cbor:"3,keyasint,omitempty"`
	UserID           *QueryValueMatcher `cbor:"4,keyasint,omitempty"`
}

type RemovePendingJobsResponse struct {
	NumbersOfJobsRemoved int32 `cbor:"1,keyasint,omitempty"`
}

type PendingJobStatus struct {
	PositionInQueue int32     `cbor:"1,keyasint,omitempty"`
	TimeAdded       time.Time `cbor:"2,keyasint"`
	AddedBy         string    `cbor:"3,keyasint,omitempty"`
}

type GetPendingJobsResponse struct {
	PendingJobs map[string]PendingJobStatus `cbor:"1,keyasint,omitempty"`
}

type GetRunningJobResponse struct {
	JobID string `cbor:"1,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Frontend: simulation

// SimulateOptions controls one simulation run. Duration is in clock cycles.
type SimulateOptions struct {
	Duration                 int64 `cbor:"1,keyasint,omitempty"`
	IncludeAnalogWaveforms   bool  `cbor:"2,keyasint,omitempty"`
	IncludeDigitalWaveforms  bool  `cbor:"3,keyasint,omitempty"`
	ExtraProcessingTimeoutMs int64 `cbor:"4,keyasint,omitempty"`
}

// InterOpxEndpoint is one side of a simulated controller connection: a
// channel when ChannelNumber is set, a left/right address when Left is set.
type InterOpxEndpoint struct {
	Controller    string `cbor:"1,keyasint,omitempty"`
	ChannelNumber *int32 `cbor:"2,keyasint,omitempty"`
	Left          *bool  `cbor:"3,keyasint,omitempty"`
}

type InterOpxConnection struct {
	Source InterOpxEndpoint `cbor:"1,keyasint"`
	Target InterOpxEndpoint `cbor:"2,keyasint"`
}

type SimulationRequest struct {
	Config                map[string]any       `cbor:"1,keyasint,omitempty"`
	HighLevelProgram      Program              `cbor:"2,keyasint"`
	Simulate              SimulateOptions      `cbor:"3,keyasint"`
	ControllerConnections []InterOpxConnection `cbor:"4,keyasint,omitempty"`
}

type SimulatedResponsePart struct {
	Errors []string `cbor:"1,keyasint,omitempty"`
}

type SimulationResponse struct {
	Success                bool                  `cbor:"1,keyasint,omitempty"`
	JobID                  string                `cbor:"2,keyasint,omitempty"`
	Messages               []ServerMessage       `cbor:"3,keyasint,omitempty"`
	ConfigValidationErrors []ServerMessage       `cbor:"4,keyasint,omitempty"`
	Simulated              SimulatedResponsePart `cbor:"5,keyasint"`
}

type Complex struct {
	Re float64 `cbor:"1,keyasint,omitempty"`
	Im float64 `cbor:"2,keyasint,omitempty"`
}

// DensityMatrix is a row-major Dimension x Dimension complex matrix.
type DensityMatrix struct {
	Dimension int32     `cbor:"1,keyasint,omitempty"`
	Elements  []Complex `cbor:"2,keyasint,omitempty"`
}

type GetSimulatedQuantumStateResponse struct {
	Ok    bool          `cbor:"1,keyasint,omitempty"`
	State DensityMatrix `cbor:"2,keyasint"`
}

type PullSimulatorSamplesRequest struct {
	JobID                 string `cbor:"1,keyasint,omitempty"`
	IncludeAnalog         bool   `cbor:"2,keyasint,omitempty"`
	IncludeDigital        bool   `cbor:"3,keyasint,omitempty"`
	IncludeAllConnections bool   `cbor:"4,keyasint,omitempty"`
}

type SamplesHeader struct {
	SimpleDType  string `cbor:"1,keyasint,omitempty"`
	CountOfItems int64  `cbor:"2,keyasint,omitempty"`
}

type SamplesData struct {
	Data []byte `cbor:"1,keyasint,omitempty"`
}

// SimulatorSamplesResponse is one chunk of the samples stream: a header
// first, then data chunks.
type SimulatorSamplesResponse struct {
	Ok     bool           `cbor:"1,keyasint,omitempty"`
	Header *SamplesHeader `cbor:"2,keyasint,omitempty"`
	Data   *SamplesData   `cbor:"3,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Job manager

type JobErrorDetails struct {
	Message         string                `cbor:"1,keyasint,omitempty"`
	ConfigQueryType ConfigQueryErrorType  `cbor:"2,keyasint,omitempty"`
	OperationType   JobOperationErrorType `cbor:"3,keyasint,omitempty"`
}

type JobManagerResponseHeader struct {
	Success   bool                `cbor:"1,keyasint,omitempty"`
	ErrorType JobManagerErrorType `cbor:"2,keyasint,omitempty"`
	Details   JobErrorDetails     `cbor:"3,keyasint"`
}

type SetElementCorrectionRequest struct {
	JobID      string `cbor:"1,keyasint,omitempty"`
	QeName     string `cbor:"2,keyasint,omitempty"`
	Correction Matrix `cbor:"3,keyasint"`
}

type GetElementCorrectionRequest struct {
	JobID  string `cbor:"1,keyasint,omitempty"`
	QeName string `cbor:"2,keyasint,omitempty"`
}

type ElementCorrectionResponse struct {
	Header     JobManagerResponseHeader `cbor:"1,keyasint"`
	Correction Matrix                   `cbor:"2,keyasint"`
}

type BoolStreamData struct {
	Data []bool `cbor:"1,keyasint,omitempty"`
}

type IntStreamData struct {
	Data []int64 `cbor:"1,keyasint,omitempty"`
}

type FixedStreamData struct {
	Data []float64 `cbor:"1,keyasint,omitempty"`
}

type InsertInputStreamRequest struct {
	JobID           string           `cbor:"1,keyasint,omitempty"`
	StreamName      string           `cbor:"2,keyasint,omitempty"`
	BoolStreamData  *BoolStreamData  `cbor:"3,keyasint,omitempty"`
	IntStreamData   *IntStreamData   `cbor:"4,keyasint,omitempty"`
	FixedStreamData *FixedStreamData `cbor:"5,keyasint,omitempty"`
}

type InsertInputStreamResponse struct {
	Header JobManagerResponseHeader `cbor:"1,keyasint"`
}

// ---------------------------------------------------------------------------
// Job results

type ResultSchemaItem struct {
	Name          string  `cbor:"1,keyasint,omitempty"`
	SimpleDType   string  `cbor:"2,keyasint,omitempty"`
	IsSingle      bool    `cbor:"3,keyasint,omitempty"`
	ExpectedCount int32   `cbor:"4,keyasint,omitempty"`
	Shape         []int32 `cbor:"5,keyasint,omitempty"`
}

type GetJobResultSchemaResponse struct {
	Items []ResultSchemaItem `cbor:"1,keyasint,omitempty"`
}

type GetJobStateResponse struct {
	Done        bool `cbor:"1,keyasint,omitempty"`
	Closed      bool `cbor:"2,keyasint,omitempty"`
	HasDataloss bool `cbor:"3,keyasint,omitempty"`
}

type GetJobNamedResultHeaderRequest struct {
	JobID      string `cbor:"1,keyasint,omitempty"`
	OutputName string `cbor:"2,keyasint,omitempty"`
	FlatFormat bool   `cbor:"3,keyasint,omitempty"`
}

type GetJobNamedResultHeaderResponse struct {
	IsSingle           bool    `cbor:"1,keyasint,omitempty"`
	CountSoFar         int64   `cbor:"2,keyasint,omitempty"`
	SimpleDType        string  `cbor:"3,keyasint,omitempty"`
	Done               bool    `cbor:"4,keyasint,omitempty"`
	Closed             bool    `cbor:"5,keyasint,omitempty"`
	HasDataloss        bool    `cbor:"6,keyasint,omitempty"`
	Shape              []int32 `cbor:"7,keyasint,omitempty"`
	HasExecutionErrors *bool   `cbor:"8,keyasint,omitempty"`
}

type GetJobNamedResultRequest struct {
	JobID      string `cbor:"1,keyasint,omitempty"`
	OutputName string `cbor:"2,keyasint,omitempty"`
	Offset     int32  `cbor:"3,keyasint,omitempty"`
	Limit      int64  `cbor:"4,keyasint,omitempty"`
	LongOffset *int64 `cbor:"5,keyasint,omitempty"`
}

// GetJobNamedResultResponse is one chunk of a named result stream. A nil Ok
// means the server did not send the flag.
type GetJobNamedResultResponse struct {
	CountOfItems int64  `cbor:"1,keyasint,omitempty"`
	Data         []byte `cbor:"2,keyasint,omitempty"`
	Ok           *bool  `cbor:"3,keyasint,omitempty"`
}

// ExecutionErrorSeverity grades runtime errors reported for a job.
type ExecutionErrorSeverity int

const (
	SeverityError ExecutionErrorSeverity = iota
	SeverityWarning
)

func (s ExecutionErrorSeverity) String() string {
	if s == SeverityWarning {
		return "WARNING"
	}
	return "ERROR"
}

type ExecutionError struct {
	ErrorCode int32                  `cbor:"1,keyasint,omitempty"`
	Severity  ExecutionErrorSeverity `cbor:"2,keyasint,omitempty"`
	Message   string                 `cbor:"3,keyasint,omitempty"`
}

type GetJobErrorsResponse struct {
	Errors []ExecutionError `cbor:"1,keyasint,omitempty"`
	JobID  string           `cbor:"2,keyasint,omitempty"`
}

type ForEachIntValues struct {
	Values []int32 `cbor:"1,keyasint,omitempty"`
}

type ForIntValues struct {
	StartValue         int32 `cbor:"1,keyasint,omitempty"`
	Step               int32 `cbor:"2,keyasint,omitempty"`
	NumberOfIterations int32 `cbor:"3,keyasint,omitempty"`
}

type ForEachDoubleValues struct {
	Values []float64 `cbor:"1,keyasint,omitempty"`
}

type ForDoubleValues struct {
	StartValue         float64 `cbor:"1,keyasint,omitempty"`
	Step               float64 `cbor:"2,keyasint,omitempty"`
	NumberOfIterations int32   `cbor:"3,keyasint,omitempty"`
}

// IterationData describes one loop variable; exactly one of the value fields
// is set.
type IterationData struct {
	IterationVariableName string               `cbor:"1,keyasint,omitempty"`
	ForEachInt            *ForEachIntValues    `cbor:"2,keyasint,omitempty"`
	ForInt                *ForIntValues        `cbor:"3,keyasint,omitempty"`
	ForEachDouble         *ForEachDoubleValues `cbor:"4,keyasint,omitempty"`
	ForDouble             *ForDoubleValues     `cbor:"5,keyasint,omitempty"`
}

type StreamMetadataEntry struct {
	StreamName    string          `cbor:"1,keyasint,omitempty"`
	IterationData []IterationData `cbor:"2,keyasint,omitempty"`
}

type StreamMetadataExtractionError struct {
	Location string `cbor:"1,keyasint,omitempty"`
	Error    string `cbor:"2,keyasint,omitempty"`
}

type ProgramStreamMetadata struct {
	StreamMetadata   []StreamMetadataEntry           `cbor:"1,keyasint,omitempty"`
	ExtractionErrors []StreamMetadataExtractionError `cbor:"2,keyasint,omitempty"`
}

type GetProgramMetadataResponse struct {
	Success               bool                  `cbor:"1,keyasint,omitempty"`
	JobID                 string                `cbor:"2,keyasint,omitempty"`
	ProgramStreamMetadata ProgramStreamMetadata `cbor:"3,keyasint"`
}

// ---------------------------------------------------------------------------
// Info service

type ImplementationDetails struct {
	Name    string `cbor:"1,keyasint,omitempty"`
	Version string `cbor:"2,keyasint,omitempty"`
	URL     string `cbor:"3,keyasint,omitempty"`
}

type GetInfoResponse struct {
	Implementation ImplementationDetails `cbor:"1,keyasint"`
	Capabilities   []string              `cbor:"2,keyasint,omitempty"`
}
