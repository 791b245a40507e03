package qop

// Well-known request header keys sent to the gateway.
// The gateway routes on these before any service sees the call.
const (
	HeaderService       = "x-grpc-service"
	HeaderAuthorization = "authorization"
	HeaderClusterName   = "cluster_name"
	HeaderAnyCluster    = "any_cluster"
	HeaderLocation      = "location"
	HeaderOctaves       = "octaves"

	GatewayServiceName = "gateway"
	AnyClusterName     = "Any"
)

// gRPC service names exposed by the gateway.
const (
	FrontendService   = "qm.grpc.frontend.Frontend"
	JobManagerService = "qm.grpc.job_manager.JobManagerService"
	JobResultsService = "qm.grpc.results_analyser.JobResultsService"
	InfoService       = "qm.io.qualang.api.v1.InfoService"
)

// Naming conventions shared with the server.
const (
	InputStreamPrefix   = "input_stream_"
	TimestampsLegacyExt = "_timestamps"
)

// Method names, relative to their service.
const (
	MethodGetVersion               = "GetVersion"
	MethodHealthCheck              = "HealthCheck"
	MethodResetDataProcessing      = "ResetDataProcessing"
	MethodOpenQuantumMachine       = "OpenQuantumMachine"
	MethodListOpenQuantumMachines  = "ListOpenQuantumMachines"
	MethodGetQuantumMachine        = "GetQuantumMachine"
	MethodCloseQuantumMachine      = "CloseQuantumMachine"
	MethodCloseAllQuantumMachines  = "CloseAllQuantumMachines"
	MethodGetControllers           = "GetControllers"
	MethodClearAllJobResults       = "ClearAllJobResults"
	MethodPerformHalDebugCommand   = "PerformHalDebugCommand"
	MethodAddToQueue               = "AddToQueue"
	MethodAddCompiledToQueue       = "AddCompiledToQueue"
	MethodCompile                  = "Compile"
	MethodPerformQmRequest         = "PerformQmRequest"
	MethodRequestData              = "RequestData"
	MethodHalt                     = "Halt"
	MethodResume                   = "Resume"
	MethodPausedStatus             = "PausedStatus"
	MethodIsJobRunning             = "IsJobRunning"
	MethodIsJobAcquiringData       = "IsJobAcquiringData"
	MethodGetJobExecutionStatus    = "GetJobExecutionStatus"
	MethodRemovePendingJobs        = "RemovePendingJobs"
	MethodGetPendingJobs           = "GetPendingJobs"
	MethodGetRunningJob            = "GetRunningJob"
	MethodSimulate                 = "Simulate"
	MethodGetSimulatedQuantumState = "GetSimulatedQuantumState"
	MethodPullSimulatorSamples     = "PullSimulatorSamples"

	MethodSetElementCorrection = "SetElementCorrection"
	MethodGetElementCorrection = "GetElementCorrection"
	MethodInsertInputStream    = "InsertInputStream"

	MethodGetJobResultSchema      = "GetJobResultSchema"
	MethodGetJobState             = "GetJobState"
	MethodGetJobNamedResultHeader = "GetJobNamedResultHeader"
	MethodGetJobNamedResult       = "GetJobNamedResult"
	MethodGetJobErrors            = "GetJobErrors"
	MethodGetProgramMetadata      = "GetProgramMetadata"

	MethodGetInfo = "GetInfo"
)

// Capabilities advertised through the info service.
const (
	CapabilityJobStreamingState = "qm.job_streaming_state"
	CapabilityInputStream       = "qm.input_stream"
	CapabilityNewGrpcStructure  = "qm.new_grpc_structure"
)

// FullMethod joins a service and method into the gRPC path form.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}
