package qop

import "slices"

// ServerErrorCode enumerates the semantic errors the job manager reports.
type ServerErrorCode int

const (
	CodeUnspecified ServerErrorCode = 0

	CodeMissingJob                     ServerErrorCode = 1000
	CodeInvalidJobExecutionStatus      ServerErrorCode = 1001
	CodeInvalidOperationOnSimulatorJob ServerErrorCode = 1002
	CodeInvalidOperationOnRealJob      ServerErrorCode = 1003
	CodeUnknownInputStream             ServerErrorCode = 1006

	CodeElementWithSingleInput              ServerErrorCode = 3000
	CodeInvalidElementCorrection            ServerErrorCode = 3001
	CodeElementWithoutIntermediateFrequency ServerErrorCode = 3002
	CodeInvalidDigitalInputThreshold        ServerErrorCode = 3003
	CodeInvalidDigitalInputDeadtime         ServerErrorCode = 3004
	CodeInvalidDigitalInputPolarity         ServerErrorCode = 3005

	CodeMissingElement      ServerErrorCode = 4001
	CodeMissingDigitalInput ServerErrorCode = 4002
)

var serverErrorNames = map[ServerErrorCode]string{
	CodeUnspecified:                         "UnspecifiedError",
	CodeMissingJob:                          "MissingJobError",
	CodeInvalidJobExecutionStatus:           "InvalidJobExecutionStatusError",
	CodeInvalidOperationOnSimulatorJob:      "InvalidOperationOnSimulatorJobError",
	CodeInvalidOperationOnRealJob:           "InvalidOperationOnRealJobError",
	CodeUnknownInputStream:                  "UnknownInputStreamError",
	CodeElementWithSingleInput:              "ElementWithSingleInputError",
	CodeInvalidElementCorrection:            "InvalidElementCorrectionError",
	CodeElementWithoutIntermediateFrequency: "ElementWithoutIntermediateFrequencyError",
	CodeInvalidDigitalInputThreshold:        "InvalidDigitalInputThresholdError",
	CodeInvalidDigitalInputDeadtime:         "InvalidDigitalInputDeadtimeError",
	CodeInvalidDigitalInputPolarity:         "InvalidDigitalInputPolarityError",
	CodeMissingElement:                      "MissingElementError",
	CodeMissingDigitalInput:                 "MissingDigitalInputError",
}

func (c ServerErrorCode) String() string {
	if name, ok := serverErrorNames[c]; ok {
		return name
	}
	return "UnknownServerError"
}

// JobManagerErrorType is the error category of a job manager response header.
type JobManagerErrorType int

const (
	JobManagerErrorNone JobManagerErrorType = iota
	JobManagerErrorMissingJob
	JobManagerErrorInvalidJobExecutionStatus
	JobManagerErrorInvalidOperationOnSimulatorJob
	JobManagerErrorInvalidOperationOnRealJob
	JobManagerErrorJobOperationSpecific
	JobManagerErrorConfigQuery
	JobManagerErrorUnknownInputStream
)

// ConfigQueryErrorType refines JobManagerErrorConfigQuery.
type ConfigQueryErrorType int

const (
	ConfigQueryErrorNone ConfigQueryErrorType = iota
	ConfigQueryErrorMissingElement
	ConfigQueryErrorMissingDigitalInput
)

// JobOperationErrorType refines JobManagerErrorJobOperationSpecific.
type JobOperationErrorType int

const (
	JobOperationErrorNone JobOperationErrorType = iota
	JobOperationErrorSingleInputElement
	JobOperationErrorInvalidCorrectionMatrix
	JobOperationErrorElementWithoutIntermediateFrequency
	JobOperationErrorInvalidDigitalInputThreshold
	JobOperationErrorInvalidDigitalInputDeadtime
	JobOperationErrorInvalidDigitalInputPolarity
)

// errorContext carries the request fields some server errors echo back.
type errorContext struct {
	elementName string
	correction  *Matrix
}

// jobManagerError converts a failed job manager header into a *ServerError.
// Operation and config query errors are reported only when their code is in
// valid; anything else degrades to CodeUnspecified.
func jobManagerError(h *JobManagerResponseHeader, ec errorContext, valid []ServerErrorCode) error {
	if h == nil || h.Success {
		return nil
	}
	switch h.ErrorType {
	case JobManagerErrorMissingJob:
		return &ServerError{Code: CodeMissingJob}
	case JobManagerErrorInvalidJobExecutionStatus:
		return &ServerError{Code: CodeInvalidJobExecutionStatus}
	case JobManagerErrorInvalidOperationOnSimulatorJob:
		return &ServerError{Code: CodeInvalidOperationOnSimulatorJob}
	case JobManagerErrorInvalidOperationOnRealJob:
		return &ServerError{Code: CodeInvalidOperationOnRealJob}
	case JobManagerErrorUnknownInputStream:
		return &ServerError{Code: CodeUnknownInputStream}
	case JobManagerErrorJobOperationSpecific:
		err := jobOperationError(h.Details, ec)
		return filterServerError(err, valid)
	case JobManagerErrorConfigQuery:
		err := configQueryError(h.Details)
		return filterServerError(err, valid)
	default:
		return &ServerError{Code: CodeUnspecified, Message: "Unspecified operation error"}
	}
}

func filterServerError(err *ServerError, valid []ServerErrorCode) error {
	if err.Code != CodeUnspecified && slices.Contains(valid, err.Code) {
		return err
	}
	return &ServerError{Code: CodeUnspecified, Message: "Unspecified operation specific error"}
}

func configQueryError(d JobErrorDetails) *ServerError {
	switch d.ConfigQueryType {
	case ConfigQueryErrorMissingElement:
		return &ServerError{Code: CodeMissingElement, Message: d.Message}
	case ConfigQueryErrorMissingDigitalInput:
		return &ServerError{Code: CodeMissingDigitalInput, Message: d.Message}
	default:
		return &ServerError{Code: CodeUnspecified, Message: "Unspecified config query error"}
	}
}

func jobOperationError(d JobErrorDetails, ec errorContext) *ServerError {
	switch d.OperationType {
	case JobOperationErrorSingleInputElement:
		return &ServerError{Code: CodeElementWithSingleInput, ElementName: ec.elementName}
	case JobOperationErrorInvalidCorrectionMatrix:
		return &ServerError{
			Code:        CodeInvalidElementCorrection,
			Message:     d.Message,
			ElementName: ec.elementName,
			Correction:  ec.correction,
		}
	case JobOperationErrorElementWithoutIntermediateFrequency:
		return &ServerError{Code: CodeElementWithoutIntermediateFrequency, ElementName: ec.elementName}
	case JobOperationErrorInvalidDigitalInputThreshold:
		return &ServerError{Code: CodeInvalidDigitalInputThreshold, Message: d.Message}
	case JobOperationErrorInvalidDigitalInputDeadtime:
		return &ServerError{Code: CodeInvalidDigitalInputDeadtime, Message: d.Message}
	case JobOperationErrorInvalidDigitalInputPolarity:
		return &ServerError{Code: CodeInvalidDigitalInputPolarity, Message: d.Message}
	default:
		return &ServerError{Code: CodeUnspecified, Message: "Unspecified operation specific error"}
	}
}
