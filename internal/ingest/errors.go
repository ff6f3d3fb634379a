package ingest

import (
	"errors"
	"fmt"
)

const (
	CodeWorkerStalled = "WORKER_STALLED"
	CodeValidation    = "VALIDATION_FAILED"
	CodeUnsupported   = "UNSUPPORTED_TYPE"
	CodeStorage       = "STORAGE_UNAVAILABLE"
	CodeConvert       = "CONVERT_FAILED"
	CodeExtract       = "EXTRACT_FAILED"
	CodeThumb         = "THUMB_FAILED"
	CodeInternal      = "INTERNAL"
)

// PipelineError is how stage failures travel: a code recorded on the job
// row, a human message, and whether another attempt can help.
type PipelineError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func Retryable(code, format string, args ...any) *PipelineError {
	return &PipelineError{Code: code, Message: fmt.Sprintf(format, args...), Retryable: true}
}

func Permanent(code, format string, args ...any) *PipelineError {
	return &PipelineError{Code: code, Message: fmt.Sprintf(format, args...), Retryable: false}
}

// AsPipelineError classifies arbitrary stage errors. Anything a handler did
// not classify itself is treated as retryable: transient infrastructure
// trouble is the common case, and the attempt cap bounds the damage.
func AsPipelineError(err error) *PipelineError {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr
	}
	return Retryable(CodeInternal, "%v", err)
}
