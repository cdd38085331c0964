package harness

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes run failures.
type ErrorCode string

const (
	// CodeConfiguration indicates the run could not start. No remote call
	// was made.
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// CodeProvisioning indicates the type or stream could not be ensured.
	CodeProvisioning ErrorCode = "PROVISIONING"

	// CodeInsertion indicates the synthetic events were rejected.
	CodeInsertion ErrorCode = "INSERTION"

	// CodePipeline indicates the pipeline under test failed or panicked.
	CodePipeline ErrorCode = "PIPELINE"

	// CodeCleanup indicates a provisioned resource could not be deleted.
	// Cleanup errors are reported but never decide the verdict.
	CodeCleanup ErrorCode = "CLEANUP"
)

// Sentinels for errors.Is checks against a StageError's code.
var (
	ErrConfiguration = &StageError{Code: CodeConfiguration}
	ErrProvisioning  = &StageError{Code: CodeProvisioning}
	ErrInsertion     = &StageError{Code: CodeInsertion}
	ErrPipeline      = &StageError{Code: CodePipeline}
	ErrCleanup       = &StageError{Code: CodeCleanup}
)

// StageError is a failure recorded during a run.
type StageError struct {
	Code ErrorCode

	// Stage is where the failure happened.
	Stage Stage

	// Resource names the resource a cleanup error is about ("stream" or
	// "type"). Empty for other codes.
	Resource string

	// Err is the underlying error, typically an *sds.StoreError.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s (%s): %v", e.Code, e.Resource, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches another StageError with the same code. This makes the
// package sentinels usable with errors.Is.
func (e *StageError) Is(target error) bool {
	t, ok := target.(*StageError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Err == nil
}

// CodeOf returns the code of the first StageError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}
