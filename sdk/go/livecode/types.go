package livecode

import (
	"github.com/ppiankov/livecode/internal/executor"
	"github.com/ppiankov/livecode/internal/model"
)

// Level is the security level of a Client.
type Level = model.SecurityLevel

const (
	Disabled   = model.Disabled
	Restricted = model.Restricted
	FullAccess = model.FullAccess
)

// ParseLevel maps a label such as "restricted" to its Level.
func ParseLevel(s string) (Level, error) {
	return model.ParseSecurityLevel(s)
}

type (
	// Request is one execution request.
	Request = executor.Request
	// CompilationRequest is one compilation request.
	CompilationRequest = model.CompilationRequest
	// CompilationResult is the outcome of Compile.
	CompilationResult = model.CompilationResult
	// ExecutionResult is the outcome of ExecuteCode.
	ExecutionResult = model.ExecutionResult
	// ExecutionRecord is what journals receive.
	ExecutionRecord = model.ExecutionRecord
	// Diagnostic is one compiler message.
	Diagnostic = model.Diagnostic
	// SecurityViolation is one policy match.
	SecurityViolation = model.SecurityViolation
	// Journal receives one record per finished execution.
	Journal = executor.Journal
)

// Failure reasons.
const (
	FailurePolicyRejection   = model.FailurePolicyRejection
	FailureCompilationError  = model.FailureCompilationError
	FailureSecurityViolation = model.FailureSecurityViolation
	FailureRuntimeFault      = model.FailureRuntimeFault
	FailureCancelled         = model.FailureCancelled
)

// ExecutionError is returned by Execute when the execution did not succeed.
type ExecutionError struct {
	Result ExecutionResult
}

func (e *ExecutionError) Error() string {
	return "livecode: " + e.Result.ErrorMessage
}

// Reason returns why the execution failed.
func (e *ExecutionError) Reason() model.FailureReason {
	return e.Result.FailureReason
}

// Unwrap maps disabled and cancelled executions to their sentinel errors.
func (e *ExecutionError) Unwrap() error {
	switch e.Result.FailureReason {
	case model.FailurePolicyRejection:
		return executor.ErrDisabled
	case model.FailureCancelled:
		return executor.ErrCancelled
	}
	return nil
}

var (
	// ErrDisabled matches executions rejected because the level is Disabled.
	ErrDisabled = executor.ErrDisabled
	// ErrCancelled matches executions cancelled by the caller.
	ErrCancelled = executor.ErrCancelled
)
