package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Defaults applied when a request leaves the unit names empty.
const (
	DefaultNamespace = "snippet"
	DefaultTypeName  = "Run"
)

// FailureReason tags why a compilation or execution did not succeed.
type FailureReason string

const (
	FailureNone              FailureReason = ""
	FailurePolicyRejection   FailureReason = "policy_rejection"
	FailureCompilationError  FailureReason = "compilation_error"
	FailureSecurityViolation FailureReason = "security_violation"
	FailureRuntimeFault      FailureReason = "runtime_fault"
	FailureCancelled         FailureReason = "cancelled"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic codes.
const (
	CodeSyntax    = "GO-SYNTAX"
	CodeUndefined = "GO-UNDEFINED"
	CodeAmbiguous = "GO-AMBIGUOUS"
	CodeImport    = "GO-IMPORT"
	CodeType      = "GO-TYPE"
	CodeEntry     = "GO-ENTRY"
	CodeUnused    = "GO-UNUSED"
	CodeReference = "LC-REFERENCE"
	CodePolicy    = "LC-POLICY"
)

// Diagnostic is one compiler message. Line and column refer to the wrapped
// source returned as UpdatedCode.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("(%d,%d): %s %s: %s", d.Line, d.Column, d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s %s: %s", d.Severity, d.Code, d.Message)
}

// ViolationKind classifies a security violation.
type ViolationKind string

const (
	ViolationForbiddenNamespace ViolationKind = "forbidden_namespace"
	ViolationDangerousCall      ViolationKind = "dangerous_method_call"
)

// SecurityViolation is one policy match found after type checking.
type SecurityViolation struct {
	Kind        ViolationKind `json:"kind"`
	Description string        `json:"description"`
	Line        int           `json:"line"`
	Column      int           `json:"column,omitempty"`
	Fragment    string        `json:"fragment"`
	Symbol      string        `json:"symbol,omitempty"`
}

// CompilationRequest is the value object a caller submits for compilation.
type CompilationRequest struct {
	Source          string     `json:"source"`
	TypeName        string     `json:"typeName,omitempty"`
	Namespace       string     `json:"namespace,omitempty"`
	ExtraReferences []string   `json:"extraReferences,omitempty"`
	Mode            ModuleMode `json:"mode,omitempty"`
}

// WithDefaults returns a copy with empty unit names and mode filled in.
func (r CompilationRequest) WithDefaults() CompilationRequest {
	if r.TypeName == "" {
		r.TypeName = DefaultTypeName
	}
	if r.Namespace == "" {
		r.Namespace = DefaultNamespace
	}
	if r.Mode == "" {
		r.Mode = ModeProject
	}
	return r
}

// Module is a compiled, verified snippet ready to be loaded into an
// interpreter. Modules are immutable once created and may be shared
// between concurrent executions.
type Module struct {
	Key       string        `json:"key"`
	Source    string        `json:"source"`
	Package   string        `json:"package"`
	Entry     string        `json:"entry"`
	SyncEntry string        `json:"syncEntry,omitempty"`
	Level     SecurityLevel `json:"level"`
	Imports   []string      `json:"imports"`

	// Exports is the interpreter symbol table of the module's reference set,
	// keyed "importpath/pkgname" like the interpreter expects.
	Exports map[string]map[string]reflect.Value `json:"-"`
}

// CompilationResult is returned by value; ownership transfers to the caller.
type CompilationResult struct {
	Success                 bool                `json:"success"`
	Module                  *Module             `json:"-"`
	Diagnostics             []Diagnostic        `json:"diagnostics,omitempty"`
	Violations              []SecurityViolation `json:"securityViolations,omitempty"`
	FailureReason           FailureReason       `json:"failureReason,omitempty"`
	UpdatedCode             string              `json:"updatedCode,omitempty"`
	AmbiguousTypeCandidates map[string][]string `json:"ambiguousTypeCandidates,omitempty"`
	CacheHit                bool                `json:"cacheHit,omitempty"`
}

// HasSecurityViolations reports whether policy inspection found anything.
func (r CompilationResult) HasSecurityViolations() bool {
	return len(r.Violations) > 0
}

// Errors returns only the error-severity diagnostics.
func (r CompilationResult) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// ErrorMessage renders an actionable message for a failed result.
// Returns "" when the compilation succeeded.
func (r CompilationResult) ErrorMessage() string {
	if r.Success {
		return ""
	}
	switch r.FailureReason {
	case FailureSecurityViolation:
		parts := make([]string, 0, len(r.Violations))
		for _, v := range r.Violations {
			parts = append(parts, fmt.Sprintf("line %d: %s", v.Line, v.Description))
		}
		return "blocked by security policy: " + strings.Join(parts, "; ")
	default:
		errs := r.Errors()
		if len(errs) == 0 {
			return string(r.FailureReason)
		}
		parts := make([]string, 0, len(errs))
		for _, d := range errs {
			parts = append(parts, d.String())
		}
		return "compilation failed: " + strings.Join(parts, "; ")
	}
}

// Outcome distinguishes the three success shapes of an execution.
type Outcome string

const (
	OutcomeNotExecuted       Outcome = "not_executed"
	OutcomeExecutedNoValue   Outcome = "executed_no_value"
	OutcomeExecutedWithValue Outcome = "executed_with_value"
)

// ExecutionResult is the structured answer to every execution request.
// Failures always carry a non-empty ErrorMessage.
type ExecutionResult struct {
	ExecutionID             string              `json:"executionId"`
	Success                 bool                `json:"success"`
	Result                  any                 `json:"result"`
	ErrorMessage            string              `json:"errorMessage,omitempty"`
	Logs                    []string            `json:"logs"`
	Outcome                 Outcome             `json:"outcome,omitempty"`
	UpdatedCode             string              `json:"updatedCode,omitempty"`
	AmbiguousTypeCandidates map[string][]string `json:"ambiguousTypeCandidates,omitempty"`
	Violations              []SecurityViolation `json:"securityViolations,omitempty"`
	Diagnostics             []Diagnostic        `json:"diagnostics,omitempty"`
	FailureReason           FailureReason       `json:"failureReason,omitempty"`
	DurationMs              int64               `json:"durationMs"`
}

// HasSecurityViolations reports whether the request was blocked by policy.
func (r ExecutionResult) HasSecurityViolations() bool {
	return len(r.Violations) > 0
}

// MarshalJSON adds the derived hasSecurityViolations flag.
func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	type plain ExecutionResult
	return json.Marshal(struct {
		plain
		HasSecurityViolations bool `json:"hasSecurityViolations"`
	}{plain(r), r.HasSecurityViolations()})
}

// ExecutionRecord is the journal row written for every execution.
type ExecutionRecord struct {
	ExecutionID   string        `json:"execution_id"`
	Key           string        `json:"key,omitempty"`
	Level         SecurityLevel `json:"level"`
	Lane          Lane          `json:"lane"`
	Mode          string        `json:"mode"`
	Success       bool          `json:"success"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	Violations    int           `json:"violations,omitempty"`
	DurationMs    int64         `json:"duration_ms"`
	StartedAt     time.Time     `json:"started_at"`
}
