package mcp

import (
	"context"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/livecode/internal/executor"
	"github.com/ppiankov/livecode/internal/model"
)

// --- Input/Output types ---

// ExecuteInput defines parameters for the livecode_execute tool.
type ExecuteInput struct {
	Code            string         `json:"code" jsonschema:"Go snippet: statements, declarations plus statements, or a complete file"`
	Namespace       string         `json:"namespace,omitempty" jsonschema:"package name the snippet is wrapped in"`
	TypeName        string         `json:"type_name,omitempty" jsonschema:"name of the generated entry function"`
	Params          map[string]any `json:"params,omitempty" jsonschema:"values visible to the snippet as params"`
	ExtraReferences []string       `json:"extra_references,omitempty" jsonschema:"additional module paths the snippet may import"`
	AllLoaded       bool           `json:"all_loaded,omitempty" jsonschema:"allow every loaded module the security level permits"`
	CompileOnly     bool           `json:"compile_only,omitempty" jsonschema:"stop after compilation"`
	AllowParallel   bool           `json:"allow_parallel,omitempty" jsonschema:"run without waiting for other executions"`
	NoWait          bool           `json:"no_wait,omitempty" jsonschema:"return immediately and let the snippet finish in the background"`
}

// Violation is one security policy match.
type Violation struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Line        int    `json:"line"`
	Fragment    string `json:"fragment"`
}

// ExecuteOutput contains the execution result.
type ExecuteOutput struct {
	ExecutionID             string              `json:"execution_id"`
	Success                 bool                `json:"success"`
	Result                  any                 `json:"result,omitempty"`
	ErrorMessage            string              `json:"error_message,omitempty"`
	Logs                    []string            `json:"logs,omitempty"`
	Outcome                 string              `json:"outcome,omitempty"`
	UpdatedCode             string              `json:"updated_code,omitempty"`
	AmbiguousTypeCandidates map[string][]string `json:"ambiguous_type_candidates,omitempty"`
	HasSecurityViolations   bool                `json:"has_security_violations"`
	SecurityViolations      []Violation         `json:"security_violations,omitempty"`
	Diagnostics             []string            `json:"diagnostics,omitempty"`
	FailureReason           string              `json:"failure_reason,omitempty"`
	DurationMs              int64               `json:"duration_ms"`
}

// CompileInput defines parameters for the livecode_compile tool.
type CompileInput struct {
	Code            string   `json:"code" jsonschema:"Go snippet to compile"`
	Namespace       string   `json:"namespace,omitempty" jsonschema:"package name the snippet is wrapped in"`
	TypeName        string   `json:"type_name,omitempty" jsonschema:"name of the generated entry function"`
	ExtraReferences []string `json:"extra_references,omitempty" jsonschema:"additional module paths the snippet may import"`
	AllLoaded       bool     `json:"all_loaded,omitempty" jsonschema:"allow every loaded module the security level permits"`
}

// CompileOutput contains the compilation result.
type CompileOutput struct {
	Success                 bool                `json:"success"`
	ErrorMessage            string              `json:"error_message,omitempty"`
	UpdatedCode             string              `json:"updated_code,omitempty"`
	Imports                 []string            `json:"imports,omitempty"`
	AmbiguousTypeCandidates map[string][]string `json:"ambiguous_type_candidates,omitempty"`
	SecurityViolations      []Violation         `json:"security_violations,omitempty"`
	Diagnostics             []string            `json:"diagnostics,omitempty"`
	FailureReason           string              `json:"failure_reason,omitempty"`
	CacheHit                bool                `json:"cache_hit,omitempty"`
}

// ClearCacheInput is empty.
type ClearCacheInput struct{}

// ClearCacheOutput reports how many modules were dropped.
type ClearCacheOutput struct {
	Cleared int `json:"cleared"`
}

// ReferencesInput defines parameters for the livecode_references tool.
type ReferencesInput struct {
	Prefix          string   `json:"prefix,omitempty" jsonschema:"only list paths starting with this prefix"`
	ExtraReferences []string `json:"extra_references,omitempty" jsonschema:"additional module paths to include"`
	AllLoaded       bool     `json:"all_loaded,omitempty" jsonschema:"include every loaded module the security level permits"`
}

// ReferencesOutput lists importable packages.
type ReferencesOutput struct {
	Level   string   `json:"level"`
	Count   int      `json:"count"`
	Paths   []string `json:"paths"`
	Missing []string `json:"missing,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// --- Handlers ---

func (s *Server) handleExecute(ctx context.Context, req *mcpsdk.CallToolRequest, input ExecuteInput) (*mcpsdk.CallToolResult, ExecuteOutput, error) {
	res := s.svc.Execute(ctx, executor.Request{
		Source:          input.Code,
		Namespace:       input.Namespace,
		TypeName:        input.TypeName,
		Params:          input.Params,
		ExtraReferences: input.ExtraReferences,
		Mode:            mode(input.AllLoaded),
		CompileOnly:     input.CompileOnly,
		AllowParallel:   input.AllowParallel,
		NoWait:          input.NoWait,
	})

	out := ExecuteOutput{
		ExecutionID:             res.ExecutionID,
		Success:                 res.Success,
		Result:                  model.Portable(res.Result),
		ErrorMessage:            res.ErrorMessage,
		Logs:                    res.Logs,
		Outcome:                 string(res.Outcome),
		UpdatedCode:             res.UpdatedCode,
		AmbiguousTypeCandidates: res.AmbiguousTypeCandidates,
		HasSecurityViolations:   res.HasSecurityViolations(),
		SecurityViolations:      violations(res.Violations),
		Diagnostics:             diagnostics(res.Diagnostics),
		FailureReason:           string(res.FailureReason),
		DurationMs:              res.DurationMs,
	}
	if !res.Success {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleCompile(ctx context.Context, req *mcpsdk.CallToolRequest, input CompileInput) (*mcpsdk.CallToolResult, CompileOutput, error) {
	res := s.svc.Compile(ctx, executor.Request{
		Source:          input.Code,
		Namespace:       input.Namespace,
		TypeName:        input.TypeName,
		ExtraReferences: input.ExtraReferences,
		Mode:            mode(input.AllLoaded),
	})

	out := CompileOutput{
		Success:                 res.Success,
		ErrorMessage:            res.ErrorMessage(),
		UpdatedCode:             res.UpdatedCode,
		AmbiguousTypeCandidates: res.AmbiguousTypeCandidates,
		SecurityViolations:      violations(res.Violations),
		Diagnostics:             diagnostics(res.Diagnostics),
		FailureReason:           string(res.FailureReason),
		CacheHit:                res.CacheHit,
	}
	if res.Module != nil {
		out.Imports = res.Module.Imports
	}
	if !res.Success {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleClearCache(ctx context.Context, req *mcpsdk.CallToolRequest, input ClearCacheInput) (*mcpsdk.CallToolResult, ClearCacheOutput, error) {
	exec := s.svc.Executor()
	n := exec.CacheStats().Entries
	exec.ClearCache()
	return nil, ClearCacheOutput{Cleared: n}, nil
}

func (s *Server) handleReferences(ctx context.Context, req *mcpsdk.CallToolRequest, input ReferencesInput) (*mcpsdk.CallToolResult, ReferencesOutput, error) {
	out := ReferencesOutput{Level: s.svc.Executor().Level().String(), Paths: []string{}}

	set, missing, err := s.svc.References(ctx, executor.Request{
		ExtraReferences: input.ExtraReferences,
		Mode:            mode(input.AllLoaded),
	})
	if err != nil {
		out.Error = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	for _, p := range set.Paths() {
		if strings.HasPrefix(p, input.Prefix) {
			out.Paths = append(out.Paths, p)
		}
	}
	out.Count = len(out.Paths)
	out.Missing = missing
	return nil, out, nil
}

func mode(allLoaded bool) model.ModuleMode {
	if allLoaded {
		return model.ModeAllLoaded
	}
	return model.ModeProject
}

func violations(vs []model.SecurityViolation) []Violation {
	if len(vs) == 0 {
		return nil
	}
	out := make([]Violation, len(vs))
	for i, v := range vs {
		out[i] = Violation{
			Kind:        string(v.Kind),
			Description: v.Description,
			Line:        v.Line,
			Fragment:    v.Fragment,
		}
	}
	return out
}

func diagnostics(ds []model.Diagnostic) []string {
	if len(ds) == 0 {
		return nil
	}
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}
