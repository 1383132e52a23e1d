// Package executor coordinates compilation and invocation of snippets:
// admission by security level, the exclusive and parallel lanes,
// compile-only and fire-and-forget modes, cancellation and result bridging.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ppiankov/livecode/internal/cache"
	"github.com/ppiankov/livecode/internal/compiler"
	"github.com/ppiankov/livecode/internal/inventory"
	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/internal/policy"
	"github.com/ppiankov/livecode/internal/redact"
	"github.com/ppiankov/livecode/internal/refs"
	"github.com/ppiankov/livecode/sdk/go/host"
)

var (
	// ErrDisabled is reported when the executor's level is Disabled.
	ErrDisabled = errors.New("code execution is disabled by security policy")
	// ErrCancelled is reported when the caller cancels a run.
	ErrCancelled = errors.New("execution cancelled")
)

// Request is one execution request.
type Request struct {
	Source          string           `json:"source"`
	TypeName        string           `json:"typeName,omitempty"`
	Namespace       string           `json:"namespace,omitempty"`
	Params          map[string]any   `json:"params,omitempty"`
	ExtraReferences []string         `json:"extraReferences,omitempty"`
	Mode            model.ModuleMode `json:"mode,omitempty"`
	CompileOnly     bool             `json:"compileOnly,omitempty"`
	AllowParallel   bool             `json:"allowParallel,omitempty"`
	NoWait          bool             `json:"noWait,omitempty"`
}

// CompilationRequest returns the compilation half of r.
func (r Request) CompilationRequest() model.CompilationRequest {
	return model.CompilationRequest{
		Source:          r.Source,
		TypeName:        r.TypeName,
		Namespace:       r.Namespace,
		ExtraReferences: r.ExtraReferences,
		Mode:            r.Mode,
	}.WithDefaults()
}

// Journal receives one record per finished execution.
type Journal interface {
	Record(ctx context.Context, rec model.ExecutionRecord) error
}

// Options configures an Executor.
type Options struct {
	Level     model.SecurityLevel
	Policy    *policy.Policy
	Inventory inventory.Inventory // used when Resolver is nil
	Resolver  *refs.Resolver
	Logger    *slog.Logger
	Journals  []Journal

	// Slot is the exclusive lane. Executors that share it never run
	// exclusive snippets concurrently. Nil gives the executor its own.
	Slot *semaphore.Weighted
}

// Executor runs snippets at a fixed security level.
type Executor struct {
	level    model.SecurityLevel
	policy   *policy.Policy
	compiler *compiler.Compiler
	slot     *semaphore.Weighted
	logger   *slog.Logger
	journals []Journal
	bg       sync.WaitGroup
}

// New creates an Executor.
func New(opts Options) *Executor {
	if opts.Policy == nil {
		opts.Policy = policy.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Resolver == nil {
		inv := opts.Inventory
		if inv == nil {
			inv = inventory.Default()
		}
		opts.Resolver = refs.NewResolver(inv, opts.Policy, opts.Logger)
	}
	if opts.Slot == nil {
		opts.Slot = semaphore.NewWeighted(1)
	}
	return &Executor{
		level:    opts.Level,
		policy:   opts.Policy,
		compiler: compiler.New(opts.Level, opts.Policy, opts.Resolver, opts.Logger),
		slot:     opts.Slot,
		logger:   opts.Logger,
		journals: opts.Journals,
	}
}

// Level returns the executor's security level.
func (e *Executor) Level() model.SecurityLevel {
	return e.level
}

// Compile compiles req without running it.
func (e *Executor) Compile(ctx context.Context, req model.CompilationRequest) model.CompilationResult {
	return e.compiler.Compile(ctx, req)
}

// References returns the reference set a request with extra and mode
// would compile against, and the extra paths that match nothing.
func (e *Executor) References(ctx context.Context, extra []string, mode model.ModuleMode) (*refs.Set, []string, error) {
	set, missing, err := e.compiler.References(ctx, model.CompilationRequest{ExtraReferences: extra, Mode: mode})
	if errors.Is(err, policy.ErrDisabled) {
		return nil, nil, ErrDisabled
	}
	return set, missing, err
}

// ClearCache drops every compiled module.
func (e *Executor) ClearCache() {
	e.compiler.ClearCache()
}

// CacheStats returns the module cache counters.
func (e *Executor) CacheStats() cache.Stats {
	return e.compiler.Cache().Stats()
}

// Wait blocks until every background run has finished.
func (e *Executor) Wait() {
	e.bg.Wait()
}

// ExecuteCode compiles and runs req. Every outcome, including rejection and
// cancellation, is reported in the result rather than as an error.
func (e *Executor) ExecuteCode(ctx context.Context, req Request) model.ExecutionResult {
	id := NewExecutionID()
	start := time.Now()
	lane := model.LaneExclusive
	if req.AllowParallel {
		lane = model.LaneParallel
	}
	creq := req.CompilationRequest()

	if err := e.policy.Check(e.level); err != nil {
		res := model.ExecutionResult{
			ExecutionID:   id,
			ErrorMessage:  ErrDisabled.Error(),
			Logs:          []string{},
			FailureReason: model.FailurePolicyRejection,
			Outcome:       model.OutcomeNotExecuted,
		}
		return e.finish(ctx, res, "", lane, creq.Mode, start)
	}

	cres := e.compiler.Compile(ctx, creq)
	if !cres.Success {
		res := model.ExecutionResult{
			ExecutionID:             id,
			ErrorMessage:            cres.ErrorMessage(),
			Logs:                    []string{},
			Outcome:                 model.OutcomeNotExecuted,
			UpdatedCode:             cres.UpdatedCode,
			AmbiguousTypeCandidates: cres.AmbiguousTypeCandidates,
			Violations:              cres.Violations,
			Diagnostics:             cres.Diagnostics,
			FailureReason:           cres.FailureReason,
		}
		return e.finish(ctx, res, "", lane, creq.Mode, start)
	}
	mod := cres.Module

	if req.CompileOnly {
		res := model.ExecutionResult{
			ExecutionID: id,
			Success:     true,
			Logs:        []string{},
			Outcome:     model.OutcomeNotExecuted,
			UpdatedCode: cres.UpdatedCode,
			Diagnostics: cres.Diagnostics,
		}
		return e.finish(ctx, res, mod.Key, lane, creq.Mode, start)
	}

	params := req.Params
	if params == nil {
		params = map[string]any{}
	}

	if req.NoWait {
		bgctx := context.WithoutCancel(ctx)
		e.bg.Add(1)
		go func() {
			defer e.bg.Done()
			res := e.run(bgctx, id, mod, params, lane)
			res.UpdatedCode = cres.UpdatedCode
			if !res.Success {
				e.logger.Warn("background execution failed",
					"execution_id", id,
					"failure", string(res.FailureReason),
					"error", res.ErrorMessage)
			}
			e.finish(bgctx, res, mod.Key, lane, creq.Mode, start)
		}()
		return model.ExecutionResult{
			ExecutionID: id,
			Success:     true,
			Logs:        []string{fmt.Sprintf("execution %s continues in background", id)},
			Outcome:     model.OutcomeExecutedNoValue,
			UpdatedCode: cres.UpdatedCode,
			Diagnostics: cres.Diagnostics,
			DurationMs:  time.Since(start).Milliseconds(),
		}
	}

	res := e.run(ctx, id, mod, params, lane)
	res.UpdatedCode = cres.UpdatedCode
	res.Diagnostics = cres.Diagnostics
	return e.finish(ctx, res, mod.Key, lane, creq.Mode, start)
}

// run admits the module to its lane and invokes it. The caller's context
// reaches the snippet as its ctx parameter; cancellation is reported
// promptly even when the snippet ignores it.
func (e *Executor) run(ctx context.Context, id string, mod *model.Module, params map[string]any, lane model.Lane) model.ExecutionResult {
	res := model.ExecutionResult{ExecutionID: id, Logs: []string{}}

	if lane == model.LaneExclusive {
		if err := e.slot.Acquire(ctx, 1); err != nil {
			return cancelled(res)
		}
		defer e.slot.Release(1)
	}

	logs := &logBuffer{}
	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	runCtx := host.WithLogSink(ctx, logs.Add)

	go func() {
		fn, err := load(runCtx, mod, logs)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		v, err := call(runCtx, fn, params)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		res.Logs = logs.Lines()
		switch {
		case o.err == nil:
			res.Success = true
			res.Result = o.value
			res.Outcome = model.OutcomeExecutedNoValue
			if o.value != nil {
				res.Outcome = model.OutcomeExecutedWithValue
			}
		case ctx.Err() != nil && (errors.Is(o.err, context.Canceled) || errors.Is(o.err, context.DeadlineExceeded)):
			res = cancelled(res)
		default:
			res.FailureReason = model.FailureRuntimeFault
			res.ErrorMessage = "runtime fault: " + faultMessage(o.err)
			res.Outcome = model.OutcomeNotExecuted
		}
	case <-ctx.Done():
		res.Logs = logs.Lines()
		res = cancelled(res)
	}
	return res
}

func cancelled(res model.ExecutionResult) model.ExecutionResult {
	res.Success = false
	res.Result = nil
	res.FailureReason = model.FailureCancelled
	res.ErrorMessage = ErrCancelled.Error()
	res.Outcome = model.OutcomeNotExecuted
	return res
}

// finish stamps the duration and journals the result.
func (e *Executor) finish(ctx context.Context, res model.ExecutionResult, key string, lane model.Lane, mode model.ModuleMode, start time.Time) model.ExecutionResult {
	res.DurationMs = time.Since(start).Milliseconds()
	if len(e.journals) == 0 {
		return res
	}
	rec := model.ExecutionRecord{
		ExecutionID:   res.ExecutionID,
		Key:           key,
		Level:         e.level,
		Lane:          lane,
		Mode:          string(mode),
		Success:       res.Success,
		FailureReason: res.FailureReason,
		ErrorMessage:  redact.String(res.ErrorMessage),
		Violations:    len(res.Violations),
		DurationMs:    res.DurationMs,
		StartedAt:     start.UTC(),
	}
	jctx := context.WithoutCancel(ctx)
	for _, j := range e.journals {
		if err := j.Record(jctx, rec); err != nil {
			e.logger.Warn("journal write failed", "execution_id", res.ExecutionID, "error", err)
		}
	}
	return res
}
