// Package service owns the long-lived executor behind the CLI, MCP and gRPC
// front ends: configuration, journals, and reload on config change.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ppiankov/livecode/internal/audit"
	"github.com/ppiankov/livecode/internal/config"
	"github.com/ppiankov/livecode/internal/denylist"
	"github.com/ppiankov/livecode/internal/executor"
	"github.com/ppiankov/livecode/internal/history"
	"github.com/ppiankov/livecode/internal/inventory"
	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/internal/policy"
	"github.com/ppiankov/livecode/internal/refs"
)

// Options configures a Service.
type Options struct {
	ConfigPath string
	Inventory  inventory.Inventory
	Logger     *slog.Logger

	// Level overrides security_level from the config file when non-empty.
	Level string
	// NoJournal skips the audit log and history store.
	NoJournal bool
}

// Service holds the current executor and swaps it on reload.
type Service struct {
	mu      sync.RWMutex
	exec    *executor.Executor
	retired map[*executor.Executor]struct{} // replaced, background runs pending
	cfg     *config.Config
	cfgHash string

	// slot is shared by every executor so exclusive runs stay serialized
	// across reloads.
	slot *semaphore.Weighted

	opts    Options
	inv     inventory.Inventory
	logger  *slog.Logger
	audit   *audit.Log
	history *history.Store
}

// New loads configuration, opens the journals and builds the first executor.
func New(opts Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	inv := opts.Inventory
	if inv == nil {
		inv = inventory.Default()
	}

	cfg, hash, err := config.LoadWithHash(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	s := &Service{
		opts:    opts,
		inv:     inv,
		logger:  opts.Logger,
		retired: make(map[*executor.Executor]struct{}),
		slot:    semaphore.NewWeighted(1),
	}

	if !opts.NoJournal {
		auditPath := cfg.AuditLog
		if auditPath == "" {
			auditPath = audit.DefaultPath()
		}
		if s.audit, err = audit.Open(auditPath); err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		historyPath := cfg.HistoryDB
		if historyPath == "" {
			historyPath = history.DefaultPath()
		}
		if s.history, err = history.Open(historyPath); err != nil {
			s.audit.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
	}

	exec, err := s.build(cfg, hash)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.exec, s.cfg, s.cfgHash = exec, cfg, hash
	return s, nil
}

// build creates an executor for cfg. Levels are fixed per executor, so every
// configuration change produces a new one.
func (s *Service) build(cfg *config.Config, hash string) (*executor.Executor, error) {
	label := cfg.SecurityLevel
	if s.opts.Level != "" {
		label = s.opts.Level
	}
	level, err := model.ParseSecurityLevel(label)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidLevel, err)
	}

	dl, err := denylist.Load(cfg.Denylist)
	if err != nil {
		return nil, fmt.Errorf("failed to load denylist: %w", err)
	}
	pol := policy.New(dl)

	var journals []executor.Journal
	if s.audit != nil {
		journals = append(journals, audit.NewJournal(s.audit, hash))
	}
	if s.history != nil {
		journals = append(journals, s.history)
	}

	return executor.New(executor.Options{
		Level:    level,
		Policy:   pol,
		Resolver: refs.NewResolver(s.inv, pol, s.logger),
		Logger:   s.logger,
		Journals: journals,
		Slot:     s.slot,
	}), nil
}

// Reload re-reads the config and denylist. On failure the current executor
// stays in place. The audit_log and history_db paths are fixed at New.
func (s *Service) Reload() error {
	cfg, hash, err := config.LoadWithHash(s.opts.ConfigPath)
	if err != nil {
		return err
	}
	exec, err := s.build(cfg, hash)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.exec
	s.retired[old] = struct{}{}
	s.exec, s.cfg, s.cfgHash = exec, cfg, hash
	s.mu.Unlock()

	old.ClearCache()
	go s.release(old)
	s.logger.Info("configuration reloaded", "level", exec.Level().String(), "config_hash", hash)
	return nil
}

// release forgets a replaced executor once its background runs finish.
func (s *Service) release(old *executor.Executor) {
	old.Wait()
	s.mu.Lock()
	delete(s.retired, old)
	s.mu.Unlock()
}

// retiredCount returns how many replaced executors still have runs pending.
func (s *Service) retiredCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.retired)
}

// Executor returns the current executor.
func (s *Service) Executor() *executor.Executor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exec
}

// Config returns the configuration in effect and its hash.
func (s *Service) Config() (*config.Config, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.cfgHash
}

// History returns the history store, or nil when journaling is off.
func (s *Service) History() *history.Store {
	return s.history
}

// WatchPaths returns the files whose changes trigger a reload.
func (s *Service) WatchPaths() []string {
	cfg, _ := s.Config()
	path := s.opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	dl := cfg.Denylist
	if dl == "" {
		dl = denylist.DefaultPath()
	}
	return []string{path, dl}
}

// Prepare fills request fields the caller left empty from the config.
func (s *Service) Prepare(req executor.Request) executor.Request {
	cfg, _ := s.Config()
	if req.Namespace == "" {
		req.Namespace = cfg.Namespace
	}
	if req.TypeName == "" {
		req.TypeName = cfg.TypeName
	}
	if len(cfg.ExtraReferences) > 0 {
		req.ExtraReferences = append(append([]string(nil), cfg.ExtraReferences...), req.ExtraReferences...)
	}
	req.AllowParallel = req.AllowParallel || cfg.AllowParallel
	return req
}

// Execute runs req on the current executor.
func (s *Service) Execute(ctx context.Context, req executor.Request) model.ExecutionResult {
	return s.Executor().ExecuteCode(ctx, s.Prepare(req))
}

// Compile compiles req on the current executor without running it.
func (s *Service) Compile(ctx context.Context, req executor.Request) model.CompilationResult {
	return s.Executor().Compile(ctx, s.Prepare(req).CompilationRequest())
}

// References lists the reference set req would compile against.
func (s *Service) References(ctx context.Context, req executor.Request) (*refs.Set, []string, error) {
	req = s.Prepare(req)
	return s.Executor().References(ctx, req.ExtraReferences, req.Mode)
}

// ClearCache drops every compiled module of the current executor.
func (s *Service) ClearCache() {
	s.Executor().ClearCache()
}

// Close waits for background runs and closes the journals.
func (s *Service) Close() error {
	s.mu.RLock()
	running := []*executor.Executor{s.exec}
	for exec := range s.retired {
		running = append(running, exec)
	}
	s.mu.RUnlock()
	for _, exec := range running {
		if exec != nil {
			exec.Wait()
		}
	}
	var errs []error
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
	}
	return errors.Join(errs...)
}
