package livecode

import (
	"log/slog"
	"reflect"

	"github.com/ppiankov/livecode/internal/executor"
	"github.com/ppiankov/livecode/internal/model"
)

// Option configures a Client at creation time.
type Option func(*clientConfig)

type module struct {
	path    string
	version string
	symbols map[string]reflect.Value
}

type clientConfig struct {
	level        model.SecurityLevel
	denylistPath string
	auditPath    string
	logger       *slog.Logger
	modules      []module
	journals     []Journal
}

// WithLevel sets the security level. The default is Restricted.
func WithLevel(level Level) Option {
	return func(c *clientConfig) { c.level = level }
}

// WithDenylist sets the path to a denylist YAML file.
func WithDenylist(path string) Option {
	return func(c *clientConfig) { c.denylistPath = path }
}

// WithLogger sets the structured logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithModule exposes a host package to snippets as a project module.
// symbols maps exported names to values: functions and variables as
// reflect.ValueOf(fn) or reflect.ValueOf(&v), types as
// reflect.ValueOf((*T)(nil)).
func WithModule(path, version string, symbols map[string]reflect.Value) Option {
	return func(c *clientConfig) {
		c.modules = append(c.modules, module{path: path, version: version, symbols: symbols})
	}
}

// WithAuditLog appends every execution to a hash-chained audit log at path.
func WithAuditLog(path string) Option {
	return func(c *clientConfig) { c.auditPath = path }
}

// WithJournal adds a receiver for execution records.
func WithJournal(j Journal) Option {
	return func(c *clientConfig) { c.journals = append(c.journals, j) }
}

// RunOption configures a single Execute call.
type RunOption func(*executor.Request)

// RunWithParams sets the params map handed to the entry point.
func RunWithParams(params map[string]any) RunOption {
	return func(r *executor.Request) { r.Params = params }
}

// RunWithNames overrides the namespace and entry type name.
func RunWithNames(namespace, typeName string) RunOption {
	return func(r *executor.Request) {
		r.Namespace = namespace
		r.TypeName = typeName
	}
}

// RunWithReferences adds module paths to the reference set.
func RunWithReferences(paths ...string) RunOption {
	return func(r *executor.Request) { r.ExtraReferences = append(r.ExtraReferences, paths...) }
}

// RunWithAllLoaded lets the snippet reference every loaded module the
// level permits.
func RunWithAllLoaded() RunOption {
	return func(r *executor.Request) { r.Mode = model.ModeAllLoaded }
}

// RunInParallel skips the exclusive lane.
func RunInParallel() RunOption {
	return func(r *executor.Request) { r.AllowParallel = true }
}
