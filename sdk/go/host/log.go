package host

import (
	"context"
	"fmt"
	"strings"
)

// LogSink receives one formatted log line.
type LogSink func(line string)

type sinkKey struct{}

// WithLogSink returns a context whose Logf calls are delivered to sink.
func WithLogSink(ctx context.Context, sink LogSink) context.Context {
	return context.WithValue(ctx, sinkKey{}, sink)
}

// Logf records a log line for the current execution. Lines are returned to
// the caller in ExecutionResult.Logs. Without a sink the call is a no-op.
func Logf(ctx context.Context, format string, args ...any) {
	emit(ctx, fmt.Sprintf(format, args...))
}

// Log records its operands like fmt.Sprint.
func Log(ctx context.Context, args ...any) {
	emit(ctx, fmt.Sprint(args...))
}

func emit(ctx context.Context, line string) {
	if ctx == nil {
		return
	}
	sink, ok := ctx.Value(sinkKey{}).(LogSink)
	if !ok || sink == nil {
		return
	}
	sink(strings.TrimRight(line, "\n"))
}
