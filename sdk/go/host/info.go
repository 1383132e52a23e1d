package host

import (
	"fmt"
	"runtime"
)

// Version is the host version. Set at build time via ldflags.
var Version = "dev"

// Info describes the host process.
func Info() map[string]any {
	return map[string]any{
		"version":    Version,
		"go":         runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"goroutines": runtime.NumGoroutine(),
	}
}

// Param returns params[key], or def when the key is absent or nil.
func Param(params map[string]any, key string, def any) any {
	if v, ok := params[key]; ok && v != nil {
		return v
	}
	return def
}

func sprint(v any) string {
	return fmt.Sprint(v)
}
