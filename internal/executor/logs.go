package executor

import (
	"bytes"
	"sync"
)

// logBuffer collects snippet output as lines. It is safe for concurrent
// writers, which snippets spawning goroutines produce.
type logBuffer struct {
	mu      sync.Mutex
	lines   []string
	partial bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			b.partial.Write(p)
			break
		}
		b.partial.Write(p[:i])
		b.lines = append(b.lines, b.partial.String())
		b.partial.Reset()
		p = p[i+1:]
	}
	return n, nil
}

// Add appends a complete line.
func (b *logBuffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
}

// Lines returns the collected lines, including an unterminated last line.
func (b *logBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines), len(b.lines)+1)
	copy(out, b.lines)
	if b.partial.Len() > 0 {
		out = append(out, b.partial.String())
	}
	return out
}
