package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ppiankov/livecode/internal/model"
)

// GenesisHash is the prev_hash for the first entry in a new audit log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Log is an append-only JSONL audit log with SHA-256 hash chaining.
// Each entry's prev_hash is the hash of the previous entry's JSON line,
// forming a tamper-evident chain.
type Log struct {
	path     string
	file     *os.File
	prevHash string
	mu       sync.Mutex
}

// DefaultPath returns ~/.livecode/audit.jsonl.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".livecode", "audit.jsonl")
	}
	return filepath.Join(home, ".livecode", "audit.jsonl")
}

// Open opens (or creates) an audit log for appending. An existing log's
// chain continues from the hash of its last line.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}

	prevHash := GenesisHash
	last, err := lastLine(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("audit: read chain tail: %w", err)
	}
	if len(last) > 0 {
		prevHash = HashLine(last)
	}

	return &Log{path: path, file: file, prevHash: prevHash}, nil
}

// lastLine returns the final non-empty line of f without its newline,
// reading backwards from the end in fixed-size chunks.
func lastLine(f *os.File) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	const chunk = 4096
	var tail []byte
	for off := info.Size(); off > 0; {
		n := int64(chunk)
		if off < n {
			n = off
		}
		off -= n
		buf := make([]byte, n)
		if _, err := f.ReadAt(buf, off); err != nil {
			return nil, err
		}
		tail = append(buf, tail...)

		trimmed := bytes.TrimRight(tail, "\n")
		if i := bytes.LastIndexByte(trimmed, '\n'); i >= 0 {
			return trimmed[i+1:], nil
		}
	}
	return bytes.TrimRight(tail, "\n"), nil
}

// Path returns the file the log appends to.
func (l *Log) Path() string {
	return l.path
}

// Record appends an Entry to the log with hash chaining.
// It sets the entry's PrevHash and Timestamp (if empty), marshals to JSON,
// writes the line, and syncs to disk.
func (l *Log) Record(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	entry.PrevHash = l.prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}

	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}

	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	l.prevHash = HashLine(line)
	return nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Journal records execution records into a Log, stamping each entry with
// the hash of the configuration in effect.
type Journal struct {
	log        *Log
	configHash string
}

// NewJournal wraps l.
func NewJournal(l *Log, configHash string) *Journal {
	return &Journal{log: l, configHash: configHash}
}

// Record appends rec to the log.
func (j *Journal) Record(_ context.Context, rec model.ExecutionRecord) error {
	return j.log.Record(FromRecord(rec, j.configHash))
}

// FromRecord converts an execution record to an audit entry.
func FromRecord(rec model.ExecutionRecord, configHash string) Entry {
	e := Entry{
		ExecutionID: rec.ExecutionID,
		Key:         rec.Key,
		Level:       rec.Level.String(),
		Lane:        string(rec.Lane),
		Mode:        rec.Mode,
		Decision:    DecisionFor(rec),
		Reason:      rec.ErrorMessage,
		Violations:  rec.Violations,
		DurationMs:  rec.DurationMs,
		ConfigHash:  configHash,
	}
	if !rec.StartedAt.IsZero() {
		e.Timestamp = rec.StartedAt.UTC().Format(TimestampFormat)
	}
	return e
}

// DecisionFor maps an execution outcome to its audit decision.
func DecisionFor(rec model.ExecutionRecord) string {
	if rec.Success {
		return DecisionExecuted
	}
	switch rec.FailureReason {
	case model.FailurePolicyRejection:
		return DecisionRejected
	case model.FailureSecurityViolation:
		return DecisionBlocked
	case model.FailureCompilationError:
		return DecisionCompileFailed
	case model.FailureCancelled:
		return DecisionCancelled
	default:
		return DecisionFaulted
	}
}
