package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// VerifyResult reports whether an audit log's chain is intact. On success it
// also carries per-decision counts and the config revisions seen, in order of
// first appearance.
type VerifyResult struct {
	Valid        bool           `json:"valid"`
	Lines        int            `json:"lines"`
	Decisions    map[string]int `json:"decisions,omitempty"`
	ConfigHashes []string       `json:"config_hashes,omitempty"`
	Error        string         `json:"error,omitempty"`
	ErrorLine    int            `json:"error_line,omitempty"`
}

var knownDecisions = map[string]bool{
	DecisionExecuted:      true,
	DecisionRejected:      true,
	DecisionBlocked:       true,
	DecisionCompileFailed: true,
	DecisionFaulted:       true,
	DecisionCancelled:     true,
}

// Verify walks the log at path and checks that every entry links to the hash
// of the line before it and describes a well-formed execution. It stops at
// the first bad line.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	res := VerifyResult{Decisions: map[string]int{}}
	seenConfig := map[string]bool{}
	want := GenesisHash
	var bad *VerifyResult

	err = eachLine(f, func(n int, line []byte) bool {
		if len(line) == 0 {
			bad = &VerifyResult{Error: "empty line", ErrorLine: n}
			return false
		}
		entry, problem := checkEntry(line, want)
		if problem != "" {
			bad = &VerifyResult{Error: problem, ErrorLine: n}
			return false
		}
		res.Lines = n
		res.Decisions[entry.Decision]++
		if entry.ConfigHash != "" && !seenConfig[entry.ConfigHash] {
			seenConfig[entry.ConfigHash] = true
			res.ConfigHashes = append(res.ConfigHashes, entry.ConfigHash)
		}
		want = HashLine(line)
		return true
	})
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("read: %v", err), ErrorLine: res.Lines + 1}
	}
	if bad != nil {
		return *bad
	}
	res.Valid = true
	return res
}

// eachLine calls fn for every newline-terminated line of r, and for a final
// unterminated one, until fn returns false. Lines have no length limit.
func eachLine(r io.Reader, fn func(n int, line []byte) bool) error {
	br := bufio.NewReader(r)
	for n := 1; ; n++ {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if err != nil && len(line) == 0 {
			return nil
		}
		if !fn(n, bytes.TrimSuffix(line, []byte{'\n'})) || err != nil {
			return nil
		}
	}
}

// checkEntry decodes one line and returns a description of what is wrong
// with it, or "" when it links to prev and is well formed.
func checkEntry(line []byte, prev string) (Entry, string) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return e, fmt.Sprintf("parse error: %v", err)
	}
	if e.PrevHash != prev {
		if prev == GenesisHash {
			return e, fmt.Sprintf("first entry prev_hash is %q, expected genesis hash", e.PrevHash)
		}
		return e, fmt.Sprintf("hash mismatch: expected %s, got %s", prev, e.PrevHash)
	}
	if e.ExecutionID == "" {
		return e, "entry has no execution_id"
	}
	if !knownDecisions[e.Decision] {
		return e, fmt.Sprintf("execution %s: unknown decision %q", e.ExecutionID, e.Decision)
	}
	if _, err := time.Parse(TimestampFormat, e.Timestamp); err != nil {
		return e, fmt.Sprintf("execution %s: bad timestamp %q", e.ExecutionID, e.Timestamp)
	}
	return e, ""
}
