package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/livecode/internal/audit"
	"github.com/ppiankov/livecode/internal/history"
	"github.com/ppiankov/livecode/internal/model"
)

// useConfig writes a config under a temp dir and points --config at it.
func useConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "audit_log: " + filepath.Join(dir, "audit.jsonl") + "\n" +
		"history_db: " + filepath.Join(dir, "history.db") + "\n" +
		"denylist: " + filepath.Join(dir, "denylist.yaml") + "\n" + extra
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	prevConfig, prevLevel := configPath, levelFlag
	configPath, levelFlag = path, ""
	t.Cleanup(func() { configPath, levelFlag = prevConfig, prevLevel })
	return dir
}

func testCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())
	return cmd, &buf
}

func sampleRecords() []model.ExecutionRecord {
	now := time.Now().UTC()
	return []model.ExecutionRecord{
		{ExecutionID: "exec-ok", Level: model.Restricted, Lane: model.LaneExclusive, Mode: "project", Success: true, DurationMs: 4, StartedAt: now.Add(-time.Second)},
		{ExecutionID: "exec-bad", Level: model.Restricted, Lane: model.LaneExclusive, Mode: "project", FailureReason: model.FailureSecurityViolation, ErrorMessage: "blocked", Violations: 1, DurationMs: 2, StartedAt: now},
	}
}

func TestReadSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippet.go")
	if err := os.WriteFile(path, []byte("return 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		expr    string
		stdin   string
		want    string
		wantErr bool
	}{
		{"expr", nil, "return 2", "", "return 2", false},
		{"file", []string{path}, "", "", "return 1", false},
		{"stdin", []string{"-"}, "", "return 3", "return 3", false},
		{"both", []string{path}, "return 2", "", "", true},
		{"none", nil, "", "", "", true},
		{"missing file", []string{path + ".nope"}, "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readSource(tt.args, tt.expr, strings.NewReader(tt.stdin))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"n=21", "name=gopher", `tags=["a","b"]`, "empty="})
	if err != nil {
		t.Fatal(err)
	}
	if params["n"] != float64(21) {
		t.Errorf("n = %#v", params["n"])
	}
	if params["name"] != "gopher" {
		t.Errorf("name = %#v", params["name"])
	}
	if tags, ok := params["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("tags = %#v", params["tags"])
	}
	if params["empty"] != "" {
		t.Errorf("empty = %#v", params["empty"])
	}

	if _, err := parseParams([]string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
	if _, err := parseParams([]string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestFormatValue(t *testing.T) {
	if got := formatValue("hi"); got != `"hi"` {
		t.Errorf("string: %s", got)
	}
	if got := formatValue(map[string]int{"a": 1}); got != `{"a":1}` {
		t.Errorf("map: %s", got)
	}
	if got := formatValue(make(chan int)); !strings.HasPrefix(got, "0x") {
		t.Errorf("chan: %s", got)
	}
}

func TestRenderExecution(t *testing.T) {
	var buf bytes.Buffer
	ok := model.ExecutionResult{Success: true, Outcome: model.OutcomeExecutedWithValue, Result: 42, Logs: []string{"hello"}}
	if err := renderExecution(&buf, ok, false); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hello\n=> 42\n" {
		t.Errorf("text output %q", buf.String())
	}

	buf.Reset()
	bad := model.ExecutionResult{
		FailureReason: model.FailureSecurityViolation,
		ErrorMessage:  "blocked",
		Violations:    []model.SecurityViolation{{Kind: "dangerous_api", Description: "os.Remove", Line: 2, Fragment: "os.Remove(p)"}},
	}
	if err := renderExecution(&buf, bad, true); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json output: %v\n%s", err, buf.String())
	}
	if decoded["hasSecurityViolations"] != true || decoded["failureReason"] != "security_violation" {
		t.Errorf("unexpected json %v", decoded)
	}
}

func TestRunCommand(t *testing.T) {
	useConfig(t, "")
	runFlags = snippetFlags{expr: `return strings.ToUpper(params["name"].(string))`, noJournal: true}
	runParams = []string{"name=gopher"}
	t.Cleanup(func() { runFlags, runParams = snippetFlags{}, nil })

	cmd, buf := testCmd()
	if err := runRun(cmd, nil); err != nil {
		t.Fatalf("runRun: %v\n%s", err, buf.String())
	}
	if !strings.Contains(buf.String(), `=> "GOPHER"`) {
		t.Errorf("unexpected output %q", buf.String())
	}

	runFlags.expr = "return undefinedThing"
	buf.Reset()
	if err := runRun(cmd, nil); err != errFailed {
		t.Fatalf("expected errFailed, got %v", err)
	}
	if !strings.Contains(buf.String(), "FAILED (compilation_error)") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestPolicyCommand(t *testing.T) {
	useConfig(t, "security_level: full_access\n")
	cmd, buf := testCmd()
	if err := runPolicy(cmd, nil); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "* full_access") {
		t.Errorf("active level not marked:\n%s", out)
	}
	if !strings.Contains(out, "os.Remove") {
		t.Errorf("default denylist not listed:\n%s", out)
	}

	policyJSON = true
	t.Cleanup(func() { policyJSON = false })
	buf.Reset()
	if err := runPolicy(cmd, nil); err != nil {
		t.Fatal(err)
	}
	var report policyReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Active != "full_access" || len(report.Levels) != 3 || len(report.Denylist.APIs) == 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestHistoryCommands(t *testing.T) {
	dir := useConfig(t, "")
	store, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range sampleRecords() {
		if err := store.Record(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
	store.Close()

	cmd, buf := testCmd()
	if err := runHistory(cmd, nil); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "exec-ok") || !strings.Contains(out, "security_violation") {
		t.Errorf("history listing:\n%s", out)
	}

	buf.Reset()
	if err := runHistoryShow(cmd, []string{"exec-bad"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "error:     blocked") {
		t.Errorf("show output:\n%s", buf.String())
	}
	if err := runHistoryShow(cmd, []string{"nope"}); err == nil {
		t.Error("expected error for unknown execution")
	}

	buf.Reset()
	if err := runHistoryStats(cmd, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "executions: 2") || !strings.Contains(buf.String(), "security_violation") {
		t.Errorf("stats output:\n%s", buf.String())
	}
}

func TestAuditCommands(t *testing.T) {
	dir := useConfig(t, "")
	logPath := filepath.Join(dir, "audit.jsonl")
	log, err := audit.Open(logPath)
	if err != nil {
		t.Fatal(err)
	}
	j := audit.NewJournal(log, "sha256:test")
	for _, rec := range sampleRecords() {
		if err := j.Record(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
	log.Close()

	cmd, buf := testCmd()
	if err := runAuditVerify(cmd, nil); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(buf.String(), "OK: 2 entries verified") || !strings.Contains(buf.String(), "config revisions: 1 (latest sha256:test)") {
		t.Errorf("verify output %q", buf.String())
	}

	buf.Reset()
	tailLines = 1
	t.Cleanup(func() { tailLines = 10 })
	if err := runAuditTail(cmd, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "exec-bad") || strings.Contains(buf.String(), "exec-ok") {
		t.Errorf("tail output:\n%s", buf.String())
	}

	buf.Reset()
	replayDecision, replayFormat = "blocked", "json"
	t.Cleanup(func() { replayDecision, replayFormat = "", "text" })
	if err := runAuditReplay(cmd, nil); err != nil {
		t.Fatal(err)
	}
	var result audit.ReplayResult
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("replay json: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].ExecutionID != "exec-bad" {
		t.Errorf("unexpected replay %+v", result.Entries)
	}

	replayFormat = "yaml"
	if err := runAuditReplay(cmd, nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestDoctorChecks(t *testing.T) {
	dir := useConfig(t, "")

	checks := doctorChecks(context.Background())
	for _, c := range checks {
		if !c.ok {
			t.Errorf("check %s failed: %s", c.label, c.detail)
		}
	}
	if len(checks) != 7 {
		t.Errorf("expected 7 checks, got %d", len(checks))
	}

	// A tampered audit log fails its check.
	if err := os.WriteFile(filepath.Join(dir, "audit.jsonl"), []byte("{not json}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, c := range doctorChecks(context.Background()) {
		if c.label == "audit log" && c.ok {
			t.Error("expected audit check to fail")
		}
	}
}

func TestVersionCommand(t *testing.T) {
	cmd, buf := testCmd()
	if err := versionCmd.RunE(cmd, nil); err != nil {
		t.Fatal(err)
	}
	var info map[string]string
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, buf.String())
	}
	if info["name"] != "livecode" || info["version"] != version || info["go"] == "" {
		t.Errorf("unexpected version info %v", info)
	}

	buf.Reset()
	versionShort = true
	t.Cleanup(func() { versionShort = false })
	if err := versionCmd.RunE(cmd, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != version+"\n" {
		t.Errorf("short version = %q", buf.String())
	}
}
