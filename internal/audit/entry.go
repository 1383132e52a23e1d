package audit

// Decisions recorded in audit entries.
const (
	DecisionExecuted      = "executed"
	DecisionRejected      = "rejected"
	DecisionBlocked       = "blocked"
	DecisionCompileFailed = "compile_failed"
	DecisionFaulted       = "faulted"
	DecisionCancelled     = "cancelled"
)

// Entry is one line in the hash-chained JSONL audit log.
// All fields are scalars (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type Entry struct {
	Timestamp   string `json:"ts"`
	ExecutionID string `json:"execution_id"`
	Key         string `json:"key,omitempty"`
	Level       string `json:"level"`
	Lane        string `json:"lane"`
	Mode        string `json:"mode,omitempty"`
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
	Violations  int    `json:"violations,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
	ConfigHash  string `json:"config_hash"`
	PrevHash    string `json:"prev_hash"`
}
