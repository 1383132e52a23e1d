package audit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func FuzzVerify(f *testing.F) {
	path := filepath.Join(f.TempDir(), "seed.jsonl")
	al, err := Open(path)
	if err != nil {
		f.Fatal(err)
	}
	for i, d := range []string{DecisionExecuted, DecisionBlocked, DecisionCancelled} {
		al.Record(Entry{
			ExecutionID: fmt.Sprintf("x-fuzz%d", i),
			Level:       "restricted",
			Lane:        "exclusive",
			Decision:    d,
			ConfigHash:  "sha256:test",
		})
	}
	al.Close()
	chain, _ := os.ReadFile(path)
	f.Add(chain)
	f.Add(bytes.Replace(chain, []byte(`"blocked"`), []byte(`"executed"`), 1))
	f.Add([]byte{})
	f.Add([]byte("\n"))
	f.Add([]byte(`{"execution_id":"x-1","decision":"executed"}` + "\n"))
	f.Add([]byte(`not json`))

	f.Fuzz(func(t *testing.T, data []byte) {
		p := filepath.Join(t.TempDir(), "fuzz.jsonl")
		if err := os.WriteFile(p, data, 0o600); err != nil {
			t.Fatal(err)
		}

		res := Verify(p)
		if !res.Valid {
			if res.Error == "" {
				t.Fatalf("invalid result without a reason: %+v", res)
			}
			return
		}
		total := 0
		for _, n := range res.Decisions {
			total += n
		}
		if total != res.Lines {
			t.Fatalf("decision counts %v do not add up to %d lines", res.Decisions, res.Lines)
		}
	})
}
