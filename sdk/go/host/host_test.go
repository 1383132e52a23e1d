package host

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLogfDeliversToSink(t *testing.T) {
	var lines []string
	ctx := WithLogSink(context.Background(), func(line string) {
		lines = append(lines, line)
	})

	Logf(ctx, "hello %s\n", "world")
	Log(ctx, "n=", 3)

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "hello world" {
		t.Errorf("expected trailing newline trimmed, got %q", lines[0])
	}
	if lines[1] != "n=3" {
		t.Errorf("unexpected line %q", lines[1])
	}
}

func TestLogfWithoutSink(t *testing.T) {
	// Must not panic.
	Logf(context.Background(), "dropped")
}

func TestDelayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Delay(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Delay did not return promptly after cancel")
	}
}

func TestDelayCompletes(t *testing.T) {
	if err := Delay(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGoFuture(t *testing.T) {
	f := Go(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	})
	v, err := f.Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %v", v)
	}
}

func TestGoFuturePanic(t *testing.T) {
	f := Go(context.Background(), func(ctx context.Context) (any, error) {
		panic("boom")
	})
	_, err := f.Await(context.Background())
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected panic value in message, got %q", err.Error())
	}
}

func TestAwaitCancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	f := Go(context.Background(), func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestResolvedAndFailed(t *testing.T) {
	v, err := Resolved("x").Await(context.Background())
	if err != nil || v != "x" {
		t.Errorf("Resolved: got (%v, %v)", v, err)
	}
	want := errors.New("nope")
	if _, err := Failed(want).Await(context.Background()); !errors.Is(err, want) {
		t.Errorf("Failed: got %v", err)
	}
}

func TestParam(t *testing.T) {
	params := map[string]any{"a": 1, "nil": nil}
	if Param(params, "a", 0) != 1 {
		t.Error("expected present value")
	}
	if Param(params, "nil", "d") != "d" {
		t.Error("expected default for nil value")
	}
	if Param(nil, "x", 5) != 5 {
		t.Error("expected default for nil map")
	}
}

func TestSymbolsTable(t *testing.T) {
	pkg, ok := Symbols[ImportPath+"/host"]
	if !ok {
		t.Fatal("expected symbol table keyed by import path and package name")
	}
	for _, name := range []string{"Delay", "Logf", "Future", "Version", "Go"} {
		if !pkg[name].IsValid() {
			t.Errorf("missing symbol %s", name)
		}
	}
	if !pkg["Version"].CanAddr() {
		t.Error("variables must be addressable")
	}
}
