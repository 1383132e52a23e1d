package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/livecode/sdk/go/host"
)

func TestBridgePlainValue(t *testing.T) {
	v, err := bridge(context.Background(), 5)
	if err != nil || v != 5 {
		t.Fatalf("bridge = %v, %v", v, err)
	}
}

func TestBridgeLayers(t *testing.T) {
	ch := make(chan any, 1)
	ch <- func(ctx context.Context) (any, error) {
		return host.Resolved(func() any { return "deep" }), nil
	}
	v, err := bridge(context.Background(), func() any { return ch })
	if err != nil || v != "deep" {
		t.Fatalf("bridge = %v, %v", v, err)
	}
}

func TestBridgeDepthLimit(t *testing.T) {
	var v any = "bottom"
	for i := 0; i < maxBridgeDepth+2; i++ {
		inner := v
		v = func() any { return inner }
	}
	got, err := bridge(context.Background(), v)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(func() any); !ok {
		t.Errorf("bridge past depth limit = %#v, want remaining func", got)
	}
}

func TestBridgeErrorValue(t *testing.T) {
	_, err := bridge(context.Background(), errors.New("bad"))
	var fe *FaultError
	if !errors.As(err, &fe) || fe.Error() != "bad" {
		t.Fatalf("err = %v", err)
	}
}

func TestBridgeFailedFuture(t *testing.T) {
	_, err := bridge(context.Background(), host.Failed(errors.New("nope")))
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("err = %v", err)
	}
}

func TestBridgeClosedChannel(t *testing.T) {
	ch := make(chan int)
	close(ch)
	v, err := bridge(context.Background(), ch)
	if err != nil || v != nil {
		t.Fatalf("bridge = %v, %v", v, err)
	}
}

func TestBridgeSendOnlyChannelIsValue(t *testing.T) {
	ch := make(chan int, 1)
	var send chan<- int = ch
	v, err := bridge(context.Background(), send)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.(chan<- int); !ok {
		t.Errorf("send-only channel bridged to %#v", v)
	}
}

func TestBridgeCancelledChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bridge(ctx, make(chan int))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestPanicErrorUnwraps(t *testing.T) {
	inner := errors.New("inner")
	if got := panicError(&host.PanicError{Value: inner}); got != inner {
		t.Errorf("panicError = %v", got)
	}
	if got := panicError("text"); got.Error() != "panic: text" {
		t.Errorf("panicError = %v", got)
	}
}

func TestFaultMessage(t *testing.T) {
	err := &FaultError{Err: &host.PanicError{Value: errors.New("root")}}
	if got := faultMessage(err); got != "root" {
		t.Errorf("faultMessage = %q", got)
	}
}

func TestLogBuffer(t *testing.T) {
	var b logBuffer
	b.Write([]byte("one\ntw"))
	b.Write([]byte("o\nthree"))
	b.Add("added")
	got := b.Lines()
	want := []string{"one", "two", "added", "three"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestNewExecutionID(t *testing.T) {
	a, b := NewExecutionID(), NewExecutionID()
	if a == b {
		t.Error("ids collide")
	}
	if len(a) != 14 || !strings.HasPrefix(a, "x-") {
		t.Errorf("id = %q", a)
	}
}
