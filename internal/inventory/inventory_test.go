package inventory

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/ppiankov/livecode/internal/model"
)

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key, path, name string
	}{
		{"fmt/fmt", "fmt", "fmt"},
		{"math/rand/v2/rand", "math/rand/v2", "rand"},
		{"github.com/acme/tools/tools", "github.com/acme/tools", "tools"},
	}
	for _, tt := range tests {
		path, name, err := SplitKey(tt.key)
		if err != nil {
			t.Fatalf("SplitKey(%q): %v", tt.key, err)
		}
		if path != tt.path || name != tt.name {
			t.Errorf("SplitKey(%q) = (%q, %q), want (%q, %q)", tt.key, path, name, tt.path, tt.name)
		}
	}

	for _, bad := range []string{"", "fmt", "fmt/", "/fmt"} {
		if _, _, err := SplitKey(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestPackageName(t *testing.T) {
	tests := map[string]string{
		"strings":                      "strings",
		"math/rand/v2":                 "rand",
		"gopkg.in/yaml.v3":             "yaml",
		"github.com/mattn/go-isatty":   "isatty",
		"github.com/acme/my-lib":       "my_lib",
		"github.com/acme/thing/v10":    "thing",
		"github.com/acme/versions/v1x": "v1x",
	}
	for path, want := range tests {
		if got := PackageName(path); got != want {
			t.Errorf("PackageName(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestRegistryModulesSnapshot(t *testing.T) {
	r := NewRegistry()
	table := map[string]map[string]reflect.Value{
		"example.com/b/b": {"B": reflect.ValueOf(1)},
		"example.com/a/a": {"A": reflect.ValueOf(2)},
	}
	if err := r.RegisterTable(model.KindProject, "test", "v1.0.0", table); err != nil {
		t.Fatalf("RegisterTable: %v", err)
	}
	if err := r.RegisterOpaque("example.com/native", "", "test", model.KindLoaded); err != nil {
		t.Fatalf("RegisterOpaque: %v", err)
	}

	mods, err := r.Modules(context.Background())
	if err != nil {
		t.Fatalf("Modules: %v", err)
	}
	if len(mods) != 3 {
		t.Fatalf("expected 3 modules, got %d", len(mods))
	}
	if mods[0].Path != "example.com/a" || mods[1].Path != "example.com/b" {
		t.Errorf("expected sorted paths, got %s, %s", mods[0].Path, mods[1].Path)
	}
	if !mods[2].Opaque() {
		t.Error("expected native module to be opaque")
	}
	if mods[2].Name != "native" {
		t.Errorf("expected derived name native, got %q", mods[2].Name)
	}
	if r.Queries() != 1 {
		t.Errorf("expected 1 query, got %d", r.Queries())
	}
}

func TestRegisterRejectsEmptyPath(t *testing.T) {
	if err := NewRegistry().Register(Module{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestModulesHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRegistry().Modules(ctx); err == nil {
		t.Error("expected context error")
	}
}

func TestDefaultInventory(t *testing.T) {
	mods, err := Default().Modules(context.Background())
	if err != nil {
		t.Fatalf("Modules: %v", err)
	}

	kinds := map[string]model.ModuleKind{}
	for _, m := range mods {
		if !m.Opaque() {
			kinds[m.Path] = m.Kind
		}
	}
	if kinds["fmt"] != model.KindStdlib {
		t.Errorf("expected fmt as std, got %q", kinds["fmt"])
	}
	if kinds["github.com/ppiankov/livecode/sdk/go/host"] != model.KindHost {
		t.Error("expected host SDK registered as host")
	}
	if kinds["os/exec"] != model.KindLoaded {
		t.Errorf("expected os/exec as loaded, got %q", kinds["os/exec"])
	}
	for path := range kinds {
		if strings.HasPrefix(path, "_") {
			t.Errorf("unexpected wrapper package %q", path)
		}
	}
}
