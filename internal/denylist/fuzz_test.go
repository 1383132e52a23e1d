package denylist

import (
	"testing"
)

func FuzzIsAPIDangerous(f *testing.F) {
	dl := NewDefault()

	seeds := []string{
		"os.Remove",
		"os/exec.Cmd.Run",
		"reflect.Value.Call",
		"strings.ToUpper",
		"",
		".",
		"*",
		"syscall/js.Value.Call",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, member string) {
		// Must not panic on any input
		dl.IsAPIDangerous(member)
		dl.IsNamespaceForbidden(member)
	})
}
