package denylist

// DefaultPatterns contains the hardcoded API and namespace patterns.
// APIs use "<import path>.<Func>" or "<import path>.<Type>.<Method>".
var DefaultPatterns = Patterns{
	APIs: []string{
		// file destruction
		"os.Remove",
		"os.RemoveAll",
		"os.Truncate",
		"os.File.Truncate",
		"os.Chmod",
		"os.Chown",
		"os.Lchown",
		"os.File.Chmod",
		"os.File.Chown",
		// process spawning and signalling
		"os.StartProcess",
		"os.FindProcess",
		"os.Process.Kill",
		"os.Process.Signal",
		"os/exec.Command",
		"os/exec.CommandContext",
		"os/exec.Cmd.*",
		// raw reflection invocation
		"reflect.Value.Call",
		"reflect.Value.CallSlice",
		"reflect.MakeFunc",
		"reflect.NewAt",
		// dynamic code loading
		"plugin.Open",
		"plugin.Plugin.Lookup",
		// process exit
		"os.Exit",
		"log.Fatal",
		"log.Fatalf",
		"log.Fatalln",
		"log.Logger.Fatal",
		"log.Logger.Fatalf",
		"log.Logger.Fatalln",
	},
	Namespaces: []string{
		"os/exec",
		"syscall",
		"unsafe",
		"plugin",
		"runtime/debug",
	},
}
