package inventory

import (
	"runtime/debug"

	"github.com/traefik/yaegi/stdlib"
	stdsyscall "github.com/traefik/yaegi/stdlib/syscall"
	"github.com/traefik/yaegi/stdlib/unrestricted"
	stdunsafe "github.com/traefik/yaegi/stdlib/unsafe"
	"golang.org/x/mod/semver"

	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/sdk/go/host"
)

// Locations reported for built-in tables.
const (
	LocationStdlib       = "yaegi/stdlib"
	LocationUnrestricted = "yaegi/stdlib/unrestricted"
	LocationSyscall      = "yaegi/stdlib/syscall"
	LocationUnsafe       = "yaegi/stdlib/unsafe"
	LocationHost         = "host"
	LocationBuildInfo    = "buildinfo"
)

// Default returns a registry populated with the standard library, the host
// SDK, the unrestricted tables (kind loaded), and every dependency recorded
// in the binary's build info as an opaque loaded module.
func Default() *Registry {
	r := NewRegistry()
	// The tables are generated with well-formed keys.
	_ = r.RegisterTable(model.KindStdlib, LocationStdlib, "", stdlib.Symbols)
	_ = r.RegisterTable(model.KindHost, LocationHost, hostVersion(), host.Symbols)
	_ = r.RegisterTable(model.KindLoaded, LocationUnrestricted, "", unrestricted.Symbols)
	_ = r.RegisterTable(model.KindLoaded, LocationSyscall, "", stdsyscall.Symbols)
	_ = r.RegisterTable(model.KindLoaded, LocationUnsafe, "", stdunsafe.Symbols)

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			_ = r.RegisterOpaque(dep.Path, dep.Version, LocationBuildInfo, model.KindLoaded)
		}
	}
	return r
}

func hostVersion() string {
	if semver.IsValid(host.Version) {
		return host.Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && semver.IsValid(info.Main.Version) {
		return info.Main.Version
	}
	return ""
}
