package model

import (
	"fmt"
	"strings"
)

// SecurityLevel is the ordered security tier of a compiler or executor.
// Higher level = broader access. A level never changes for the lifetime
// of the instance it was given to.
type SecurityLevel int

const (
	Disabled   SecurityLevel = 0 // Nothing compiles
	Restricted SecurityLevel = 1 // Compiles, dangerous APIs rejected after type checking
	FullAccess SecurityLevel = 2 // Everything that compiles runs, loaded modules visible
)

// String returns the configuration label for the level.
func (l SecurityLevel) String() string {
	switch l {
	case Disabled:
		return "disabled"
	case Restricted:
		return "restricted"
	case FullAccess:
		return "full_access"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// Valid reports whether l is one of the three known levels.
func (l SecurityLevel) Valid() bool {
	return l >= Disabled && l <= FullAccess
}

// ParseSecurityLevel maps a label (case-insensitive, "-" or "_" separated)
// to its level.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch norm {
	case "disabled", "off", "none":
		return Disabled, nil
	case "restricted":
		return Restricted, nil
	case "full_access", "fullaccess", "full":
		return FullAccess, nil
	default:
		return Disabled, fmt.Errorf("unknown security level %q (want disabled, restricted or full_access)", s)
	}
}

// MarshalText implements encoding.TextMarshaler (used by JSON and YAML).
func (l SecurityLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid security level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *SecurityLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseSecurityLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ModuleMode selects which modules a compilation may reference.
type ModuleMode string

const (
	// ModeProject limits references to the level's reference set.
	ModeProject ModuleMode = "project"
	// ModeAllLoaded adds every module the inventory reports as loaded.
	ModeAllLoaded ModuleMode = "all_loaded"
)

// Lane is the admission lane an execution runs in.
type Lane string

const (
	LaneExclusive Lane = "exclusive"
	LaneParallel  Lane = "parallel"
)

// ModuleKind classifies where a loadable module comes from.
type ModuleKind string

const (
	KindStdlib  ModuleKind = "std"     // standard library symbol tables
	KindHost    ModuleKind = "host"    // the host's own public SDK
	KindProject ModuleKind = "project" // modules registered by the embedding program
	KindLoaded  ModuleKind = "loaded"  // everything else present in the process
)
