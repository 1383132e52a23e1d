package policy

import "github.com/ppiankov/livecode/internal/model"

// LevelSummary describes what a level permits.
type LevelSummary struct {
	Level        string   `json:"level"`
	Compiles     bool     `json:"compiles"`
	Kinds        []string `json:"reference_kinds"`
	InspectsAPIs bool     `json:"inspects_apis"`
	Description  string   `json:"description"`
}

// Describe summarizes level for display.
func (p *Policy) Describe(level model.SecurityLevel) LevelSummary {
	s := LevelSummary{
		Level:        level.String(),
		Compiles:     p.Check(level) == nil,
		InspectsAPIs: p.InspectsAPIs(level),
	}
	for _, k := range []model.ModuleKind{model.KindStdlib, model.KindHost, model.KindProject, model.KindLoaded} {
		if p.IsReferenceAllowed("-", k, level) {
			s.Kinds = append(s.Kinds, string(k))
		}
	}

	switch level {
	case model.Disabled:
		s.Description = "nothing compiles"
	case model.Restricted:
		s.Description = "std, host and project modules; dangerous APIs and forbidden namespaces rejected after type checking"
	case model.FullAccess:
		s.Description = "every loaded module; anything that compiles runs"
	default:
		s.Description = "unknown level"
	}
	return s
}
