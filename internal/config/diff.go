package config

import (
	"slices"
	"strings"

	"github.com/MrWong99/iq360/internal/persona"
)

// ConfigDiff describes the hot-reloadable differences between two configs.
// Provider, audio and storage changes need a restart and are not tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PersonasChanged bool
	PersonaChanges  []PersonaDiff

	LeadsFileChanged bool
}

// Empty reports whether nothing hot-reloadable changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.PersonasChanged && !d.LeadsFileChanged
}

// PersonaDiff describes one persona's change. Changes are sorted by ID.
type PersonaDiff struct {
	ID                 string
	Added              bool
	Removed            bool
	NameChanged        bool
	VoiceChanged       bool
	InstructionChanged bool
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{
		LeadsFileChanged: old.LeadsFile != new.LeadsFile,
	}
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	before, after := byID(old.Personas), byID(new.Personas)
	for id, o := range before {
		n, ok := after[id]
		if !ok {
			d.PersonaChanges = append(d.PersonaChanges, PersonaDiff{ID: id, Removed: true})
			continue
		}
		pd := PersonaDiff{
			ID:                 id,
			NameChanged:        o.Name != n.Name || o.Role != n.Role,
			VoiceChanged:       o.Voice != n.Voice,
			InstructionChanged: o.Instruction != n.Instruction,
		}
		if pd.NameChanged || pd.VoiceChanged || pd.InstructionChanged {
			d.PersonaChanges = append(d.PersonaChanges, pd)
		}
	}
	for id := range after {
		if _, ok := before[id]; !ok {
			d.PersonaChanges = append(d.PersonaChanges, PersonaDiff{ID: id, Added: true})
		}
	}
	slices.SortFunc(d.PersonaChanges, func(a, b PersonaDiff) int { return strings.Compare(a.ID, b.ID) })
	d.PersonasChanged = len(d.PersonaChanges) > 0
	return d
}

func byID(ps []persona.Persona) map[string]persona.Persona {
	m := make(map[string]persona.Persona, len(ps))
	for _, p := range ps {
		m[strings.ToLower(p.ID)] = p
	}
	return m
}
