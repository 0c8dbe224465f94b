package common

import (
	"errors"
	"fmt"
)

// Module names recognised by the pause switches.
const (
	ModulePoints = "points"
	ModuleMarket = "market"
	ModuleToken  = "token"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Pauses is a static PauseView keyed by module name.
type Pauses map[string]bool

func (p Pauses) IsPaused(module string) bool { return p[module] }

// Clone returns a copy that is never nil.
func (p Pauses) Clone() Pauses {
	out := make(Pauses, len(p))
	for module, paused := range p {
		if paused {
			out[module] = true
		}
	}
	return out
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
