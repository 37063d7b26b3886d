package common

import (
	"errors"
	"sort"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module currently rejects state changes.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when module is paused in p. A nil view never
// pauses.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is an in-memory PauseView toggled by operators.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseSet(modules ...string) *PauseSet {
	s := &PauseSet{paused: make(map[string]bool)}
	for _, m := range modules {
		s.paused[m] = true
	}
	return s
}

func (s *PauseSet) IsPaused(module string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}

// Set pauses or resumes module and reports whether the state changed.
func (s *PauseSet) Set(module string, paused bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused[module] == paused {
		return false
	}
	if paused {
		s.paused[module] = true
	} else {
		delete(s.paused, module)
	}
	return true
}

// Paused lists the paused modules in name order.
func (s *PauseSet) Paused() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.paused))
	for m := range s.paused {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
