package hotkey

import (
	"strings"
	"sync"

	"github.com/eliteGoblin/macroflow/internal/domain"
)

// KeySet tracks pressed keys by their raw name so that releasing one side of
// a left/right modifier pair keeps the other held.
type KeySet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewKeySet returns an empty set.
func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]struct{})}
}

// Press records key and returns the resulting modifier mask.
func (s *KeySet) Press(key string) domain.Modifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[strings.ToLower(key)] = struct{}{}
	return s.modifiersLocked()
}

// Release forgets key.
func (s *KeySet) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, strings.ToLower(key))
}

// Modifiers returns the mask of held modifier keys.
func (s *KeySet) Modifiers() domain.Modifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modifiersLocked()
}

func (s *KeySet) modifiersLocked() domain.Modifier {
	var mods domain.Modifier
	for k := range s.keys {
		if m, ok := domain.ModifierFromKey(k); ok {
			mods |= m
		}
	}
	return mods
}

// Reset forgets every key.
func (s *KeySet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = make(map[string]struct{})
}
