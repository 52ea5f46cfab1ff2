package domain

import (
	"sort"
	"strings"
)

// Modifier is a bitmask of held modifier keys.
type Modifier uint8

const (
	ModNone  Modifier = 0
	ModAlt   Modifier = 1 << 0
	ModCtrl  Modifier = 1 << 1
	ModShift Modifier = 1 << 2
	ModWin   Modifier = 1 << 3 // cmd on macOS
)

// modifierNames is ordered alphabetically so joined names are deterministic.
var modifierNames = []struct {
	mod  Modifier
	name string
}{
	{ModAlt, "alt"},
	{ModCtrl, "ctrl"},
	{ModShift, "shift"},
	{ModWin, "win"},
}

// modifierAliases maps every spelling the input sources emit to a modifier.
var modifierAliases = map[string]Modifier{
	"ctrl": ModCtrl, "control": ModCtrl, "ctrl_l": ModCtrl, "ctrl_r": ModCtrl,
	"lctrl": ModCtrl, "rctrl": ModCtrl,
	"alt": ModAlt, "alt_l": ModAlt, "alt_r": ModAlt, "alt_gr": ModAlt,
	"lalt": ModAlt, "ralt": ModAlt, "option": ModAlt,
	"shift": ModShift, "shift_l": ModShift, "shift_r": ModShift,
	"lshift": ModShift, "rshift": ModShift,
	"win": ModWin, "cmd": ModWin, "cmd_l": ModWin, "cmd_r": ModWin,
	"lcmd": ModWin, "rcmd": ModWin, "command": ModWin, "super": ModWin, "meta": ModWin,
}

var keyAliases = map[string]string{
	"escape":    "esc",
	"return":    "enter",
	"del":       "delete",
	"spacebar":  "space",
	"pgup":      "pageup",
	"pgdn":      "pagedown",
	"page_up":   "pageup",
	"page_down": "pagedown",
}

// Has reports whether m contains mod.
func (m Modifier) Has(mod Modifier) bool { return m&mod != 0 }

// Names returns the sorted canonical names of the modifiers in m.
func (m Modifier) Names() []string {
	var names []string
	for _, mn := range modifierNames {
		if m.Has(mn.mod) {
			names = append(names, mn.name)
		}
	}
	return names
}

func (m Modifier) String() string { return strings.Join(m.Names(), "+") }

// ModifierFromKey returns the modifier a key name denotes.
func ModifierFromKey(name string) (Modifier, bool) {
	mod, ok := modifierAliases[strings.ToLower(strings.TrimSpace(name))]
	return mod, ok
}

// IsModifierKey reports whether name is a modifier key.
func IsModifierKey(name string) bool {
	_, ok := ModifierFromKey(name)
	return ok
}

// NormalizeKey lowercases a key name and folds aliases, including
// left/right modifier variants, onto one canonical spelling.
func NormalizeKey(name string) string {
	if name == " " {
		return "space"
	}
	k := strings.ToLower(strings.TrimSpace(name))
	if mod, ok := modifierAliases[k]; ok {
		return mod.String()
	}
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}

// Chord is a hotkey: zero or more modifiers plus at most one main key or button.
type Chord struct {
	Mods Modifier
	Key  string
}

// ParseChord builds a chord from a binding list such as ["ctrl", "shift", "esc"].
// The last non-modifier entry becomes the main key.
func ParseChord(keys []string) Chord {
	var c Chord
	for _, k := range keys {
		if mod, ok := ModifierFromKey(k); ok {
			c.Mods |= mod
			continue
		}
		if n := NormalizeKey(k); n != "" {
			c.Key = n
		}
	}
	return c
}

// ParseChordString parses "ctrl+shift+esc".
func ParseChordString(s string) Chord {
	return ParseChord(strings.Split(s, "+"))
}

// IsEmpty reports whether the chord can never fire.
func (c Chord) IsEmpty() bool { return c.Mods == ModNone && c.Key == "" }

// Matches reports whether the chord fires for key while held is pressed.
// With target modifiers, held must share at least one of them and carry none
// beyond them; a chord without modifiers ignores held entirely.
func (c Chord) Matches(held Modifier, key string) bool {
	if c.IsEmpty() {
		return false
	}
	if c.Mods != ModNone {
		if held&c.Mods == 0 || held&^c.Mods != 0 {
			return false
		}
	}
	if c.Key != "" && c.Key != NormalizeKey(key) {
		return false
	}
	return true
}

func (c Chord) String() string {
	parts := c.Mods.Names()
	if c.Key != "" {
		parts = append(parts, c.Key)
	}
	return strings.Join(parts, "+")
}

// CombinationKey joins sorted modifier names with the main key, e.g. "alt+ctrl+a".
func CombinationKey(mods []string, main string) string {
	sorted := append([]string(nil), mods...)
	sort.Strings(sorted)
	return strings.Join(append(sorted, main), "+")
}
