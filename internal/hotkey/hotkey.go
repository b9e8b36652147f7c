package hotkey

import (
	"errors"
	"fmt"
	"strings"
)

// Manager defines the interface for global hotkey management
type Manager interface {
	Register(accel string, callback func(pressed bool)) error
	Unregister(accel string) error
	Close() error
}

// ErrUnsupported is returned where no global hotkey backend exists
var ErrUnsupported = errors.New("global hotkeys not supported on this platform")

// Modifier is a bit set of held modifier keys
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
	ModSuper
)

// Accelerator is a parsed shortcut such as "Ctrl+Alt+B"
type Accelerator struct {
	Mods Modifier
	Key  string // canonical key name: "A".."Z", "0".."9", "F1".."F12", "Space", "Enter", "Tab", "Escape"
}

func (a Accelerator) String() string {
	var parts []string
	for _, m := range []struct {
		mod  Modifier
		name string
	}{{ModCtrl, "Ctrl"}, {ModAlt, "Alt"}, {ModShift, "Shift"}, {ModSuper, "Super"}} {
		if a.Mods&m.mod != 0 {
			parts = append(parts, m.name)
		}
	}
	return strings.Join(append(parts, a.Key), "+")
}

var modifierNames = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"shift":   ModShift,
	"super":   ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"meta":    ModSuper,
}

var namedKeys = map[string]string{
	"space":  "Space",
	"enter":  "Enter",
	"return": "Enter",
	"tab":    "Tab",
	"esc":    "Escape",
	"escape": "Escape",
}

// ParseAccelerator parses "Mod+Mod+Key". Modifier and key names are case
// insensitive; exactly one non-modifier key is required.
func ParseAccelerator(s string) (Accelerator, error) {
	var acc Accelerator
	parts := strings.Split(s, "+")
	for i, raw := range parts {
		p := strings.ToLower(strings.TrimSpace(raw))
		if p == "" {
			return Accelerator{}, fmt.Errorf("hotkey %q: empty component", s)
		}
		if mod, ok := modifierNames[p]; ok && i < len(parts)-1 {
			acc.Mods |= mod
			continue
		}
		if i != len(parts)-1 {
			return Accelerator{}, fmt.Errorf("hotkey %q: %q is not a modifier", s, raw)
		}
		key, err := canonicalKey(p)
		if err != nil {
			return Accelerator{}, fmt.Errorf("hotkey %q: %w", s, err)
		}
		acc.Key = key
	}
	return acc, nil
}

func canonicalKey(p string) (string, error) {
	if name, ok := namedKeys[p]; ok {
		return name, nil
	}
	if len(p) == 1 && (p[0] >= 'a' && p[0] <= 'z' || p[0] >= '0' && p[0] <= '9') {
		return strings.ToUpper(p), nil
	}
	if len(p) >= 2 && p[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(p[1:], "%d", &n); err == nil && n >= 1 && n <= 12 && fmt.Sprint(n) == p[1:] {
			return "F" + p[1:], nil
		}
	}
	return "", fmt.Errorf("unknown key %q", p)
}

// x11Keysym returns the X11 keysym name for a canonical key
func x11Keysym(key string) string {
	switch key {
	case "Space":
		return "space"
	case "Enter":
		return "Return"
	case "Tab", "Escape":
		return key
	}
	if len(key) == 1 && key[0] >= 'A' && key[0] <= 'Z' {
		return strings.ToLower(key)
	}
	return key
}

// x11Mask converts modifiers to an X11 state mask
func x11Mask(m Modifier) int {
	const (
		shiftMask   = 1 << 0
		controlMask = 1 << 2
		mod1Mask    = 1 << 3 // Alt
		mod4Mask    = 1 << 6 // Super
	)
	mask := 0
	if m&ModShift != 0 {
		mask |= shiftMask
	}
	if m&ModCtrl != 0 {
		mask |= controlMask
	}
	if m&ModAlt != 0 {
		mask |= mod1Mask
	}
	if m&ModSuper != 0 {
		mask |= mod4Mask
	}
	return mask
}

// carbonKeyCodes maps canonical keys to macOS virtual key codes (kVK_*)
var carbonKeyCodes = map[string]uint32{
	"A": 0, "S": 1, "D": 2, "F": 3, "H": 4, "G": 5, "Z": 6, "X": 7, "C": 8, "V": 9,
	"B": 11, "Q": 12, "W": 13, "E": 14, "R": 15, "Y": 16, "T": 17,
	"1": 18, "2": 19, "3": 20, "4": 21, "6": 22, "5": 23, "9": 25, "7": 26, "8": 28, "0": 29,
	"O": 31, "U": 32, "I": 34, "P": 35, "L": 37, "J": 38, "K": 40, "N": 45, "M": 46,
	"Enter": 36, "Tab": 48, "Space": 49, "Escape": 53,
	"F1": 122, "F2": 120, "F3": 99, "F4": 118, "F5": 96, "F6": 97,
	"F7": 98, "F8": 100, "F9": 101, "F10": 109, "F11": 103, "F12": 111,
}

// carbonModifiers converts modifiers to Carbon's modifier flags
func carbonModifiers(m Modifier) uint32 {
	const (
		cmdKey     = 0x0100
		shiftKey   = 0x0200
		optionKey  = 0x0800
		controlKey = 0x1000
	)
	var flags uint32
	if m&ModSuper != 0 {
		flags |= cmdKey
	}
	if m&ModShift != 0 {
		flags |= shiftKey
	}
	if m&ModAlt != 0 {
		flags |= optionKey
	}
	if m&ModCtrl != 0 {
		flags |= controlKey
	}
	return flags
}
