package hotkey

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupported = errors.New("global hotkeys are not supported on this platform")

// Manager defines the interface for global hotkey management
type Manager interface {
	Register(accel string, callback func(pressed bool)) error
	Unregister(accel string) error
	Close() error
}

// Modifier is a bit set of modifier keys.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModShift
	ModAlt
	ModSuper
)

// Accel is a parsed accelerator such as "Alt+Shift+C".
type Accel struct {
	Mods Modifier
	Key  string // "C", "5", "Space", "F9"
}

func (a Accel) String() string {
	var parts []string
	for _, m := range []struct {
		bit  Modifier
		name string
	}{{ModCtrl, "Ctrl"}, {ModAlt, "Alt"}, {ModShift, "Shift"}, {ModSuper, "Super"}} {
		if a.Mods&m.bit != 0 {
			parts = append(parts, m.name)
		}
	}
	return strings.Join(append(parts, a.Key), "+")
}

var modifierNames = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"shift":   ModShift,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
	"super":   ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"meta":    ModSuper,
	"win":     ModSuper,
}

var namedKeys = map[string]string{
	"space":  "Space",
	"enter":  "Return",
	"return": "Return",
	"tab":    "Tab",
	"escape": "Escape",
	"esc":    "Escape",
}

// ParseAccel parses strings like "Ctrl+Shift+C". Exactly one non-modifier
// key is required. Matching is case-insensitive.
func ParseAccel(s string) (Accel, error) {
	var a Accel
	if strings.TrimSpace(s) == "" {
		return a, fmt.Errorf("empty accelerator")
	}

	for _, part := range strings.Split(s, "+") {
		p := strings.TrimSpace(part)
		if p == "" {
			return Accel{}, fmt.Errorf("accelerator %q: empty key", s)
		}
		lower := strings.ToLower(p)

		if m, ok := modifierNames[lower]; ok {
			a.Mods |= m
			continue
		}
		if a.Key != "" {
			return Accel{}, fmt.Errorf("accelerator %q: more than one key", s)
		}
		key, err := normalizeKey(lower)
		if err != nil {
			return Accel{}, fmt.Errorf("accelerator %q: %w", s, err)
		}
		a.Key = key
	}

	if a.Key == "" {
		return Accel{}, fmt.Errorf("accelerator %q: no key", s)
	}
	return a, nil
}

func normalizeKey(k string) (string, error) {
	if name, ok := namedKeys[k]; ok {
		return name, nil
	}
	if len(k) == 1 && (k[0] >= 'a' && k[0] <= 'z' || k[0] >= '0' && k[0] <= '9') {
		return strings.ToUpper(k), nil
	}
	if len(k) >= 2 && len(k) <= 3 && k[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(k[1:], "%d", &n); err == nil && n >= 1 && n <= 12 {
			return fmt.Sprintf("F%d", n), nil
		}
	}
	return "", fmt.Errorf("unknown key %q", k)
}

// OnPress adapts fn to a Register callback that ignores key releases.
func OnPress(fn func()) func(pressed bool) {
	return func(pressed bool) {
		if pressed {
			fn()
		}
	}
}
