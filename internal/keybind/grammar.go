package keybind

import (
	"fmt"
	"strings"
)

// Action is the closed set of effects a completed keybinding sequence
// can trigger. The string values match the lowercase spellings used
// in the YAML config (mirroring the original's serde rename_all).
type Action string

const (
	ActionDetach Action = "detach"
	ActionNoOp   Action = "noop"
)

// Binding is one configured (binding-text, action) pair, as parsed
// from the keybinding config list.
type Binding struct {
	Text   string `yaml:"binding"`
	Action Action `yaml:"action"`
}

// chordAtom is a dense small-integer standing in for a Chord once
// compiled, so the hot transition loop never has to compare chord
// structures.
type chordAtom = byte

// controlCodes maps a two-key "Ctrl-<sym>" chord string to the
// control byte it produces. Recovered verbatim from the original
// daemon's experimentally-derived table (more than one chord may
// produce the same code point, e.g. both "Ctrl-@" and "Ctrl-2" produce 0).
var controlCodes = map[string]byte{
	"Ctrl-Space": 0,
	"Ctrl-a":     1,
	"Ctrl-b":     2,
	"Ctrl-c":     3,
	"Ctrl-d":     4,
	"Ctrl-e":     5,
	"Ctrl-f":     6,
	"Ctrl-g":     7,
	"Ctrl-h":     8,
	"Ctrl-i":     9,
	"Ctrl-j":     10,
	"Ctrl-k":     11,
	"Ctrl-l":     12,
	"Ctrl-m":     13,
	"Ctrl-n":     14,
	"Ctrl-o":     15,
	"Ctrl-p":     16,
	"Ctrl-q":     17,
	"Ctrl-r":     18,
	"Ctrl-s":     19,
	"Ctrl-t":     20,
	"Ctrl-u":     21,
	"Ctrl-v":     22,
	"Ctrl-w":     23,
	"Ctrl-x":     24,
	"Ctrl-y":     25,
	"Ctrl-z":     26,
	"Ctrl-@":     0,
	"Ctrl-2":     0,
	"Ctrl-[":     27,
	"Ctrl-3":     27,
	"Ctrl-\\":    28,
	"Ctrl-4":     28,
	"Ctrl-]":     29,
	"Ctrl-5":     29,
	"Ctrl-^":     30,
	"Ctrl-6":     30,
	"Ctrl-_":     31,
	"Ctrl-7":     31,
	"Ctrl-?":     127,
	"Ctrl-8":     127,
	"Ctrl-0":     127,
}

// parseSequence splits a binding's text into its ordered chords, each
// itself an ordered list of keys, per the grammar:
//
//	sequence ::= chord ( WS+ chord )*
//	chord    ::= key ( '-' key )*
//	key      ::= 'Ctrl' | 'Space' | <a-z> | <0-9> | '\' | '[' | ']' | '@' | '^' | '_' | '?'
func parseSequence(text string) ([][]string, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty keybinding")
	}
	chords := make([][]string, 0, len(fields))
	for _, field := range fields {
		keys := strings.Split(field, "-")
		for _, k := range keys {
			if !isKey(k) {
				return nil, fmt.Errorf("invalid chord %q: invalid key %q", field, k)
			}
		}
		chords = append(chords, keys)
	}
	return chords, nil
}

func isKey(key string) bool { return isCtrl(key) || isSym(key) }

func isCtrl(key string) bool { return key == "Ctrl" }

func isSym(key string) bool {
	if key == "Space" {
		return true
	}
	switch key {
	case "\\", "[", "]", "@", "^", "_", "?":
		return true
	}
	if len(key) != 1 {
		return false
	}
	c := key[0]
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')
}

// checkChordValid enforces the original's validity rules: a chord is
// either a single non-mod key, or exactly "Ctrl" followed by one
// non-mod key. Ctrl alone, Ctrl repeated, and chords longer than two
// keys are all rejected.
func checkChordValid(keys []string) error {
	for _, k := range keys {
		if !isKey(k) {
			return fmt.Errorf("invalid chord %q: invalid key", strings.Join(keys, "-"))
		}
	}
	switch len(keys) {
	case 1:
		if isCtrl(keys[0]) {
			return fmt.Errorf("invalid chord %q: Ctrl is not a cord", strings.Join(keys, "-"))
		}
	case 2:
		if !isCtrl(keys[0]) {
			return fmt.Errorf("invalid chord %q: Ctrl is the only supported mod key", strings.Join(keys, "-"))
		}
		if isCtrl(keys[1]) {
			return fmt.Errorf("invalid chord %q: Ctrl cannot be repeated", strings.Join(keys, "-"))
		}
	default:
		return fmt.Errorf("invalid chord %q", strings.Join(keys, "-"))
	}
	return nil
}

// chordKeyCode resolves a validated chord to the single byte it
// produces on the wire.
func chordKeyCode(keys []string) (byte, error) {
	if err := checkChordValid(keys); err != nil {
		return 0, err
	}
	if len(keys) == 1 {
		if keys[0] == "Space" {
			return ' ', nil
		}
		return keys[0][0], nil
	}
	ctrlChord := "Ctrl-" + keys[1]
	if code, ok := controlCodes[ctrlChord]; ok {
		return code, nil
	}
	return 0, fmt.Errorf("unknown key code for chord %q", strings.Join(keys, "-"))
}
