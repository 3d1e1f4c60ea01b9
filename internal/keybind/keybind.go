// Package keybind implements the keybinding engine: a two-level trie
// (byte -> chord atom, chord atom -> action) compiled from a list of
// (binding text, action) pairs and driven one byte at a time by a
// streaming scanner.
package keybind

import "fmt"

// maxChordAtoms mirrors the original's u8::MAX ceiling: at most 255
// distinct chords may appear across a binding set.
const maxChordAtoms = 255

// Bindings is the compiled matching engine for a set of keybindings.
// It is not safe for concurrent use. A session compiles one instance
// and the Scanners of its successive attachments share it, so the trie
// cursors carry over from one attachment to the next.
type Bindings struct {
	chords          *trie[chordAtom]
	chordsCursor    trieCursor
	sequences       *trie[Action]
	sequencesCursor trieCursor
}

// NewBindings compiles bindings into the chord and sequence tries.
func NewBindings(bindings []Binding) (*Bindings, error) {
	chords := newTrie[chordAtom]()
	sequences := newTrie[Action]()

	atomCounter := 0
	atomTab := make(map[string]chordAtom)

	for _, binding := range bindings {
		seq, err := parseSequence(binding.Text)
		if err != nil {
			return nil, fmt.Errorf("parsing keybinding %q: %w", binding.Text, err)
		}

		atoms := make([]byte, 0, len(seq))
		for _, chordKeys := range seq {
			code, err := chordKeyCode(chordKeys)
			if err != nil {
				return nil, err
			}

			key := chordKey(chordKeys)
			atom, ok := atomTab[key]
			if !ok {
				if atomCounter >= maxChordAtoms {
					return nil, fmt.Errorf("keybind: only supports up to %d unique chords at a time", maxChordAtoms)
				}
				atom = chordAtom(atomCounter)
				atomCounter++
				atomTab[key] = atom
			}

			chords.insert([]byte{code}, atom)
			atoms = append(atoms, atom)
		}

		sequences.insert(atoms, binding.Action)
	}

	return &Bindings{
		chords:          chords,
		chordsCursor:    trieStart,
		sequences:       sequences,
		sequencesCursor: trieStart,
	}, nil
}

func chordKey(keys []string) string {
	s := keys[0]
	for _, k := range keys[1:] {
		s += "-" + k
	}
	return s
}

// ResultKind is the outcome of feeding one byte to the engine.
type ResultKind int

const (
	NoMatch ResultKind = iota
	Partial
	Matched
)

// Result is returned by Transition.
type Result struct {
	Kind   ResultKind
	Action Action
}

// Transition advances the engine by one byte, implementing the exact
// four-step contract from the base specification:
//
//  1. Advance chordsCursor in the chord trie by the byte.
//  2. If a complete chord atom was reached, reset chordsCursor and
//     advance sequencesCursor by that atom; a further complete match
//     yields Matched(action), a valid-but-incomplete path yields
//     Partial, anything else yields NoMatch (and resets sequencesCursor).
//  3. Else if the chord path itself is still a valid, incomplete
//     prefix, yield Partial without disturbing sequencesCursor.
//  4. Else reset both cursors and yield NoMatch.
func (b *Bindings) Transition(by byte) Result {
	next, ok, matched, atom := b.chords.advance(b.chordsCursor, by)

	if ok && matched {
		b.chordsCursor = trieStart

		seqNext, seqOK, seqMatched, action := b.sequences.advance(b.sequencesCursor, atom)
		if !seqOK {
			b.sequencesCursor = trieStart
			return Result{Kind: NoMatch}
		}
		if !seqMatched {
			b.sequencesCursor = seqNext
			return Result{Kind: Partial}
		}
		b.sequencesCursor = trieStart
		return Result{Kind: Matched, Action: action}
	}

	if ok && !matched {
		// A valid but incomplete chord prefix (only reachable if a
		// future chord grammar extension allows multi-byte chords;
		// today's grammar always resolves a chord in one byte).
		b.chordsCursor = next
		return Result{Kind: Partial}
	}

	b.chordsCursor = trieStart
	b.sequencesCursor = trieStart
	return Result{Kind: NoMatch}
}

// Scanner wraps a Bindings engine with the chunk-buffering behavior
// the bidi streamer needs: bytes that are part of an in-progress or
// completed keybinding are withheld from the pty; bytes that turn out
// not to be part of one are flushed to the shell verbatim, even when
// a Partial match spans a chunk boundary.
type Scanner struct {
	bindings *Bindings
	pending  []byte
}

// NewScanner wraps bindings in a fresh Scanner with no pending bytes.
func NewScanner(bindings *Bindings) *Scanner {
	return &Scanner{bindings: bindings}
}

// Feed scans chunk and returns the bytes that should be forwarded to
// the pty and the actions that were triggered, in the order the
// matching chords completed.
func (s *Scanner) Feed(chunk []byte) (forward []byte, actions []Action) {
	for _, by := range chunk {
		s.pending = append(s.pending, by)
		res := s.bindings.Transition(by)
		switch res.Kind {
		case Matched:
			actions = append(actions, res.Action)
			s.pending = s.pending[:0]
		case Partial:
			// Keep buffering; this byte might complete a sequence,
			// might not, won't know until more bytes arrive.
		default: // NoMatch
			forward = append(forward, s.pending...)
			s.pending = s.pending[:0]
		}
	}
	return forward, actions
}
