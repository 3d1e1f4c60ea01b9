package keybind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingsTransitionTable(t *testing.T) {
	cases := []struct {
		name     string
		bindings []Binding
		input    []byte
		want     Result
	}{
		{
			name:     "single key match",
			bindings: []Binding{{Text: "a", Action: ActionDetach}},
			input:    []byte("a"),
			want:     Result{Kind: Matched, Action: ActionDetach},
		},
		{
			name:     "noise then match",
			bindings: []Binding{{Text: "a", Action: ActionDetach}},
			input:    []byte("bxya"),
			want:     Result{Kind: Matched, Action: ActionDetach},
		},
		{
			name:     "unrelated byte",
			bindings: []Binding{{Text: "a", Action: ActionDetach}},
			input:    []byte("b"),
			want:     Result{Kind: NoMatch},
		},
		{
			name:     "trailing noise after match",
			bindings: []Binding{{Text: "a", Action: ActionDetach}},
			input:    []byte("aaxab"),
			want:     Result{Kind: NoMatch},
		},
		{
			name:     "ctrl-a",
			bindings: []Binding{{Text: "Ctrl-a", Action: ActionDetach}},
			input:    []byte{1},
			want:     Result{Kind: Matched, Action: ActionDetach},
		},
		{
			name:     "ctrl-space",
			bindings: []Binding{{Text: "Ctrl-Space", Action: ActionDetach}},
			input:    []byte{0},
			want:     Result{Kind: Matched, Action: ActionDetach},
		},
		{
			name:     "two chord sequence matches",
			bindings: []Binding{{Text: "Ctrl-Space Ctrl-d", Action: ActionDetach}},
			input:    []byte{0, 4},
			want:     Result{Kind: Matched, Action: ActionDetach},
		},
		{
			name:     "wrong middle chord",
			bindings: []Binding{{Text: "Ctrl-Space Ctrl-d", Action: ActionDetach}},
			input:    []byte{0, 20, 4},
			want:     Result{Kind: NoMatch},
		},
		{
			name:     "extra trailing byte",
			bindings: []Binding{{Text: "Ctrl-Space Ctrl-d", Action: ActionDetach}},
			input:    []byte{0, 4, 20},
			want:     Result{Kind: NoMatch},
		},
		{
			name:     "three chord partial",
			bindings: []Binding{{Text: "a b c", Action: ActionDetach}},
			input:    []byte("ab"),
			want:     Result{Kind: Partial},
		},
		{
			name:     "ctrl-0 aliases to ctrl-8 code",
			bindings: []Binding{{Text: "Ctrl-0", Action: ActionDetach}},
			input:    []byte{127},
			want:     Result{Kind: Matched, Action: ActionDetach},
		},
		{
			name:     "ctrl-backslash",
			bindings: []Binding{{Text: "Ctrl-\\", Action: ActionDetach}},
			input:    []byte{28},
			want:     Result{Kind: Matched, Action: ActionDetach},
		},
		{
			name:     "ctrl-backslash then d",
			bindings: []Binding{{Text: "Ctrl-\\ d", Action: ActionDetach}},
			input:    []byte{28, 'd'},
			want:     Result{Kind: Matched, Action: ActionDetach},
		},
		{
			name:     "ctrl-backslash partial",
			bindings: []Binding{{Text: "Ctrl-\\ d", Action: ActionDetach}},
			input:    []byte{28},
			want:     Result{Kind: Partial},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := NewBindings(tc.bindings)
			require.NoError(t, err)

			var got Result
			for _, by := range tc.input {
				got = b.Transition(by)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestChordValidity(t *testing.T) {
	cases := []struct {
		chord  []string
		errstr string
	}{
		{[]string{"Ctrl", "x"}, ""},
		{[]string{"a", "a"}, "Ctrl is the only supported mod key"},
		{[]string{"Ctrl", "a", "x"}, "invalid chord"},
		{[]string{"a", "Ctrl"}, "Ctrl is the only supported mod key"},
		{[]string{"Ctrl", "Ctrl"}, "Ctrl cannot be repeated"},
	}

	for _, tc := range cases {
		err := checkChordValid(tc.chord)
		if tc.errstr == "" {
			assert.NoError(t, err)
			continue
		}
		require.Error(t, err)
		assert.Contains(t, err.Error(), tc.errstr)
	}
}

func TestChordKeyCodeControlAliases(t *testing.T) {
	cases := []struct {
		chord []string
		want  byte
	}{
		{[]string{"Ctrl", "@"}, 0},
		{[]string{"Ctrl", "2"}, 0},
		{[]string{"Ctrl", "8"}, 127},
		{[]string{"Ctrl", "0"}, 127},
		{[]string{"Space"}, ' '},
		{[]string{"a"}, 'a'},
	}
	for _, tc := range cases {
		got, err := chordKeyCode(tc.chord)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestLargeBindingSetCompilesOrReportsChordLimit(t *testing.T) {
	bindings := make([]Binding, 0, 256)
	// 256 distinct single-letter chords is impossible (26 letters +
	// digits + symbols fall well short), so instead build 256
	// two-chord sequences out of every Ctrl-<key> chord that has a
	// control code, recycling the alphabet.
	letters := "abcdefghijklmnopqrstuvwxyz02345678"
	for i := 0; i < 256; i++ {
		bindings = append(bindings, Binding{
			Text:   "Ctrl-" + string(letters[i%len(letters)]) + " " + string(rune('a'+(i%26))),
			Action: ActionNoOp,
		})
	}
	_, err := NewBindings(bindings)
	// Not asserting a specific count boundary (the letters/digits
	// alphabet recycles), just that the engine never panics on a
	// large, messy binding set and either compiles or reports the
	// too-many-chords error cleanly.
	if err != nil {
		assert.Contains(t, err.Error(), "unique chords")
	}
}

func TestScannerSnipsCompleteSequenceAcrossChunks(t *testing.T) {
	b, err := NewBindings([]Binding{{Text: "Ctrl-Space Ctrl-q", Action: ActionDetach}})
	require.NoError(t, err)
	s := NewScanner(b)

	fwd1, actions1 := s.Feed([]byte{0})
	assert.Empty(t, fwd1)
	assert.Empty(t, actions1)

	fwd2, actions2 := s.Feed([]byte{17})
	assert.Empty(t, fwd2)
	require.Len(t, actions2, 1)
	assert.Equal(t, ActionDetach, actions2[0])
}

func TestScannerFlushesFalsifiedPartial(t *testing.T) {
	b, err := NewBindings([]Binding{{Text: "Ctrl-Space Ctrl-q", Action: ActionDetach}})
	require.NoError(t, err)
	s := NewScanner(b)

	fwd1, _ := s.Feed([]byte{0})
	assert.Empty(t, fwd1)

	// A byte that isn't Ctrl-q falsifies the partial match; the
	// buffered Ctrl-Space byte plus this byte are both forwarded.
	fwd2, actions2 := s.Feed([]byte{'x'})
	assert.Equal(t, []byte{0, 'x'}, fwd2)
	assert.Empty(t, actions2)
}

func TestScannerForwardsUnrelatedBytes(t *testing.T) {
	b, err := NewBindings([]Binding{{Text: "Ctrl-q", Action: ActionDetach}})
	require.NoError(t, err)
	s := NewScanner(b)

	fwd, actions := s.Feed([]byte("echo hi\n"))
	assert.Equal(t, []byte("echo hi\n"), fwd)
	assert.Empty(t, actions)
}

func TestTrieContains(t *testing.T) {
	cases := [][]string{
		{"word"},
		{""},
		{"word", "words", "blah", "blip", "foo", "bar"},
	}
	for _, words := range cases {
		tr := newTrie[struct{}]()
		for _, w := range words {
			tr.insert([]byte(w), struct{}{})
		}
		for _, w := range words {
			assert.True(t, tr.contains([]byte(w)))
		}
	}
}
