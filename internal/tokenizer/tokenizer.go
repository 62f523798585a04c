// Package tokenizer converts script text into the acoustic-token
// sequence the matcher aligns against, carrying a per-token character
// offset so the prompter can translate a matched token range back into
// a position in the original text.
package tokenizer

import (
	"encoding/json"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hubenschmidt/trueprompter-go/internal/trueerr"
)

// Phoneticizer is the opaque grapheme-to-phoneme collaborator: given a
// word (a maximal run of non-whitespace codepoints), it returns the
// acoustic token ids that spell it out. Implementations are free to be
// dictionary-backed, FST-backed, or rule-based — the tokenizer only
// needs the contract.
type Phoneticizer interface {
	Phoneticize(word string) []int32
}

// PhoneticizeFunc adapts a plain function to a Phoneticizer.
type PhoneticizeFunc func(word string) []int32

func (f PhoneticizeFunc) Phoneticize(word string) []int32 { return f(word) }

// Tokenizer holds the fixed parameters of a tokenization scheme: the
// G2P collaborator, the vocabulary size (for bounds-checking the G2P
// output), and whether word boundaries are marked with a SPACE
// token.
type Tokenizer struct {
	g2p        Phoneticizer
	vocabSize  int32
	spaceToken int32
	useSpace   bool
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithSpaceToken makes the tokenizer insert id between adjacent words,
// at the word-separator character offset. Without this option no SPACE
// tokens are emitted and word boundaries must be recovered from the
// offsets array downstream.
func WithSpaceToken(id int32) Option {
	return func(t *Tokenizer) {
		t.spaceToken = id
		t.useSpace = true
	}
}

// New builds a Tokenizer. vocabSize bounds the token ids the G2P
// collaborator is allowed to emit; 0 disables the check.
func New(g2p Phoneticizer, vocabSize int32, opts ...Option) *Tokenizer {
	t := &Tokenizer{g2p: g2p, vocabSize: vocabSize}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SpaceToken reports the configured SPACE token id and whether one is
// configured at all.
func (t *Tokenizer) SpaceToken() (int32, bool) {
	return t.spaceToken, t.useSpace
}

// Tokenize walks text codepoint by codepoint, groups maximal runs of
// non-whitespace codepoints into words, and emits the G2P tokens for
// each word with a proportional per-token character offset. text must
// be valid UTF-8.
func (t *Tokenizer) Tokenize(text string) (tokens []int32, offsets []int, err error) {
	if !utf8.ValidString(text) {
		return nil, nil, trueerr.New(trueerr.InvalidInput, "script text is not valid utf-8")
	}

	wordStart := -1
	sep := -1 // offset of the first separator since the last word began
	pos := 0
	for pos < len(text) {
		r, size := utf8.DecodeRuneInString(text[pos:])
		if unicode.IsSpace(r) {
			if wordStart >= 0 {
				wtoks, woffs, werr := t.flush(text, wordStart, pos)
				if werr != nil {
					return nil, nil, werr
				}
				tokens = append(tokens, wtoks...)
				offsets = append(offsets, woffs...)
				wordStart = -1
			}
			if sep < 0 {
				sep = pos
			}
		} else if wordStart < 0 {
			if t.useSpace && sep >= 0 && len(tokens) > 0 {
				tokens = append(tokens, t.spaceToken)
				offsets = append(offsets, sep)
			}
			sep = -1
			wordStart = pos
		}
		pos += size
	}
	if wordStart >= 0 {
		wtoks, woffs, werr := t.flush(text, wordStart, pos)
		if werr != nil {
			return nil, nil, werr
		}
		tokens = append(tokens, wtoks...)
		offsets = append(offsets, woffs...)
	}

	return tokens, offsets, nil
}

// StaticPhoneticizer is a map-backed Phoneticizer for a bundled or
// loaded word -> token-id lexicon, standing in for an FST-backed
// grapheme-to-phoneme dictionary. Lookup is case-insensitive;
// words outside the lexicon phoneticize to nothing and are silently
// dropped from the token stream, matching flush's empty-token skip.
type StaticPhoneticizer struct {
	dict map[string][]int32
}

// NewStaticPhoneticizer wraps a word -> token-id lexicon, lower-casing
// its keys.
func NewStaticPhoneticizer(dict map[string][]int32) *StaticPhoneticizer {
	lower := make(map[string][]int32, len(dict))
	for word, toks := range dict {
		lower[strings.ToLower(word)] = toks
	}
	return &StaticPhoneticizer{dict: lower}
}

func (p *StaticPhoneticizer) Phoneticize(word string) []int32 {
	return p.dict[strings.ToLower(word)]
}

// LoadLexicon reads a JSON object mapping words to arrays of token ids
// from path and builds a StaticPhoneticizer over it.
func LoadLexicon(path string) (*StaticPhoneticizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, trueerr.Wrap(trueerr.ModelFailure, "read lexicon", err)
	}
	var dict map[string][]int32
	if err := json.Unmarshal(data, &dict); err != nil {
		return nil, trueerr.Wrap(trueerr.ModelFailure, "parse lexicon", err)
	}
	return NewStaticPhoneticizer(dict), nil
}

// flush phoneticizes the word text[from:to) and maps each emitted token
// j to offset min(to-1, from + (to-from)*j/count) — a proportional
// spread across the word's byte span so the cursor advances through a
// long word instead of jumping straight to its end.
func (t *Tokenizer) flush(text string, from, to int) ([]int32, []int, error) {
	word := text[from:to]
	toks := t.g2p.Phoneticize(word)
	if len(toks) == 0 {
		return nil, nil, nil
	}
	if t.vocabSize > 0 {
		for _, tok := range toks {
			if tok < 0 || tok >= t.vocabSize {
				return nil, nil, trueerr.New(trueerr.InvalidInput, "phoneticizer produced out-of-range token")
			}
		}
	}
	offs := make([]int, len(toks))
	span := to - from
	count := len(toks)
	for j := range toks {
		off := from + span*j/count
		if off > to-1 {
			off = to - 1
		}
		offs[j] = off
	}
	return toks, offs, nil
}
