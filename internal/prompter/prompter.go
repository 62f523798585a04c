// Package prompter owns the script text, its tokenization, and the
// cursor, driving the recognizer and matcher to advance that cursor as
// audio arrives.
package prompter

import (
	"sort"

	"github.com/hubenschmidt/trueprompter-go/internal/emission"
	"github.com/hubenschmidt/trueprompter-go/internal/matcher"
	"github.com/hubenschmidt/trueprompter-go/internal/tokenizer"
)

// Recognizer is the windowing collaborator: raw samples in, a batch of
// emission frames out (empty when no full chunk is available yet).
type Recognizer interface {
	Update(samples []float32) (emission.Matrix, error)
	Reset()
}

// Matcher is the streaming alignment collaborator.
type Matcher interface {
	Match(eNew emission.Matrix, tokens []int32) (matcher.Result, bool, error)
	Reset()
}

// Match is one accepted sub-chunk match reported out of Update, named
// for logging: the matched token range and its character span.
type Match struct {
	TokensFrom, TokensTo int
	CharFrom, CharTo     int
}

// Prompter owns the script, its token/offset vectors, and the token
// cursor. It is not concurrent-safe; a session accesses it from a
// single worker only.
type Prompter struct {
	recognizer Recognizer
	tokenizer  *tokenizer.Tokenizer
	matcher    Matcher

	minChunkTokens  int
	lookAheadTokens int

	text      string
	tokens    []int32
	offsets   []int
	cursorTok int
}

// Option configures a Prompter.
type Option func(*Prompter)

// WithMinChunkTokens sets the minimum sub-target size in tokens
// (default 5, matching the original tuning).
func WithMinChunkTokens(n int) Option {
	return func(p *Prompter) { p.minChunkTokens = n }
}

// WithLookAheadTokens bounds how far past the committed cursor a
// single Update call will attempt to match (default 25).
func WithLookAheadTokens(n int) Option {
	return func(p *Prompter) { p.lookAheadTokens = n }
}

// New builds a Prompter over the given collaborators.
func New(recognizer Recognizer, tok *tokenizer.Tokenizer, m Matcher, opts ...Option) *Prompter {
	p := &Prompter{
		recognizer:      recognizer,
		tokenizer:       tok,
		matcher:         m,
		minChunkTokens:  5,
		lookAheadTokens: 25,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetText retokenizes text and resets the cursor to the start (or to
// initialCharOffset, a character offset, if provided).
func (p *Prompter) SetText(text string, initialCharOffset ...int) error {
	tokens, offsets, err := p.tokenizer.Tokenize(text)
	if err != nil {
		return err
	}
	p.text = text
	p.tokens = tokens
	p.offsets = offsets
	p.recognizer.Reset()
	p.matcher.Reset()
	if len(initialCharOffset) > 0 {
		p.SetCursor(initialCharOffset[0])
	} else {
		p.cursorTok = 0
	}
	return nil
}

// SetCursor maps a character offset to the greatest token index i with
// offsets[i] <= charOffset, then resets the recognizer and matcher so
// stale context never leaks across a jump.
func (p *Prompter) SetCursor(charOffset int) {
	p.cursorTok = greatestOffsetIndex(p.offsets, charOffset)
	p.recognizer.Reset()
	p.matcher.Reset()
}

// greatestOffsetIndex returns the greatest i with offsets[i] <= target,
// or 0 if no such i exists (target before the first token, or no
// tokens at all).
func greatestOffsetIndex(offsets []int, target int) int {
	idx := sort.Search(len(offsets), func(i int) bool { return offsets[i] > target })
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// weightTunable is implemented by matchers whose acceptance threshold
// can be changed at runtime (currently *matcher.Online).
type weightTunable interface {
	SetMinMatchWeight(w float32)
}

// SetLookAheadTokens overrides the lookahead window (a client's
// matcher_params override).
func (p *Prompter) SetLookAheadTokens(n int) { p.lookAheadTokens = n }

// SetMinMatchWeight overrides the matcher's acceptance threshold, if
// the configured matcher supports runtime tuning.
func (p *Prompter) SetMinMatchWeight(w float32) {
	if t, ok := p.matcher.(weightTunable); ok {
		t.SetMinMatchWeight(w)
	}
}

// Cursor returns the current character offset: offsets[cursorTok] if
// the token cursor is still within the script, else the end of text.
func (p *Prompter) Cursor() int {
	if p.cursorTok < len(p.offsets) {
		off := p.offsets[p.cursorTok]
		if off < 0 {
			return 0
		}
		if off > len(p.text) {
			return len(p.text)
		}
		return off
	}
	return len(p.text)
}

// Update drives samples through the recognizer and, for every emitted
// frame batch, walks the committed cursor's lookahead window in
// successive sub-targets — each at least minChunkTokens long and
// preferring to end at a SPACE token — matching each sub-target in
// turn and advancing the committed cursor on acceptance. It returns
// every sub-target that was accepted this call, in order.
func (p *Prompter) Update(samples []float32) ([]Match, error) {
	mat, err := p.recognizer.Update(samples)
	if err != nil {
		return nil, err
	}
	if mat.Cols == 0 {
		return nil, nil
	}

	spaceToken, hasSpace := p.tokenizer.SpaceToken()

	var accepted []Match
	current := p.cursorTok
	fedContext := false

	limit := p.cursorTok + p.lookAheadTokens
	if limit > len(p.tokens) {
		limit = len(p.tokens)
	}

	for current+p.minChunkTokens <= limit {
		var next int
		if hasSpace {
			// Grow the sub-target until it has reached the minimum size
			// and lands on a SPACE token (a word boundary), or runs out
			// of tokens.
			next = current
			for next < len(p.tokens) && (next-current < p.minChunkTokens || p.tokens[next] != spaceToken) {
				next++
			}
		} else {
			// No word-boundary signal in the token stream itself; chunk
			// by a fixed token count instead.
			next = current + p.minChunkTokens
			if next > len(p.tokens) {
				next = len(p.tokens)
			}
		}

		sub := p.tokens[current:next]

		var feed emission.Matrix
		if !fedContext {
			feed = mat
			fedContext = true
		}

		res, ok, err := p.matcher.Match(feed, sub)
		if err != nil {
			return accepted, err
		}

		advance := next
		if hasSpace && next < len(p.tokens) {
			advance = next + 1 // step past the space-token boundary, matched or not
		}

		if ok {
			tokensFrom := current + res.TokensFrom
			tokensTo := current + res.TokensTo
			p.cursorTok = advance
			accepted = append(accepted, Match{
				TokensFrom: tokensFrom,
				TokensTo:   tokensTo,
				CharFrom:   p.charOffsetOf(tokensFrom),
				CharTo:     p.charOffsetOf(tokensTo),
			})
		}

		current = advance
	}

	return accepted, nil
}

func (p *Prompter) charOffsetOf(tokenIdx int) int {
	if tokenIdx < 0 {
		return 0
	}
	if tokenIdx < len(p.offsets) {
		return p.offsets[tokenIdx]
	}
	return len(p.text)
}
