package matcher

import (
	"testing"

	"github.com/hubenschmidt/trueprompter-go/internal/emission"
)

func TestOnlineRejectsBadOverlap(t *testing.T) {
	inner := New(blank, 1, 0.1)
	if _, err := NewOnline(inner, 10, 10); err == nil {
		t.Fatal("expected error when overlap >= c_max")
	}
	if _, err := NewOnline(inner, 10, -1); err == nil {
		t.Fatal("expected error for negative overlap")
	}
}

func TestOnlineContextNeverExceedsCap(t *testing.T) {
	tokens := []int32{1, 2, 3, 4, 5}
	favored := []int32{1, 1, 2, 2, 3, 3, 4, 4, 5, 5}
	vocab := 6

	inner := New(blank, 1, 0.3)
	om, err := NewOnline(inner, 4, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cursor := 0
	for i := 0; i < len(favored); i++ {
		e := buildEmission(vocab, favored[i:i+1])
		res, ok, err := om.Match(e, tokens[cursor:])
		if err != nil {
			t.Fatalf("unexpected error at frame %d: %v", i, err)
		}
		if om.cols > 4 {
			t.Fatalf("context exceeded c_max after frame %d: %d columns", i, om.cols)
		}
		if om.cols > 2 {
			t.Fatalf("retained context exceeded overlap after frame %d: %d columns", i, om.cols)
		}
		if ok {
			cursor += res.TokensTo
		}
	}
}

// drain repeatedly re-runs the matcher against whatever context remains,
// without appending new frames, until no further sub-batch matches —
// mimicking a Prompter that keeps sub-chunking a lookahead window over
// a context that already holds every frame it needs.
func drain(om *Online, tokens []int32, cursor int) int {
	for {
		res, ok, _ := om.Match(emission.Matrix{}, tokens[cursor:])
		if !ok {
			return cursor
		}
		cursor += res.TokensTo
	}
}

func TestOnlineSplitMatchesWholeRunCursor(t *testing.T) {
	tokens := []int32{1, 2, 3, 4, 5}
	vocab := 6
	favored := make([]int32, 0, 30)
	for _, tok := range tokens {
		for i := 0; i < 6; i++ {
			favored = append(favored, tok)
		}
	}

	fullInner := New(blank, 1, 0.3)
	fullOM, err := NewOnline(fullInner, 64, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := buildEmission(vocab, favored)
	cursor, ok, err := 0, false, error(nil)
	var res Result
	res, ok, err = fullOM.Match(e, tokens[cursor:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		cursor += res.TokensTo
	}
	fullCursor := drain(fullOM, tokens, cursor)

	splitInner := New(blank, 1, 0.3)
	splitOM, err := NewOnline(splitInner, 64, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	half := len(favored) / 2
	splitCursor := 0
	for _, chunk := range [][]int32{favored[:half], favored[half:]} {
		ec := buildEmission(vocab, chunk)
		r, matched, err := splitOM.Match(ec, tokens[splitCursor:])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if matched {
			splitCursor += r.TokensTo
		}
		splitCursor = drain(splitOM, tokens, splitCursor)
	}

	if splitCursor != fullCursor {
		t.Fatalf("split cursor %d != full-stream cursor %d", splitCursor, fullCursor)
	}
	if splitCursor != len(tokens) {
		t.Fatalf("expected cursor to reach end of tokens (%d), got %d", len(tokens), splitCursor)
	}
}
