package tokenizer

import (
	"strings"
	"testing"
)

// letterG2P maps each rune of a word to its index in a small fixed
// alphabet, one token per letter — enough to exercise offset spreading
// without a real phoneme dictionary.
func letterG2P(alphabet string) PhoneticizeFunc {
	return func(word string) []int32 {
		toks := make([]int32, 0, len(word))
		for _, r := range word {
			idx := strings.IndexRune(alphabet, r)
			if idx < 0 {
				continue
			}
			toks = append(toks, int32(idx))
		}
		return toks
	}
}

const alphabet = "abcdefghijklmnopqrstuvwxyz"

func TestTokenizeWhitespaceOnly(t *testing.T) {
	tok := New(letterG2P(alphabet), int32(len(alphabet)))
	tokens, offsets, err := tok.Tokenize("   \t\n ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tokens) != 0 || len(offsets) != 0 {
		t.Fatalf("expected empty tokens, got %v / %v", tokens, offsets)
	}
}

func TestTokenizeInvalidUTF8(t *testing.T) {
	tok := New(letterG2P(alphabet), int32(len(alphabet)))
	_, _, err := tok.Tokenize("bad\xff\xfeutf8")
	if err == nil {
		t.Fatal("expected error for invalid utf-8")
	}
}

func TestTokenizeProportionalOffsets(t *testing.T) {
	tok := New(letterG2P(alphabet), int32(len(alphabet)))
	text := "one two three"
	tokens, offsets, err := tok.Tokenize(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tokens) != len(offsets) {
		t.Fatalf("tokens/offsets length mismatch: %d vs %d", len(tokens), len(offsets))
	}
	// one of the round-trip invariants from the testable properties:
	// offsets must be monotonically non-decreasing and the last offset
	// must be < len(text).
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			t.Fatalf("offsets not monotonic at %d: %v", i, offsets)
		}
	}
	if offsets[len(offsets)-1] >= len(text) {
		t.Fatalf("last offset %d must be < len(text) %d", offsets[len(offsets)-1], len(text))
	}
	// "one" occupies text[0:3); its first token must map to offset 0.
	if offsets[0] != 0 {
		t.Fatalf("expected first token offset 0, got %d", offsets[0])
	}
}

func TestTokenizeWithSpaceToken(t *testing.T) {
	const space = int32(99)
	tok := New(letterG2P(alphabet), 100, WithSpaceToken(space))
	tokens, offsets, err := tok.Tokenize("one two")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// "one" (3 tokens) + SPACE + "two" (3 tokens) = 7
	if len(tokens) != 7 {
		t.Fatalf("expected 7 tokens, got %d (%v)", len(tokens), tokens)
	}
	if tokens[3] != space {
		t.Fatalf("expected SPACE token at index 3, got %d", tokens[3])
	}
	if offsets[3] != 3 {
		t.Fatalf("expected SPACE offset at word-separator position 3, got %d", offsets[3])
	}
}

func TestTokenizeRoundTripReachability(t *testing.T) {
	tok := New(letterG2P(alphabet), int32(len(alphabet)))
	text := "verylongword"
	tokens, offsets, err := tok.Tokenize(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for k := 0; k < len(text); k++ {
		found := false
		for i := range offsets {
			hi := len(text)
			if i+1 < len(offsets) {
				hi = offsets[i+1]
			}
			if offsets[i] <= k && (k < hi || i == len(offsets)-1) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("character offset %d not reachable by any token (offsets=%v)", k, offsets)
		}
	}
	_ = tokens
}
