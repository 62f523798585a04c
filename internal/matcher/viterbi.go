// Package matcher aligns a window of acoustic-model emissions against
// an expected token sequence using a CTC-style Viterbi trellis, and
// drives that alignment across a streaming emission context.
package matcher

import (
	"math"

	"github.com/hubenschmidt/trueprompter-go/internal/emission"
	"github.com/hubenschmidt/trueprompter-go/internal/trueerr"
)

// Point is a single (token index, frame index) cell in the trellis.
type Point struct {
	I int
	T int
}

// Result is a successful Viterbi match: the ordered alignment track
// and the matched sub-range of the tokens slice passed to Match.
type Result struct {
	Track      []Point
	TokensFrom int
	TokensTo   int // half-open: tokens[TokensFrom:TokensTo)
}

// Viterbi builds a CTC trellis over (tokens x frames) and backtracks
// the earliest-in-sequence path whose geometric-mean emission clears
// a threshold.
type Viterbi struct {
	blankToken     int32
	matchLength    int
	matchMinWeight float32
}

// New builds a Viterbi matcher. matchLength is the number of
// transitions (distinct matched tokens) a candidate path must reach to
// be considered, and the length every accepted path is trimmed to.
// matchMinWeight is the acceptance threshold on the path's geometric-
// mean per-transition emission probability.
func New(blankToken int32, matchLength int, matchMinWeight float32) *Viterbi {
	return &Viterbi{blankToken: blankToken, matchLength: matchLength, matchMinWeight: matchMinWeight}
}

// SetMinMatchWeight updates the acceptance threshold at runtime (a
// client's matcher_params override).
func (m *Viterbi) SetMinMatchWeight(w float32) { m.matchMinWeight = w }

// Match aligns tokens against e. It returns (Result, true, nil) on
// acceptance, (Result{}, false, nil) when no candidate path clears the
// weight threshold, and a non-nil error when tokens reference an
// out-of-range vocabulary id.
func (m *Viterbi) Match(e emission.Matrix, tokens []int32) (Result, bool, error) {
	if err := validateTokens(e, tokens); err != nil {
		return Result{}, false, err
	}
	if len(tokens) == 0 || e.Cols == 0 {
		return Result{}, false, nil
	}

	ctx := buildTrellis(e, tokens, m.blankToken, m.matchLength, m.matchMinWeight)
	path, ok := backtrackBest(ctx)
	if !ok || path.weight() < m.matchMinWeight {
		return Result{}, false, nil
	}

	track := path.track(ctx)
	if len(track) == 0 {
		return Result{}, false, nil
	}
	return Result{
		Track:      track,
		TokensFrom: track[0].I,
		TokensTo:   track[len(track)-1].I + 1,
	}, true, nil
}

// trellisCtx bundles the built trellis/backtrack tables with the
// parameters needed to walk them; it mirrors the read-only context the
// original alignment code threads through path advancement.
type trellisCtx struct {
	emission       emission.Matrix
	tokens         []int32
	trellis        []float32 // L*T, row i occupies trellis[i*cols:(i+1)*cols]
	backtrack      []int8    // 0 = stay, -1 = advance
	cols           int
	matchLength    int
	matchMinWeight float32
}

func (c *trellisCtx) rows() int { return len(c.tokens) }

func (c *trellisCtx) emissionAt(p Point) float32 {
	return c.emission.At(int(c.tokens[p.I]), p.T)
}

// prev returns the trellis cell the backtrack table points to from p.
func (c *trellisCtx) prev(p Point) Point {
	return Point{I: p.I + int(c.backtrack[p.I*c.cols+p.T]), T: p.T - 1}
}

func validateTokens(e emission.Matrix, tokens []int32) error {
	for _, tok := range tokens {
		if tok < 0 || int(tok) >= e.Rows {
			return trueerr.New(trueerr.InvalidInput, "token id out of range for emission vocabulary")
		}
	}
	return nil
}

// buildTrellis runs the CTC stay/advance recurrence over every
// (token, frame) cell. Adapted from the PyTorch forced-alignment
// tutorial's trellis construction.
func buildTrellis(e emission.Matrix, tokens []int32, blankToken int32, matchLength int, matchMinWeight float32) *trellisCtx {
	rows := len(tokens)
	cols := e.Cols

	trellis := make([]float32, rows*cols)
	backtrack := make([]int8, rows*cols)

	for t := 0; t < cols; t++ {
		prevCol := t - 1
		for i := 0; i < rows; i++ {
			var stayPrev, advancePrev float32
			if prevCol >= 0 {
				stayPrev = trellis[i*cols+prevCol]
				if i > 0 {
					advancePrev = trellis[(i-1)*cols+prevCol]
				} else {
					advancePrev = trellis[i*cols+prevCol]
				}
			}
			stayScore := stayPrev + e.At(int(blankToken), t)
			changeScore := advancePrev + e.At(int(tokens[i]), t)

			if stayScore > changeScore {
				trellis[i*cols+t] = stayScore
				backtrack[i*cols+t] = 0
			} else {
				trellis[i*cols+t] = changeScore
				backtrack[i*cols+t] = -1
			}
		}
	}

	return &trellisCtx{
		emission:       e,
		tokens:         tokens,
		trellis:        trellis,
		backtrack:      backtrack,
		cols:           cols,
		matchLength:    matchLength,
		matchMinWeight: matchMinWeight,
	}
}

// path is a candidate alignment anchored at a tail cell, with a head
// that recedes backward through the trellis as it is advanced.
type path struct {
	head      Point
	tail      Point
	weightSum float64
}

func newPath(pos Point) *path {
	return &path{head: pos, tail: pos}
}

func (p *path) length() int { return p.tail.I - p.head.I }

func (p *path) weight() float32 {
	l := p.length()
	if l == 0 {
		return 0
	}
	return float32(math.Exp(p.weightSum / float64(l)))
}

func (p *path) finished() bool {
	return p.head.I < 0 || p.head.T < 0
}

// id keys a candidate on its head cell. Both coordinates are shifted by
// one so that heads that have walked off the trellis (I or T == -1)
// still get distinct keys.
func (p *path) id() int64 {
	return (int64(p.head.I+1) << 32) | int64(p.head.T+1)
}

// advance moves head backward through any run of stays until it
// crosses one transition, accumulating that transition's emission
// weight, then trims tail back toward head — without dropping below
// matchLength transitions — discarding the weight of any transition
// trimmed away.
func (p *path) advance(ctx *trellisCtx) {
	for !p.finished() {
		prev := ctx.prev(p.head)
		em := ctx.emissionAt(p.head)
		old := p.head
		p.head = prev
		if p.head.I != old.I {
			p.weightSum += float64(em)
			break
		}
	}

	for p.tail.T > p.head.T+1 {
		prev := ctx.prev(p.tail)
		if p.tail.I != prev.I {
			if p.length() <= ctx.matchLength {
				break
			}
			p.weightSum -= float64(ctx.emissionAt(p.tail))
		}
		p.tail = prev
	}
}

// track walks from tail back to (but excluding) head, returning the
// visited cells in head-to-tail order.
func (p *path) track(ctx *trellisCtx) []Point {
	var res []Point
	pos := p.tail
	for pos != p.head {
		res = append(res, pos)
		pos = ctx.prev(pos)
	}
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res
}

// backtrackBest enumerates candidate tails in two sweeps — the
// rightmost column, then every interior pre-transition cell — and
// keeps the candidate with smallest tail row among those clearing the
// weight threshold, to favor the earliest match in the token sequence
// over the strongest one and avoid cursor jumps.
func backtrackBest(ctx *trellisCtx) (*path, bool) {
	rows := ctx.rows()
	cols := ctx.cols
	if rows == 0 || cols == 0 {
		return nil, false
	}

	var best *path
	seen := make(map[int64]struct{})

	process := func(start Point) {
		p := newPath(start)
		for !p.finished() {
			p.advance(ctx)
			if p.length() >= ctx.matchLength {
				if _, ok := seen[p.id()]; ok {
					break
				}
				seen[p.id()] = struct{}{}
				if p.weight() >= ctx.matchMinWeight && (best == nil || p.tail.I < best.tail.I) {
					clone := *p
					best = &clone
				}
			}
		}
	}

	lastCol := cols - 1
	for i := rows - 1; i >= 0; i-- {
		process(Point{I: i, T: lastCol})
	}

	for t := lastCol; t > 0; t-- {
		wasTransition := false
		for i := rows - 1; i >= 0; i-- {
			pos := Point{I: i, T: t}
			transition := ctx.prev(pos).I != pos.I
			if transition && !wasTransition {
				process(Point{I: i, T: t - 1})
			}
			wasTransition = transition
		}
	}

	return best, best != nil
}
