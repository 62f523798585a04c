package matcher

import (
	"github.com/hubenschmidt/trueprompter-go/internal/emission"
	"github.com/hubenschmidt/trueprompter-go/internal/trueerr"
)

// Online drives an inner Viterbi matcher across a bounded, streaming
// emission context: new frames are appended as they arrive, already-
// matched frames are dropped, and the live context is capped so that
// a long silence or mismatch never grows memory without bound.
type Online struct {
	inner   *Viterbi
	cMax    int
	overlap int

	rows int
	data []float32 // column-major, len == rows*cols
	cols int
}

// NewOnline builds an OnlineMatcher. cMax is the emission context
// capacity in columns; overlap (< cMax) is how many trailing columns
// are retained as carry-over after a sub-batch that did not consume
// the whole context.
func NewOnline(inner *Viterbi, cMax, overlap int) (*Online, error) {
	if cMax <= 0 || overlap < 0 || overlap >= cMax {
		return nil, trueerr.New(trueerr.InvalidInput, "online matcher requires 0 <= overlap < c_max")
	}
	return &Online{inner: inner, cMax: cMax, overlap: overlap}, nil
}

// SetMinMatchWeight forwards a runtime threshold override to the inner
// Viterbi matcher.
func (o *Online) SetMinMatchWeight(w float32) { o.inner.SetMinMatchWeight(w) }

// Reset clears the emission context without resetting the inner
// matcher's parameters.
func (o *Online) Reset() {
	o.data = o.data[:0]
	o.cols = 0
	o.rows = 0
}

// Match appends eNew's columns to the context and runs the inner
// matcher against tokens, processing as many sub-batches as the
// context's capacity requires. It returns the last sub-batch's matched
// range (latest wins) and whether any sub-batch matched at all.
func (o *Online) Match(eNew emission.Matrix, tokens []int32) (Result, bool, error) {
	if eNew.Cols > 0 {
		if o.rows == 0 {
			o.rows = eNew.Rows
		} else if o.rows != eNew.Rows {
			return Result{}, false, trueerr.New(trueerr.Internal, "online matcher: emission vocabulary size changed mid-session")
		}
		o.data = append(o.data, eNew.Data...)
		o.cols += eNew.Cols
	}

	var (
		last     Result
		anyMatch bool
		tokOff   int
	)

	runOne := func(fitCols int) (bool, error) {
		sub := o.context().Slice(0, fitCols)
		res, ok, err := o.inner.Match(sub, tokens[tokOff:])
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		tEnd := res.Track[len(res.Track)-1].T
		o.dropPrefix(tEnd + 1)
		last = Result{
			Track:      res.Track,
			TokensFrom: tokOff + res.TokensFrom,
			TokensTo:   tokOff + res.TokensTo,
		}
		anyMatch = true
		tokOff += res.TokensTo
		return true, nil
	}

	// While the context would overflow c_max, force a sub-batch on
	// whatever fits. A sub-batch that finds no match still must not
	// grow the context unbounded, so fall back to the overlap cap.
	for o.cols > o.cMax {
		matched, err := runOne(o.cMax)
		if err != nil {
			return Result{}, false, err
		}
		if !matched {
			o.retainSuffix(o.overlap)
			break
		}
	}

	// A normal, non-overflowing call still attempts a match over the
	// whole retained context so the cursor advances promptly.
	if o.cols > 0 {
		if _, err := runOne(o.cols); err != nil {
			return Result{}, false, err
		}
	}

	if o.cols > o.overlap {
		o.retainSuffix(o.overlap)
	}

	if o.cols > o.cMax {
		return Result{}, false, trueerr.New(trueerr.Internal, "online matcher: context exceeded c_max after processing")
	}

	return last, anyMatch, nil
}

// context returns a live Matrix view over the retained columns.
func (o *Online) context() emission.Matrix {
	if o.rows == 0 {
		return emission.Matrix{}
	}
	return emission.New(o.data, o.rows, o.cols)
}

// dropPrefix discards the leading n columns of the context.
func (o *Online) dropPrefix(n int) {
	if n <= 0 {
		return
	}
	if n >= o.cols {
		o.data = o.data[:0]
		o.cols = 0
		return
	}
	copy(o.data, o.data[n*o.rows:o.cols*o.rows])
	o.cols -= n
	o.data = o.data[:o.cols*o.rows]
}

// retainSuffix keeps only the trailing keep columns of the context.
func (o *Online) retainSuffix(keep int) {
	if keep >= o.cols {
		return
	}
	o.dropPrefix(o.cols - keep)
}
