package render

import (
	"sort"
	"time"

	"driftwatch/internal/model"
)

// Cursor is a pull-based iterator over the frames of a finished Detection.
// The presenter owns and advances it; detection outputs are held by
// reference, never copied, mutated, or recomputed.
//
// Frame k carries the sample and trend at k, and the anomaly at k if one
// exists. Across frames 0..k exactly the anomalies with index <= k have
// been emitted; the filter is an ordinal pointer walked over the sorted
// anomaly slice, O(1) amortized per frame.
//
// Cursor is not goroutine-safe. The presenter serializes access.
type Cursor struct {
	d   *model.Detection
	pos int // next frame index to emit
	ai  int // first anomaly ordinal with Index >= pos
}

// NewCursor wraps a finished Detection for frame-by-frame reveal.
func NewCursor(d *model.Detection) (*Cursor, error) {
	if d == nil || len(d.Signal) == 0 {
		return nil, ErrEmptyDetection
	}
	return &Cursor{d: d}, nil
}

// Next emits the next frame. Returns false when all frames are exhausted.
func (c *Cursor) Next() (model.Frame, bool) {
	if c.pos >= len(c.d.Signal) {
		return model.Frame{}, false
	}
	k := c.pos
	f := model.Frame{
		Series:   c.d.Series,
		Index:    k,
		Value:    c.d.Signal[k],
		Trend:    c.d.Trend[k],
		Revealed: k + 1,
		Total:    len(c.d.Signal),
		TS:       time.Now().UTC(),
	}
	// Indices are strictly increasing and duplicate-free, so the pointer
	// advances at most once per frame.
	if c.ai < len(c.d.Anomalies) && c.d.Anomalies[c.ai].Index == k {
		f.Anomaly = &c.d.Anomalies[c.ai]
		c.ai++
	}
	c.pos++
	return f, true
}

// Pos returns the number of frames emitted so far.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the total number of frames.
func (c *Cursor) Len() int { return len(c.d.Signal) }

// Done reports whether every frame has been emitted.
func (c *Cursor) Done() bool { return c.pos >= len(c.d.Signal) }

// Rewind resets the cursor to the first frame.
func (c *Cursor) Rewind() {
	c.pos = 0
	c.ai = 0
}

// Seek positions the cursor so that the next frame emitted is k.
// k is clamped to [0, Len()]; seeking to Len() makes Done() true.
func (c *Cursor) Seek(k int) {
	if k < 0 {
		k = 0
	}
	if k > len(c.d.Signal) {
		k = len(c.d.Signal)
	}
	c.pos = k
	c.ai = sort.Search(len(c.d.Anomalies), func(i int) bool {
		return c.d.Anomalies[i].Index >= k
	})
}

// Revealed returns the anomalies whose frames have been emitted so far.
// The returned slice aliases the detection; callers must not modify it.
func (c *Cursor) Revealed() []model.Anomaly {
	return c.d.Anomalies[:c.ai]
}

// Detection returns the underlying detection.
func (c *Cursor) Detection() *model.Detection { return c.d }
