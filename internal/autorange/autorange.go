// Package autorange keeps an oscilloscope channel's vertical scale
// matched to the signal it is measuring. Readings are classified against
// the full-scale peak-to-peak span and the scale is nudged up or down
// one table step at a time until the signal sits in the target window.
package autorange

import (
	"github.com/wildwood-code/FResp/internal/scpi"
)

// Classification thresholds, as fractions of the full-scale
// peak-to-peak span. A reading above the max threshold is clipping; a
// reading below the min or mid thresholds is too small to resolve well.
const (
	SeekMax    = 1.000
	SeekMid    = 0.390
	SeekMin    = 0.200
	SeekMargin = 0.0275
)

// huntLimit is the number of adjustment direction reversals tolerated
// before the search gives up and accepts the current reading.
const huntLimit = 3

// Classify returns the scale adjustment for a peak-to-peak reading on a
// channel whose full-scale span is pp: +1 step coarser when clipping,
// -2 or -1 steps finer when the signal is small, 0 when it is in the
// target window. A NaN reading compares false against every threshold
// and classifies as 0.
func Classify(pkpk, pp float64) int {
	switch {
	case pkpk > (SeekMax-SeekMargin)*pp:
		return +1
	case pkpk < (SeekMin-SeekMargin)*pp:
		return -2
	case pkpk < (SeekMid-SeekMargin)*pp:
		return -1
	default:
		return 0
	}
}

// Scaler is the slice of the oscilloscope the controller drives.
type Scaler interface {
	Measure(ch scpi.Channel, kind scpi.MeasKind) float64
	AdjustVolts(ch scpi.Channel, cur scpi.ScaleValues, steps int) (int, error)
	ReadScale(ch scpi.Channel) (scpi.ScaleValues, error)
}

// Controller measures one channel per round and applies at most one
// scale adjustment per call. Callers repeat rounds until the applied
// adjustment is 0 or a Hunter reports exhaustion.
type Controller struct {
	Scope Scaler
	Kind  scpi.MeasKind
}

// Adjust reads the measurement on ch, classifies the channel's
// peak-to-peak level against the current scale, and applies one
// adjustment when needed, refreshing scale in place from the
// instrument. It returns the measured value and the number of scale
// steps actually applied.
func (c *Controller) Adjust(ch scpi.Channel, scale *scpi.ScaleValues) (float64, int, error) {
	mag := c.Scope.Measure(ch, c.Kind)

	// classification is always on the peak-to-peak level, even when the
	// reported measurement is something else
	pkpk := mag
	if c.Kind != scpi.MeasPKPK {
		pkpk = c.Scope.Measure(ch, scpi.MeasPKPK)
	}

	step := Classify(pkpk, scale.PP)
	if step == 0 {
		return mag, 0, nil
	}

	applied, err := c.Scope.AdjustVolts(ch, *scale, step)
	if err != nil {
		return mag, 0, err
	}
	sv, err := c.Scope.ReadScale(ch)
	if err != nil {
		return mag, applied, err
	}
	*scale = sv
	return mag, applied, nil
}

// Hunter detects scale hunting across rounds: an adjustment that
// reverses direction on either channel counts toward the limit. Once
// the limit is reached the search accepts whatever reading it has, even
// one that may still be out of range.
type Hunter struct {
	flips   int
	lastIn  int
	lastOut int
}

// Observe records one round of input and output adjustments.
func (h *Hunter) Observe(adjIn, adjOut int) {
	if h.lastIn*adjIn < 0 || h.lastOut*adjOut < 0 {
		h.flips++
	}
	h.lastIn = adjIn
	h.lastOut = adjOut
}

// Exhausted reports whether hunting has hit the reversal limit.
func (h *Hunter) Exhausted() bool {
	return h.flips >= huntLimit
}
