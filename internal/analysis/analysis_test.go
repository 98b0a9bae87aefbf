package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wildwood-code/FResp/internal/sweep"
)

func points(pairs ...[2]float64) []sweep.Sample {
	out := make([]sweep.Sample, len(pairs))
	for i, p := range pairs {
		out[i] = sweep.Sample{Freq: p[0], GainDB: p[1]}
	}
	return out
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil)
	assert.True(t, math.IsNaN(sum.PeakDB))
	assert.True(t, math.IsNaN(sum.Corner3dB))
}

func TestSummarizeLowpass(t *testing.T) {
	// flat at 0 dB, rolling off past 10 kHz
	sum := Summarize(points(
		[2]float64{1000, 0.0},
		[2]float64{3162, 0.0},
		[2]float64{10000, -1.0},
		[2]float64{31623, -7.0},
		[2]float64{100000, -20.0},
	))
	assert.InDelta(t, 0.0, sum.PeakDB, 1e-12)
	assert.InDelta(t, 1000.0, sum.PeakFreq, 1e-9)
	assert.InDelta(t, -20.0, sum.MinDB, 1e-12)

	// -3 dB crossing sits a third of the way from 10k to 31.6k on a
	// log axis
	wantCorner := math.Pow(10.0, math.Log10(10000)+(1.0/3.0)*(math.Log10(31623)-math.Log10(10000)))
	assert.InDelta(t, wantCorner, sum.Corner3dB, wantCorner*1e-9)
}

func TestSummarizeNoCorner(t *testing.T) {
	sum := Summarize(points(
		[2]float64{1000, 0.0},
		[2]float64{10000, -1.0},
	))
	assert.True(t, math.IsNaN(sum.Corner3dB))
}

func TestSummarizeSkipsNaN(t *testing.T) {
	sum := Summarize([]sweep.Sample{
		{Freq: 1000, GainDB: 0.0},
		{Freq: 2000, GainDB: math.NaN()},
		{Freq: 4000, GainDB: -6.0},
	})
	assert.InDelta(t, 0.0, sum.PeakDB, 1e-12)
	assert.InDelta(t, -6.0, sum.MinDB, 1e-12)
	assert.False(t, math.IsNaN(sum.Corner3dB))
}

func TestSummarizePeakedResponse(t *testing.T) {
	// peaked at 5 kHz; the corner is measured from the peak, not from
	// the first point
	sum := Summarize(points(
		[2]float64{1000, -2.0},
		[2]float64{5000, 4.0},
		[2]float64{20000, 0.0},
		[2]float64{50000, -8.0},
	))
	assert.InDelta(t, 4.0, sum.PeakDB, 1e-12)
	assert.InDelta(t, 5000.0, sum.PeakFreq, 1e-9)
	assert.Greater(t, sum.Corner3dB, 5000.0)
	assert.Less(t, sum.Corner3dB, 50000.0)
}
