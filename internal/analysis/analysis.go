// Package analysis computes a post-sweep summary of a frequency
// response: peak and minimum gain and the -3 dB corner frequency.
package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/wildwood-code/FResp/internal/sweep"
)

// Summary condenses a sweep into its headline figures. Fields are NaN
// when the sweep has no usable points or, for Corner3dB, when the
// response never falls 3 dB below its peak.
type Summary struct {
	PeakDB    float64
	PeakFreq  float64
	MinDB     float64
	Corner3dB float64
}

// Summarize reduces the sample sequence. Points whose gain reading is
// NaN are skipped; the corner frequency is interpolated on a log
// frequency axis between the two points straddling the -3 dB level
// after the peak.
func Summarize(samples []sweep.Sample) Summary {
	var freqs, dbs []float64
	for _, s := range samples {
		if math.IsNaN(s.GainDB) || math.IsNaN(s.Freq) {
			continue
		}
		freqs = append(freqs, s.Freq)
		dbs = append(dbs, s.GainDB)
	}

	nan := math.NaN()
	if len(dbs) == 0 {
		return Summary{PeakDB: nan, PeakFreq: nan, MinDB: nan, Corner3dB: nan}
	}

	iPeak := floats.MaxIdx(dbs)
	sum := Summary{
		PeakDB:    dbs[iPeak],
		PeakFreq:  freqs[iPeak],
		MinDB:     floats.Min(dbs),
		Corner3dB: nan,
	}

	target := sum.PeakDB - 3.0
	for i := iPeak + 1; i < len(dbs); i++ {
		if dbs[i] > target {
			continue
		}
		if dbs[i] == dbs[i-1] {
			sum.Corner3dB = freqs[i]
			break
		}
		frac := (target - dbs[i-1]) / (dbs[i] - dbs[i-1])
		lf := math.Log10(freqs[i-1]) + frac*(math.Log10(freqs[i])-math.Log10(freqs[i-1]))
		sum.Corner3dB = math.Pow(10.0, lf)
		break
	}
	return sum
}
