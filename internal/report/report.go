// Package report renders sweep results as tab-separated text rows and
// fans one result stream out to several destinations, typically the
// console and a log file.
package report

import (
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/wildwood-code/FResp/internal/sweep"
)

// Reporter consumes a sweep result stream.
type Reporter interface {
	Header(unit sweep.TimeMeasure) error
	Sample(s sweep.Sample) error
}

// Writer renders results to an io.Writer, one tab-separated row per
// sweep point: frequency, input and output magnitudes, gain ratio, gain
// in dB, and the phase or delay reading.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Reporter over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (r *Writer) Header(unit sweep.TimeMeasure) error {
	_, err := fmt.Fprintf(r.w, "freq\tinput\toutput\tgain\tdB\t%s\n", unit)
	return err
}

func (r *Writer) Sample(s sweep.Sample) error {
	_, err := fmt.Fprintf(r.w, "%g\t%g\t%g\t%g\t%g\t%g\n",
		s.Freq, s.MagIn, s.MagOut, s.Gain, s.GainDB, s.Time)
	return err
}

// Multi fans each call out to every reporter, collecting their errors.
type Multi []Reporter

func (m Multi) Header(unit sweep.TimeMeasure) error {
	var err error
	for _, r := range m {
		err = multierr.Append(err, r.Header(unit))
	}
	return err
}

func (m Multi) Sample(s sweep.Sample) error {
	var err error
	for _, r := range m {
		err = multierr.Append(err, r.Sample(s))
	}
	return err
}
