// Package sweep drives a frequency response measurement: a signal
// generator stimulates the circuit under test while an oscilloscope
// measures the input and output, auto-ranging both channels at each
// frequency before recording magnitude and phase or delay.
package sweep

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/wildwood-code/FResp/internal/autorange"
	"github.com/wildwood-code/FResp/internal/scpi"
)

const (
	// freqFudge loosens the sweep completion comparison so the stop
	// frequency itself is always measured despite rounding drift.
	freqFudge = 1.001

	// measCycles is the number of stimulus cycles captured per screen.
	measCycles = 4.0
)

// SweepKind selects logarithmic or linear frequency stepping.
type SweepKind int

const (
	SweepLog SweepKind = iota
	SweepLinear
)

// VoltMeasure selects how amplitudes are expressed.
type VoltMeasure int

const (
	VoltPP VoltMeasure = iota // peak-to-peak
	VoltPK                    // peak
)

// TimeMeasure selects the phase or delay reading between channels.
type TimeMeasure int

const (
	TimePhase TimeMeasure = iota
	TimeDelay
)

// String names the measurement for report column headers.
func (t TimeMeasure) String() string {
	if t == TimeDelay {
		return "delay"
	}
	return "phase"
}

// FreqConfig is the sweep range: Points is points per decade for log
// sweeps and total points for linear sweeps.
type FreqConfig struct {
	Start  float64
	Stop   float64
	Kind   SweepKind
	Points int
}

// StimConfig is the generator stimulus. Amplitude is interpreted per
// Kind (Vpp or Vpk) and Channel selects the generator source (1 or 2).
type StimConfig struct {
	Channel   int
	Kind      VoltMeasure
	Amplitude float64
	Offset    float64
}

// ChannelConfig is one oscilloscope channel connected to the circuit.
type ChannelConfig struct {
	Channel  int
	Coupling scpi.Coupling
	Atten    float64
	BWL      bool
}

// TrigConfig is the oscilloscope edge trigger.
type TrigConfig struct {
	Channel  int
	Edge     scpi.EdgeType
	Coupling scpi.Coupling
	Level    float64
}

// MeasConfig selects the amplitude and time measurement conventions.
type MeasConfig struct {
	Volt VoltMeasure
	Time TimeMeasure
}

// DwellConfig controls how long the sweep waits at each frequency for
// the circuit to settle: a multiple of the capture time with a floor.
type DwellConfig struct {
	StableScreens float64
	MinDwell      time.Duration
}

// Dwell profiles selectable from the command line.
var (
	DwellFast = DwellConfig{StableScreens: 1.5, MinDwell: 250 * time.Millisecond}
	DwellMid  = DwellConfig{StableScreens: 2.0, MinDwell: 500 * time.Millisecond}
	DwellSlow = DwellConfig{StableScreens: 2.5, MinDwell: 1000 * time.Millisecond}
)

// Config aggregates everything a measurement session needs.
type Config struct {
	Freq   FreqConfig
	Stim   StimConfig
	Input  ChannelConfig
	Output ChannelConfig
	Trig   TrigConfig
	Meas   MeasConfig
	Dwell  DwellConfig
}

// Sample is one measured sweep point. Time carries phase in degrees or
// delay in seconds per Unit; a reading the instrument could not produce
// is NaN.
type Sample struct {
	Freq   float64
	MagIn  float64
	MagOut float64
	Gain   float64
	GainDB float64
	Time   float64
	Unit   TimeMeasure
}

// Session state and validation errors.
var (
	ErrNotInitialized     = errors.New("sweep: not initialized")
	ErrAlreadyInitialized = errors.New("sweep: already initialized")
	ErrComplete           = errors.New("sweep: complete")
	ErrInvalidFrequency   = errors.New("sweep: invalid frequency range")
	ErrInvalidStimulus    = errors.New("sweep: invalid stimulus")
	ErrInvalidTrigger     = errors.New("sweep: invalid trigger")
)

// Generator is the slice of the signal generator the session drives.
type Generator interface {
	SetChannel(ch scpi.Channel, freq, vpp, voffs, phase float64) error
	SetFrequency(ch scpi.Channel, freq float64) error
	SetOutput(ch scpi.Channel, on bool) error
	Close() error
}

// Oscilloscope is the slice of the oscilloscope the session drives.
type Oscilloscope interface {
	autorange.Scaler
	SetChannelEnable(ch scpi.Channel, on bool) error
	SetAtten(ch scpi.Channel, atten float64) error
	SetVoltsExact(ch scpi.Channel, vdiv, offset float64) error
	SetCoupling(ch scpi.Channel, coup scpi.Coupling) error
	SetBWL(ch scpi.Channel, on bool) error
	SetTriggerMode(mode scpi.TriggerMode) error
	SetEdgeTrigger(ch scpi.Channel, edge scpi.EdgeType, voltage float64, coup scpi.Coupling, holdoff bool, tHoldoff float64) error
	SetTimebase(tcapture, delay float64) (float64, error)
	MeasureDelay(ref, meas scpi.Channel, kind scpi.DelayKind) float64
	Close() error
}

// Session is a frequency response measurement over one generator and
// one oscilloscope. It is not safe for concurrent use. The caller owns
// the instrument connections until Init succeeds; Close releases them.
type Session struct {
	cfg    Config
	gen    Generator
	scope  Oscilloscope
	logger zerolog.Logger

	// sleep is replaceable so tests do not wait out dwell delays
	sleep func(time.Duration)

	initialized bool
	completed   bool
	f           float64

	stimCh     scpi.Channel
	inCh       scpi.Channel
	outCh      scpi.Channel
	trigCh     scpi.Channel
	measKind   scpi.MeasKind
	measFactor float64
	delayKind  scpi.DelayKind

	scaleIn  scpi.ScaleValues
	scaleOut scpi.ScaleValues

	results []Sample
}

// New builds an uninitialized session over already-attached instruments.
func New(gen Generator, scope Oscilloscope, cfg Config, logger zerolog.Logger) *Session {
	return &Session{
		cfg:    cfg,
		gen:    gen,
		scope:  scope,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// oscChannel maps a configured channel number to an oscilloscope
// channel, falling back to def when out of range.
func oscChannel(n int, def scpi.Channel) scpi.Channel {
	ch := scpi.Channel(n)
	if !ch.Valid() {
		return def
	}
	return ch
}

// Init validates the configuration, programs both instruments for the
// sweep, reads the initial vertical scales, and discards one warm-up
// measurement at the start frequency. The warm-up reading is often
// wrong on the instrument side; throwing it away keeps the first
// recorded point honest.
func (s *Session) Init() error {
	if s.initialized {
		return ErrAlreadyInitialized
	}

	// all validation happens before any instrument I/O
	fr := s.cfg.Freq
	if math.IsNaN(fr.Start) || math.IsNaN(fr.Stop) || fr.Start <= 0.0 || fr.Stop <= fr.Start {
		return ErrInvalidFrequency
	}
	st := s.cfg.Stim
	if math.IsNaN(st.Amplitude) || math.IsNaN(st.Offset) || st.Amplitude <= 0.0 {
		return ErrInvalidStimulus
	}
	if math.IsNaN(s.cfg.Trig.Level) {
		return ErrInvalidTrigger
	}

	s.stimCh = scpi.CH1
	if st.Channel == 2 {
		s.stimCh = scpi.CH2
	}

	// stimulus amplitude is always commanded in Vpp
	vstim := math.Abs(st.Amplitude)
	if st.Kind == VoltPK {
		vstim = 2.0 * vstim
	}

	if err := s.gen.SetChannel(s.stimCh, fr.Start, vstim, st.Offset, 0.0); err != nil {
		return err
	}
	if err := s.gen.SetOutput(s.stimCh, true); err != nil {
		return err
	}

	s.inCh = oscChannel(s.cfg.Input.Channel, scpi.CH1)
	s.outCh = oscChannel(s.cfg.Output.Channel, scpi.CH2)
	s.trigCh = oscChannel(s.cfg.Trig.Channel, scpi.CH2)

	for _, c := range []struct {
		ch  scpi.Channel
		cfg ChannelConfig
	}{
		{s.inCh, s.cfg.Input},
		{s.outCh, s.cfg.Output},
	} {
		if err := s.scope.SetChannelEnable(c.ch, true); err != nil {
			return err
		}
		atten := 1.0
		if c.cfg.Atten == 10.0 {
			atten = 10.0
		}
		if err := s.scope.SetAtten(c.ch, atten); err != nil {
			return err
		}
		if err := s.scope.SetVoltsExact(c.ch, 1.0, 0.0); err != nil {
			return err
		}
		if err := s.scope.SetCoupling(c.ch, c.cfg.Coupling); err != nil {
			return err
		}
		if err := s.scope.SetBWL(c.ch, c.cfg.BWL); err != nil {
			return err
		}
	}

	// the delay measurement tracks the trigger edge
	s.delayKind = scpi.DelayFRR
	if s.cfg.Trig.Edge == scpi.EdgeFalling {
		s.delayKind = scpi.DelayFFF
	}

	if err := s.scope.SetTriggerMode(scpi.TrigAuto); err != nil {
		return err
	}
	if err := s.scope.SetEdgeTrigger(s.trigCh, s.cfg.Trig.Edge, s.cfg.Trig.Level, s.cfg.Trig.Coupling, false, 0.0); err != nil {
		return err
	}

	// AMPL is peak-to-peak with noise rejection; Vpk halves it
	s.measKind = scpi.MeasAMPL
	s.measFactor = 1.0
	if s.cfg.Meas.Volt == VoltPK {
		s.measFactor = 0.5
	}

	var err error
	if s.scaleOut, err = s.scope.ReadScale(s.outCh); err != nil {
		return err
	}
	if s.scaleIn, err = s.scope.ReadScale(s.inCh); err != nil {
		return err
	}

	s.initialized = true
	s.completed = false
	s.f = fr.Start

	// the first measurement after setup is unreliable; take and
	// discard one at the start frequency
	// TODO: find the root cause of the bad initial reading and drop
	// this warm-up pass
	if _, err := s.measureFreq(s.f); err != nil {
		s.initialized = false
		return err
	}

	return nil
}

// Close releases both instrument connections and resets the session so
// Init may be called again. Results are discarded.
func (s *Session) Close() error {
	var err error
	if s.scope != nil {
		err = multierr.Append(err, s.scope.Close())
	}
	if s.gen != nil {
		err = multierr.Append(err, s.gen.Close())
	}
	s.results = nil
	s.initialized = false
	s.completed = false
	return err
}

// Completed reports whether the sweep has passed its stop frequency.
func (s *Session) Completed() bool {
	return s.completed
}

// Results returns a copy of the samples measured so far, in sweep order.
func (s *Session) Results() []Sample {
	out := make([]Sample, len(s.results))
	copy(out, s.results)
	return out
}

// Step measures the current sweep point, records it, and advances the
// frequency. After the last point it returns ErrComplete.
func (s *Session) Step() (Sample, error) {
	if !s.initialized {
		return Sample{}, ErrNotInitialized
	}
	if s.completed {
		return Sample{}, ErrComplete
	}

	sample, err := s.measureFreq(s.f)
	if err != nil {
		return Sample{}, err
	}
	s.results = append(s.results, sample)

	fr := s.cfg.Freq
	switch fr.Kind {
	case SweepLog:
		s.f *= math.Exp(math.Ln10 / float64(fr.Points))
		if s.f > freqFudge*fr.Stop {
			s.completed = true
		}
	case SweepLinear:
		s.f += (fr.Stop - fr.Start) / float64(fr.Points-1)
		if s.f > freqFudge*fr.Stop {
			s.completed = true
		}
	default:
		// unknown sweep kind: the point just measured is the whole sweep
		s.completed = true
	}

	return sample, nil
}

// Sweep restarts from the start frequency and measures every point.
func (s *Session) Sweep() error {
	if !s.initialized {
		return ErrNotInitialized
	}

	s.completed = false
	s.f = s.cfg.Freq.Start

	for !s.completed {
		if _, err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// measureFreq measures one point: retime the capture window, move the
// stimulus, wait for the circuit to settle, converge both vertical
// scales, then read magnitudes and the phase or delay.
func (s *Session) measureFreq(f float64) (Sample, error) {
	tideal := measCycles / f
	tactual, err := s.scope.SetTimebase(tideal, math.NaN())
	if err != nil {
		return Sample{}, err
	}

	if err := s.gen.SetFrequency(s.stimCh, f); err != nil {
		return Sample{}, err
	}

	dwellFor := s.cfg.Dwell.MinDwell
	if !math.IsNaN(tactual) {
		if d := time.Duration(s.cfg.Dwell.StableScreens * tactual * float64(time.Second)); d > dwellFor {
			dwellFor = d
		}
	}
	s.sleep(dwellFor)

	ctrl := &autorange.Controller{Scope: s.scope, Kind: s.measKind}
	var hunter autorange.Hunter
	var magIn, magOut, timeMeas float64

	for {
		in, adjIn, err := ctrl.Adjust(s.inCh, &s.scaleIn)
		if err != nil {
			return Sample{}, err
		}
		out, adjOut, err := ctrl.Adjust(s.outCh, &s.scaleOut)
		if err != nil {
			return Sample{}, err
		}
		magIn = s.measFactor * in
		magOut = s.measFactor * out

		hunter.Observe(adjIn, adjOut)

		if (adjIn == 0 && adjOut == 0) || hunter.Exhausted() {
			if s.cfg.Meas.Time == TimeDelay {
				timeMeas = s.scope.MeasureDelay(s.inCh, s.outCh, s.delayKind)
			} else {
				timeMeas = s.scope.MeasureDelay(s.inCh, s.outCh, scpi.DelayPHA)
			}
			break
		}
	}

	gain := math.Abs(magOut / magIn)
	sample := Sample{
		Freq:   f,
		MagIn:  magIn,
		MagOut: magOut,
		Gain:   gain,
		GainDB: 20.0 * math.Log10(gain),
		Time:   timeMeas,
		Unit:   s.cfg.Meas.Time,
	}

	s.logger.Debug().
		Float64("freq", f).
		Float64("mag_in", magIn).
		Float64("mag_out", magOut).
		Float64("db", sample.GainDB).
		Msg("point measured")

	return sample, nil
}
