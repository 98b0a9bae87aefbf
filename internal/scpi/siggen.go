package scpi

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/wildwood-code/FResp/internal/transport"
)

// SigGen drives a Rigol DG800-class signal generator producing sinusoidal
// stimulus. Channel parameters passed as NaN mean "leave unchanged".
type SigGen struct {
	conn   *transport.Conn
	Logger zerolog.Logger
}

// AttachSigGen dials the generator at resource and applies the default
// setup: both channels sine, 1 kHz, 1 Vpp, 0 V offset, CH1 at 0 and CH2
// at 90 degrees, outputs off.
func AttachSigGen(resource string, logger zerolog.Logger) (*SigGen, error) {
	conn, err := transport.Dial(resource)
	if err != nil {
		return nil, fmt.Errorf("siggen: %w", err)
	}
	conn.SetLogger(logger)
	g := &SigGen{conn: conn, Logger: logger}
	if err := g.Setup(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return g, nil
}

// NewSigGen wraps an already-open connection without applying defaults.
func NewSigGen(conn *transport.Conn) *SigGen {
	return &SigGen{conn: conn, Logger: zerolog.Nop()}
}

// Setup places the generator in its default state.
func (g *SigGen) Setup() error {
	if err := g.conn.Write(":SOUR1:APPL:SIN 1000,1,0,0"); err != nil {
		return fmt.Errorf("siggen setup: %w", err)
	}
	if err := g.conn.Write(":SOUR2:APPL:SIN 1000,1,0,90"); err != nil {
		return fmt.Errorf("siggen setup: %w", err)
	}
	return nil
}

// Close releases the instrument connection.
func (g *SigGen) Close() error {
	return g.conn.Close()
}

// Connected reports whether the instrument connection is open.
func (g *SigGen) Connected() bool {
	return g.conn.Connected()
}

// chNum maps a channel to the generator's source index. The generator has
// two sources; anything else maps to source 1.
func chNum(ch Channel) string {
	if ch == CH2 {
		return "2"
	}
	return "1"
}

// NormalizePhase wraps a phase angle in degrees into [0, 360).
func NormalizePhase(phase float64) float64 {
	return phase - 360.0*math.Floor(phase/360.0)
}

// SetChannel applies frequency (Hz), amplitude (Vpp), offset (V), and
// phase (degrees) to one source. A NaN skips that setting; the first
// failed command stops the sequence.
func (g *SigGen) SetChannel(ch Channel, freq, vpp, voffs, phase float64) error {
	n := chNum(ch)
	if !math.IsNaN(freq) {
		if err := g.conn.Write(fmt.Sprintf(":SOUR%s:FREQ %g", n, freq)); err != nil {
			return err
		}
	}
	if !math.IsNaN(vpp) {
		if err := g.conn.Write(fmt.Sprintf(":SOUR%s:VOLT %g", n, vpp)); err != nil {
			return err
		}
	}
	if !math.IsNaN(voffs) {
		if err := g.conn.Write(fmt.Sprintf(":SOUR%s:VOLT:OFFS %g", n, voffs)); err != nil {
			return err
		}
	}
	if !math.IsNaN(phase) {
		if err := g.conn.Write(fmt.Sprintf(":SOUR%s:PHAS %g", n, NormalizePhase(phase))); err != nil {
			return err
		}
	}
	return nil
}

// SetFrequency sets the source frequency in Hz.
func (g *SigGen) SetFrequency(ch Channel, freq float64) error {
	return g.conn.Write(fmt.Sprintf(":SOUR%s:FREQ %g", chNum(ch), freq))
}

// SetAmplitude sets the source amplitude in Vpp.
func (g *SigGen) SetAmplitude(ch Channel, vpp float64) error {
	return g.conn.Write(fmt.Sprintf(":SOUR%s:VOLT %g", chNum(ch), vpp))
}

// SetOffset sets the source DC offset in volts.
func (g *SigGen) SetOffset(ch Channel, voffs float64) error {
	return g.conn.Write(fmt.Sprintf(":SOUR%s:VOLT:OFFS %g", chNum(ch), voffs))
}

// SetPhase sets the source phase in degrees, wrapped into [0, 360).
func (g *SigGen) SetPhase(ch Channel, phase float64) error {
	return g.conn.Write(fmt.Sprintf(":SOUR%s:PHAS %g", chNum(ch), NormalizePhase(phase)))
}

// Align phase-aligns the source with the other source.
func (g *SigGen) Align(ch Channel) error {
	return g.conn.Write(fmt.Sprintf(":SOUR%s:PHAS:SYNC", chNum(ch)))
}

// SetOutput switches the source output on or off.
func (g *SigGen) SetOutput(ch Channel, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return g.conn.Write(fmt.Sprintf(":OUTP%s %s", chNum(ch), state))
}
