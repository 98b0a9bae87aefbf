package scpi

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/wildwood-code/FResp/internal/transport"
)

// Coupling selects AC or DC input coupling.
type Coupling int

const (
	CouplingDC Coupling = iota
	CouplingAC
)

// EdgeType selects the trigger edge.
type EdgeType int

const (
	EdgeRising EdgeType = iota
	EdgeFalling
)

// TriggerMode selects the acquisition trigger mode.
type TriggerMode int

const (
	TrigAuto TriggerMode = iota
	TrigNormal
	TrigSingle
	TrigStop
)

// ScaleValues is the vertical window of one channel as currently set:
// volts/div, offset, and the derived full-scale peak-to-peak span and
// its top and bottom voltages.
type ScaleValues struct {
	Max    float64
	Min    float64
	PP     float64
	Offset float64
	VDiv   float64
}

// Reply grammars. A reading whose reply does not match decodes to NaN.
var (
	reAtten   = regexp.MustCompile(`^C[1-4]:ATTN ([0-9.]+)\n$`)
	reVDiv    = regexp.MustCompile(`(?i)^C[1-4]:V[A-Z_]+ ([+\-.0-9E]+)(?:V|A)\n$`)
	reOffset  = regexp.MustCompile(`(?i)^C[1-4]:O[A-Z]+ ([+\-.0-9E]+)(?:V|A)\n$`)
	reMeasure = regexp.MustCompile(`^C[1-4]:PAVA [A-Z]+,([0-9.E+-]+)(V|A)\s*$`)
)

// Scope drives a Siglent SDS1000X-E-class oscilloscope.
type Scope struct {
	conn   *transport.Conn
	Logger zerolog.Logger
}

// AttachScope dials the oscilloscope at resource and applies the default
// instrument state.
func AttachScope(resource string, logger zerolog.Logger) (*Scope, error) {
	conn, err := transport.Dial(resource)
	if err != nil {
		return nil, fmt.Errorf("scope: %w", err)
	}
	conn.SetLogger(logger)
	s := &Scope{conn: conn, Logger: logger}
	if err := s.Setup(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// NewScope wraps an already-open connection without applying defaults.
func NewScope(conn *transport.Conn) *Scope {
	return &Scope{conn: conn, Logger: zerolog.Nop()}
}

// Setup places the oscilloscope in a known default state: sampling
// acquisition, overlays off, measurements cleared, 1 ms/div, all four
// channels at 1 V/div with 10x probes, edge trigger on C1 rising at 0 V.
func (s *Scope) Setup() error {
	setup := []string{
		"COMM_HEADER SHORT",
		"ACQUIRE_WAY SAMPLING",
		"MEMORY_SIZE 14M",
		"SINXX_SAMPLE ON",
		"XY_DISPLAY OFF",
		"DTJN OFF",
		"PESU OFF",
		"MENU OFF",
		"CRMS OFF",
		"HSMD OFF",
		"DCST OFF",
		"DI:SWITCH OFF",
		"MATH:TRACE OFF",
		"MEASURE_CLEAR",
		"REF_CLOSE",
	}
	for _, cmd := range setup {
		if err := s.conn.Write(cmd); err != nil {
			return fmt.Errorf("scope setup: %w", err)
		}
	}

	if err := s.SetTimebaseDiv(1.0e-3, 0.0); err != nil {
		return fmt.Errorf("scope setup: %w", err)
	}

	for ch := CH1; ch <= CH4; ch++ {
		if err := s.SetChannelEx(ch, false, 1.0, 0.0, CouplingDC, false, 10.0, false); err != nil {
			return fmt.Errorf("scope setup %s: %w", ch, err)
		}
		if err := s.SetUnit(ch); err != nil {
			return fmt.Errorf("scope setup %s: %w", ch, err)
		}
		if err := s.SetSkew(ch, 0.0); err != nil {
			return fmt.Errorf("scope setup %s: %w", ch, err)
		}
	}

	if err := s.SetEdgeTrigger(CH1, EdgeRising, 0.0, CouplingDC, false, 0.0); err != nil {
		return fmt.Errorf("scope setup: %w", err)
	}
	return s.SetTriggerMode(TrigAuto)
}

// Close releases the instrument connection.
func (s *Scope) Close() error {
	return s.conn.Close()
}

// Connected reports whether the instrument connection is open.
func (s *Scope) Connected() bool {
	return s.conn.Connected()
}

// SetTriggerMode sets the acquisition trigger mode.
func (s *Scope) SetTriggerMode(mode TriggerMode) error {
	tok := "AUTO"
	switch mode {
	case TrigStop:
		tok = "STOP"
	case TrigNormal:
		tok = "NORM"
	case TrigSingle:
		tok = "SINGLE"
	}
	return s.conn.Write("TRMD " + tok)
}

// SetEdgeTrigger configures an edge trigger on the given channel. The
// level is given in probe-side volts; it is divided by the channel's
// probe attenuation before being sent, since the trigger level command
// takes the unscaled value. With holdoff false the holdoff time is
// ignored and the instrument minimum of 80 ns is written.
func (s *Scope) SetEdgeTrigger(ch Channel, edge EdgeType, voltage float64, coup Coupling, holdoff bool, tHoldoff float64) error {
	attn, err := s.ReadAtten(ch)
	if err != nil {
		return fmt.Errorf("edge trigger: %w", err)
	}
	if attn == 0 {
		return fmt.Errorf("edge trigger: unreadable attenuation on %s", ch)
	}

	coupTok := "AC"
	if coup == CouplingDC {
		coupTok = "DC"
	}
	edgeTok := "POS"
	if edge == EdgeFalling {
		edgeTok = "NEG"
	}
	holdTok, holdVal := "OFF", "80NS"
	if holdoff {
		holdTok = "ON"
		holdVal = fmt.Sprintf("%gNS", tHoldoff*1.0e9)
	}

	if err := s.conn.Write("TRCP " + coupTok); err != nil {
		return err
	}
	if err := s.conn.Write(fmt.Sprintf("%s:TRLV %gV", ch, voltage/attn)); err != nil {
		return err
	}
	if err := s.conn.Write(fmt.Sprintf("TRSE EDGE, SR, %s, HT, %s, HV, %s", ch, holdTok, holdVal)); err != nil {
		return err
	}
	return s.conn.Write(fmt.Sprintf("%s:TRSL %s", ch, edgeTok))
}

// SetChannelEnable switches the channel trace on or off.
func (s *Scope) SetChannelEnable(ch Channel, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return s.conn.Write(fmt.Sprintf("%s:TRACE %s", ch, state))
}

// SetVolts sets the vertical scale to a table entry, selected by its
// volts/div value under the channel's current probe attenuation, then
// applies the offset. A NaN offset leaves the offset unchanged.
func (s *Scope) SetVolts(ch Channel, vdiv, offset float64) error {
	attn, err := s.ReadAtten(ch)
	if err != nil {
		return fmt.Errorf("set volts: %w", err)
	}
	table, ok := voltTableFor(attn)
	if !ok {
		return fmt.Errorf("set volts: unsupported attenuation %g on %s", attn, ch)
	}
	found := false
	for _, e := range table {
		if sameVolt(e.volts, vdiv) {
			if err := s.conn.Write(fmt.Sprintf("%s:VDIV %s", ch, e.token)); err != nil {
				return err
			}
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("set volts: %g V/div is not a settable scale at %gx", vdiv, attn)
	}
	if math.IsNaN(offset) {
		return nil
	}
	return s.SetOffset(ch, offset)
}

// SetVoltsExact sets the vertical scale to an arbitrary volts/div value,
// validated against the instrument's unscaled input range, then applies
// the offset. A NaN offset leaves the offset unchanged.
func (s *Scope) SetVoltsExact(ch Channel, vdiv, offset float64) error {
	attn, err := s.ReadAtten(ch)
	if err != nil {
		return fmt.Errorf("set volts: %w", err)
	}
	if attn == 0 {
		return fmt.Errorf("set volts: unreadable attenuation on %s", ch)
	}
	unscaled := vdiv / attn
	if !(vdiv > 0.0 && unscaled >= vUnscaledMin && unscaled <= vUnscaledMax) {
		return fmt.Errorf("set volts: %g V/div is outside the input range at %gx", vdiv, attn)
	}
	if err := s.conn.Write(fmt.Sprintf("%s:VDIV %g", ch, vdiv)); err != nil {
		return err
	}
	if math.IsNaN(offset) {
		return nil
	}
	return s.SetOffset(ch, offset)
}

// SetOffset sets the vertical offset in volts.
func (s *Scope) SetOffset(ch Channel, offset float64) error {
	if math.IsNaN(offset) {
		return fmt.Errorf("set offset: NaN offset on %s", ch)
	}
	return s.conn.Write(fmt.Sprintf("%s:OFST %gV", ch, offset))
}

// SetBWL switches the 20 MHz bandwidth limit on or off (off = full
// bandwidth).
func (s *Scope) SetBWL(ch Channel, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return s.conn.Write(fmt.Sprintf("%s:BWL %s", ch, state))
}

// SetInvert switches channel inversion on or off.
func (s *Scope) SetInvert(ch Channel, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return s.conn.Write(fmt.Sprintf("%s:INVS %s", ch, state))
}

// SetAtten sets the probe attenuation factor. Only 1x and 10x are
// supported.
func (s *Scope) SetAtten(ch Channel, atten float64) error {
	switch atten {
	case 1.0:
		return s.conn.Write(fmt.Sprintf("%s:ATTN 1", ch))
	case 10.0:
		return s.conn.Write(fmt.Sprintf("%s:ATTN 10", ch))
	default:
		return fmt.Errorf("set atten: unsupported attenuation %g", atten)
	}
}

// SetCoupling sets the input coupling (1 MOhm path).
func (s *Scope) SetCoupling(ch Channel, coup Coupling) error {
	tok := "D1M"
	if coup == CouplingAC {
		tok = "A1M"
	}
	return s.conn.Write(fmt.Sprintf("%s:CPL %s", ch, tok))
}

// SetUnit sets the vertical unit. Only volts is supported.
func (s *Scope) SetUnit(ch Channel) error {
	return s.conn.Write(fmt.Sprintf("%s:UNIT V", ch))
}

// SetSkew sets the channel timing skew in seconds, limited to +/-100 ns.
// A NaN skew is a no-op.
func (s *Scope) SetSkew(ch Channel, skew float64) error {
	if math.IsNaN(skew) {
		return nil
	}
	if skew < -100.0e-9 || skew > 100.0e-9 {
		return fmt.Errorf("set skew: %g s is out of range", skew)
	}
	return s.conn.Write(fmt.Sprintf("%s:SKEW %g", ch, skew))
}

// SetChannelEx applies a full channel configuration with one call,
// stopping at the first failed command. The attenuation is written
// before the scale so the scale lookup sees the new probe factor.
func (s *Scope) SetChannelEx(ch Channel, enabled bool, vdiv, offset float64, coup Coupling, bwl bool, atten float64, inv bool) error {
	if err := s.SetInvert(ch, inv); err != nil {
		return err
	}
	if err := s.SetAtten(ch, atten); err != nil {
		return err
	}
	if err := s.SetBWL(ch, bwl); err != nil {
		return err
	}
	if err := s.SetCoupling(ch, coup); err != nil {
		return err
	}
	if err := s.SetOffset(ch, offset); err != nil {
		return err
	}
	if err := s.SetVolts(ch, vdiv, math.NaN()); err != nil {
		return err
	}
	return s.SetChannelEnable(ch, enabled)
}

// ReadAtten reads the channel's probe attenuation factor. A reply that
// does not match the grammar reads as 0.
func (s *Scope) ReadAtten(ch Channel) (float64, error) {
	reply, err := s.conn.Query(fmt.Sprintf("%s:ATTN?", ch))
	if err != nil {
		return 0, err
	}
	m := reAtten.FindStringSubmatch(string(reply))
	if m == nil {
		return 0, nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// ReadScale reads the channel's volts/div and offset and derives the
// vertical window. A reply that does not match its grammar reads as 0;
// only a transport failure is an error.
func (s *Scope) ReadScale(ch Channel) (ScaleValues, error) {
	var sv ScaleValues

	reply, err := s.conn.Query(fmt.Sprintf("%s:VDIV?", ch))
	if err != nil {
		return sv, err
	}
	if m := reVDiv.FindStringSubmatch(string(reply)); m != nil {
		sv.VDiv = parseFloatOrZero(m[1])
	}

	reply, err = s.conn.Query(fmt.Sprintf("%s:OFST?", ch))
	if err != nil {
		return sv, err
	}
	if m := reOffset.FindStringSubmatch(string(reply)); m != nil {
		sv.Offset = parseFloatOrZero(m[1])
	}

	sv.PP = sv.VDiv * nVoltageDivisions
	sv.Max = sv.PP/2.0 - sv.Offset
	sv.Min = sv.PP/(-2.0) - sv.Offset
	return sv, nil
}

// AdjustVolts moves the channel's volts/div up or down by the requested
// number of table steps, limited to +/-3 (one decade) per call and
// clamped at the ends of the table. The offset is not touched. It
// returns the number of steps actually applied; the caller re-reads the
// scale to observe the result. An unsupported probe attenuation applies
// nothing.
func (s *Scope) AdjustVolts(ch Channel, cur ScaleValues, steps int) (int, error) {
	if steps == 0 {
		return 0, nil
	}
	if steps < -3 {
		steps = -3
	}
	if steps > 3 {
		steps = 3
	}

	attn, err := s.ReadAtten(ch)
	if err != nil {
		return 0, err
	}
	table, ok := voltTableFor(attn)
	if !ok {
		s.Logger.Debug().Str("channel", ch.String()).Float64("atten", attn).Msg("adjust skipped, unsupported attenuation")
		return 0, nil
	}

	idx := closestVoltIndex(table, cur.VDiv)
	idx, applied := clampStep(idx, steps, len(table))
	if applied == 0 {
		return 0, nil
	}
	if err := s.conn.Write(fmt.Sprintf("%s:VDIV %s", ch, table[idx].token)); err != nil {
		return 0, err
	}
	return applied, nil
}

// Measure reads one amplitude-class measurement on the channel. Any
// failure to obtain or decode a value reads as NaN.
func (s *Scope) Measure(ch Channel, kind MeasKind) float64 {
	reply, err := s.conn.Query(fmt.Sprintf("%s:PAVA? %s", ch, kind.Token()))
	if err != nil {
		return math.NaN()
	}
	m := reMeasure.FindStringSubmatch(string(reply))
	if m == nil {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// MeasureDelay reads one delay-class measurement between the reference
// and measurement channels. An "****" or otherwise undecodable reply
// reads as NaN.
func (s *Scope) MeasureDelay(ref, meas Channel, kind DelayKind) float64 {
	tok := kind.Token()
	reply, err := s.conn.Query(fmt.Sprintf("%s-%s:MEAD? %s", ref, meas, tok))
	if err != nil {
		return math.NaN()
	}
	re := regexp.MustCompile(`^C[1-4]-C[1-4]:MEAD ` + tok + `,([0-9.E+-]+)[a-zA-Z]*\s*$`)
	m := re.FindStringSubmatch(string(reply))
	if m == nil {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// SetTimeDelay sets the horizontal trigger delay in seconds. A NaN delay
// is a no-op.
func (s *Scope) SetTimeDelay(delay float64) error {
	if math.IsNaN(delay) {
		return nil
	}
	return s.conn.Write(fmt.Sprintf("TRDL %g", delay))
}

// SetTimebase selects the smallest settable timebase whose full-screen
// capture time is at least tcapture, sets it along with the horizontal
// delay, and returns the actual capture time. On failure it returns NaN
// and the error.
func (s *Scope) SetTimebase(tcapture, delay float64) (float64, error) {
	tdiv := tcapture / nTimeDivisions

	pick := timeTable[len(timeTable)-1]
	for _, e := range timeTable[:len(timeTable)-1] {
		if tdiv <= e.sec {
			pick = e
			break
		}
	}

	if err := s.conn.Write("TDIV " + pick.token); err != nil {
		return math.NaN(), err
	}
	if err := s.SetTimeDelay(delay); err != nil {
		return math.NaN(), err
	}
	return pick.sec * nTimeDivisions, nil
}

// SetTimebaseDiv sets the timebase to an exact table value (seconds per
// division) along with the horizontal delay.
func (s *Scope) SetTimebaseDiv(tdiv, delay float64) error {
	for _, e := range timeTable {
		if sameVolt(e.sec, tdiv) {
			if err := s.conn.Write("TDIV " + e.token); err != nil {
				return err
			}
			return s.SetTimeDelay(delay)
		}
	}
	return fmt.Errorf("set timebase: %g s/div is not a settable timebase", tdiv)
}

// sameVolt compares two settable scale values with a relative tolerance
// loose enough for decimal constants that round-trip through text.
func sameVolt(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
