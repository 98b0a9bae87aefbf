// Package scpi implements the SCPI command surface of the two bench
// instruments: a Siglent SDS1000X-E-class oscilloscope and a Rigol
// DG800-class signal generator. Commands are encoded from static token
// tables and replies are decoded against fixed grammars; a reading that
// fails to decode is NaN, not an error.
package scpi

// Channel identifies an instrument channel. Both instruments number
// channels from 1.
type Channel int

const (
	CH1 Channel = 1
	CH2 Channel = 2
	CH3 Channel = 3
	CH4 Channel = 4
)

// String returns the oscilloscope channel designator ("C1".."C4").
// Out-of-range channels map to C1.
func (ch Channel) String() string {
	switch ch {
	case CH2:
		return "C2"
	case CH3:
		return "C3"
	case CH4:
		return "C4"
	default:
		return "C1"
	}
}

// Valid reports whether ch names a real channel.
func (ch Channel) Valid() bool {
	return ch >= CH1 && ch <= CH4
}

// Screen geometry of the SDS1000X-E display grid.
const (
	nVoltageDivisions = 8
	nTimeDivisions    = 14
)

// voltEntry pairs a volts/div value with its command token.
type voltEntry struct {
	volts float64
	token string
}

// voltTable1x and voltTable10x list the settable volts/div values at 1x
// and 10x probe attenuation. Both are strictly increasing; the 10x table
// is the 1x table shifted up one decade.
var voltTable1x = []voltEntry{
	{5.00e-04, "500UV"},
	{1.00e-03, "1MV"},
	{2.00e-03, "2MV"},
	{5.00e-03, "5MV"},
	{1.00e-02, "10MV"},
	{2.00e-02, "20MV"},
	{5.00e-02, "50MV"},
	{1.00e-01, "100MV"},
	{2.00e-01, "200MV"},
	{5.00e-01, "500MV"},
	{1.00e+00, "1V"},
	{2.00e+00, "2V"},
	{5.00e+00, "5V"},
	{1.00e+01, "10V"},
}

var voltTable10x = []voltEntry{
	{5.00e-03, "5MV"},
	{1.00e-02, "10MV"},
	{2.00e-02, "20MV"},
	{5.00e-02, "50MV"},
	{1.00e-01, "100MV"},
	{2.00e-01, "200MV"},
	{5.00e-01, "500MV"},
	{1.00e+00, "1V"},
	{2.00e+00, "2V"},
	{5.00e+00, "5V"},
	{1.00e+01, "10V"},
	{2.00e+01, "20V"},
	{5.00e+01, "50V"},
	{1.00e+02, "100V"},
}

// Unscaled (1x) input limits, used to validate exact volts/div values.
var (
	vUnscaledMin = voltTable1x[0].volts
	vUnscaledMax = voltTable1x[len(voltTable1x)-1].volts
)

// voltTableFor selects the volts/div table for the given probe
// attenuation. Only 1x and 10x probes are supported.
func voltTableFor(atten float64) ([]voltEntry, bool) {
	switch atten {
	case 1.0:
		return voltTable1x, true
	case 10.0:
		return voltTable10x, true
	default:
		return nil, false
	}
}

// closestVoltIndex returns the index of the table entry nearest to vdiv.
func closestVoltIndex(table []voltEntry, vdiv float64) int {
	best := 0
	bestDelta := abs(vdiv - table[0].volts)
	for i := 1; i < len(table); i++ {
		d := abs(vdiv - table[i].volts)
		if d < bestDelta {
			bestDelta = d
			best = i
		}
	}
	return best
}

// clampStep moves idx by step within [0, n), returning the new index and
// the number of steps actually taken after clamping at either end.
func clampStep(idx, step, n int) (newIdx, applied int) {
	applied = step
	newIdx = idx + step
	if newIdx < 0 {
		applied -= newIdx
		newIdx = 0
	}
	if newIdx > n-1 {
		applied -= newIdx - (n - 1)
		newIdx = n - 1
	}
	return newIdx, applied
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// timeEntry pairs a time/div value with its command token.
type timeEntry struct {
	sec   float64
	token string
}

// timeTable lists the settable time/div values, strictly increasing.
var timeTable = []timeEntry{
	{1.00e-09, "1NS"},
	{2.00e-09, "2NS"},
	{5.00e-09, "5NS"},
	{1.00e-08, "10NS"},
	{2.00e-08, "20NS"},
	{5.00e-08, "50NS"},
	{1.00e-07, "100NS"},
	{2.00e-07, "200NS"},
	{5.00e-07, "500NS"},
	{1.00e-06, "1US"},
	{2.00e-06, "2US"},
	{5.00e-06, "5US"},
	{1.00e-05, "10US"},
	{2.00e-05, "20US"},
	{5.00e-05, "50US"},
	{1.00e-04, "100US"},
	{2.00e-04, "200US"},
	{5.00e-04, "500US"},
	{1.00e-03, "1MS"},
	{2.00e-03, "2MS"},
	{5.00e-03, "5MS"},
	{1.00e-02, "10MS"},
	{2.00e-02, "20MS"},
	{5.00e-02, "50MS"},
	{1.00e-01, "100MS"},
	{2.00e-01, "200MS"},
	{5.00e-01, "500MS"},
	{1.00e+00, "1S"},
	{2.00e+00, "2S"},
	{5.00e+00, "5S"},
	{1.00e+01, "10S"},
	{2.00e+01, "20S"},
	{5.00e+01, "50S"},
	{1.00e+02, "100S"},
}

// MeasKind is a single-channel amplitude-class measurement parameter.
type MeasKind int

const (
	MeasPKPK MeasKind = iota
	MeasMAX
	MeasMIN
	MeasAMPL
	MeasTOP
	MeasBASE
	MeasCMEAN
	MeasMEAN
	MeasRMS
	MeasCRMS
	MeasOVSN
	MeasFPRE
	MeasOVSP
	MeasRPRE
	MeasPER
	MeasFREQ
	MeasPWID
	MeasNWID
	MeasRISE
	MeasFALL
	MeasWID
	MeasDUTY
	MeasNDUTY
)

var measTokens = map[MeasKind]string{
	MeasPKPK:  "PKPK",
	MeasMAX:   "MAX",
	MeasMIN:   "MIN",
	MeasAMPL:  "AMPL",
	MeasTOP:   "TOP",
	MeasBASE:  "BASE",
	MeasCMEAN: "CMEAN",
	MeasMEAN:  "MEAN",
	MeasRMS:   "RMS",
	MeasCRMS:  "CRMS",
	MeasOVSN:  "OVSN",
	MeasFPRE:  "FPRE",
	MeasOVSP:  "OVSP",
	MeasRPRE:  "RPRE",
	MeasPER:   "PER",
	MeasFREQ:  "FREQ",
	MeasPWID:  "PWID",
	MeasNWID:  "NWID",
	MeasRISE:  "RISE",
	MeasFALL:  "FALL",
	MeasWID:   "WID",
	MeasDUTY:  "DUTY",
	MeasNDUTY: "NDUTY",
}

// Token returns the PAVA parameter token for the measurement kind.
// Unknown kinds fall back to PKPK.
func (m MeasKind) Token() string {
	if tok, ok := measTokens[m]; ok {
		return tok
	}
	return "PKPK"
}

// DelayKind is a two-channel delay-class measurement parameter.
type DelayKind int

const (
	DelayPHA DelayKind = iota
	DelayFRR
	DelayFRF
	DelayFFR
	DelayFFF
	DelayLRR
	DelayLRF
	DelayLFR
	DelayLFF
	DelaySKEW
)

var delayTokens = map[DelayKind]string{
	DelayPHA:  "PHA",
	DelayFRR:  "FRR",
	DelayFRF:  "FRF",
	DelayFFR:  "FFR",
	DelayFFF:  "FFF",
	DelayLRR:  "LRR",
	DelayLRF:  "LRF",
	DelayLFR:  "LFR",
	DelayLFF:  "LFF",
	DelaySKEW: "SKEW",
}

// Token returns the MEAD parameter token for the delay kind. Unknown
// kinds fall back to PHA.
func (d DelayKind) Token() string {
	if tok, ok := delayTokens[d]; ok {
		return tok
	}
	return "PHA"
}
