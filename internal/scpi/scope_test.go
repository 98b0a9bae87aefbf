package scpi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAtten(t *testing.T) {
	m := newMockInstrument(t, map[string]string{
		"C1:ATTN?": "C1:ATTN 10\n",
		"C2:ATTN?": "garbage\n",
	})
	s := NewScope(m.conn)

	attn, err := s.ReadAtten(CH1)
	require.NoError(t, err)
	assert.Equal(t, 10.0, attn)

	attn, err = s.ReadAtten(CH2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, attn)
}

func TestReadScale(t *testing.T) {
	m := newMockInstrument(t, map[string]string{
		"C2:VDIV?": "C2:VDIV 5.00E-01V\n",
		"C2:OFST?": "C2:OFST -1.00E-01V\n",
	})
	s := NewScope(m.conn)

	sv, err := s.ReadScale(CH2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sv.VDiv, 1e-12)
	assert.InDelta(t, -0.1, sv.Offset, 1e-12)
	assert.InDelta(t, 4.0, sv.PP, 1e-12)
	assert.InDelta(t, 2.1, sv.Max, 1e-12)
	assert.InDelta(t, -1.9, sv.Min, 1e-12)
}

func TestMeasure(t *testing.T) {
	m := newMockInstrument(t, map[string]string{
		"C1:PAVA? PKPK": "C1:PAVA PKPK,3.52E-01V\n",
		"C2:PAVA? PKPK": "C2:PAVA PKPK,****V\n",
	})
	s := NewScope(m.conn)

	assert.InDelta(t, 0.352, s.Measure(CH1, MeasPKPK), 1e-12)
	assert.True(t, math.IsNaN(s.Measure(CH2, MeasPKPK)))
}

func TestMeasureDelay(t *testing.T) {
	m := newMockInstrument(t, map[string]string{
		"C1-C2:MEAD? PHA": "C1-C2:MEAD PHA,-45.3degree\n",
		"C1-C2:MEAD? FRR": "C1-C2:MEAD FRR,****\n",
	})
	s := NewScope(m.conn)

	assert.InDelta(t, -45.3, s.MeasureDelay(CH1, CH2, DelayPHA), 1e-12)
	assert.True(t, math.IsNaN(s.MeasureDelay(CH1, CH2, DelayFRR)))
}

func TestSetTimebase(t *testing.T) {
	m := newMockInstrument(t, nil)
	s := NewScope(m.conn)

	// 4 ms capture needs >= 285.7 us/div, next settable is 500 us
	actual, err := s.SetTimebase(4.0e-3, 0.0)
	require.NoError(t, err)
	assert.InDelta(t, 7.0e-3, actual, 1e-12)
	assert.Equal(t, []string{"TDIV 500US", "TRDL 0"}, m.commands())
}

func TestSetTimebaseClampsToSlowest(t *testing.T) {
	m := newMockInstrument(t, nil)
	s := NewScope(m.conn)

	actual, err := s.SetTimebase(1.0e5, 0.0)
	require.NoError(t, err)
	assert.InDelta(t, 1400.0, actual, 1e-9)
	assert.Equal(t, []string{"TDIV 100S", "TRDL 0"}, m.commands())
}

func TestSetVolts(t *testing.T) {
	m := newMockInstrument(t, map[string]string{
		"C1:ATTN?": "C1:ATTN 10\n",
	})
	s := NewScope(m.conn)

	require.NoError(t, s.SetVolts(CH1, 0.2, 0.0))
	assert.Equal(t, []string{"C1:ATTN?", "C1:VDIV 200MV", "C1:OFST 0V"}, m.commands())

	// not a settable value
	assert.Error(t, s.SetVolts(CH1, 0.3, 0.0))
}

func TestSetVoltsExactRange(t *testing.T) {
	m := newMockInstrument(t, map[string]string{
		"C1:ATTN?": "C1:ATTN 10\n",
	})
	s := NewScope(m.conn)

	require.NoError(t, s.SetVoltsExact(CH1, 0.35, math.NaN()))
	assert.Equal(t, []string{"C1:ATTN?", "C1:VDIV 0.35"}, m.commands())

	// below the unscaled minimum at 10x
	assert.Error(t, s.SetVoltsExact(CH1, 1.0e-3, 0.0))
	assert.Error(t, s.SetVoltsExact(CH1, -1.0, 0.0))
}

func TestAdjustVolts(t *testing.T) {
	m := newMockInstrument(t, map[string]string{
		"C1:ATTN?": "C1:ATTN 10\n",
	})
	s := NewScope(m.conn)

	applied, err := s.AdjustVolts(CH1, ScaleValues{VDiv: 0.2}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, []string{"C1:ATTN?", "C1:VDIV 1V"}, m.commands())
}

func TestAdjustVoltsClampsAtTableEnds(t *testing.T) {
	m := newMockInstrument(t, map[string]string{
		"C1:ATTN?": "C1:ATTN 10\n",
	})
	s := NewScope(m.conn)

	// already at the top of the 10x table
	applied, err := s.AdjustVolts(CH1, ScaleValues{VDiv: 100.0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, []string{"C1:ATTN?"}, m.commands())

	// one step above the bottom, asked for three down
	applied, err = s.AdjustVolts(CH1, ScaleValues{VDiv: 0.01}, -3)
	require.NoError(t, err)
	assert.Equal(t, -1, applied)
	cmds := m.commands()
	assert.Equal(t, "C1:VDIV 5MV", cmds[len(cmds)-1])
}

func TestAdjustVoltsUnknownAtten(t *testing.T) {
	m := newMockInstrument(t, map[string]string{
		"C1:ATTN?": "C1:ATTN 100\n",
	})
	s := NewScope(m.conn)

	applied, err := s.AdjustVolts(CH1, ScaleValues{VDiv: 0.2}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
}

func TestSetEdgeTrigger(t *testing.T) {
	m := newMockInstrument(t, map[string]string{
		"C1:ATTN?": "C1:ATTN 10\n",
	})
	s := NewScope(m.conn)

	require.NoError(t, s.SetEdgeTrigger(CH1, EdgeRising, 1.0, CouplingAC, false, 0.0))
	assert.Equal(t, []string{
		"C1:ATTN?",
		"TRCP AC",
		"C1:TRLV 0.1V",
		"TRSE EDGE, SR, C1, HT, OFF, HV, 80NS",
		"C1:TRSL POS",
	}, m.commands())
}

func TestSetEdgeTriggerHoldoff(t *testing.T) {
	m := newMockInstrument(t, map[string]string{
		"C2:ATTN?": "C2:ATTN 1\n",
	})
	s := NewScope(m.conn)

	require.NoError(t, s.SetEdgeTrigger(CH2, EdgeFalling, -0.5, CouplingDC, true, 200e-9))
	assert.Equal(t, []string{
		"C2:ATTN?",
		"TRCP DC",
		"C2:TRLV -0.5V",
		"TRSE EDGE, SR, C2, HT, ON, HV, 200NS",
		"C2:TRSL NEG",
	}, m.commands())
}

func TestSetChannelExSequence(t *testing.T) {
	m := newMockInstrument(t, map[string]string{
		"C2:ATTN?": "C2:ATTN 10\n",
	})
	s := NewScope(m.conn)

	require.NoError(t, s.SetChannelEx(CH2, true, 1.0, 0.0, CouplingAC, true, 10.0, false))
	assert.Equal(t, []string{
		"C2:INVS OFF",
		"C2:ATTN 10",
		"C2:BWL ON",
		"C2:CPL A1M",
		"C2:OFST 0V",
		"C2:ATTN?",
		"C2:VDIV 1V",
		"C2:TRACE ON",
	}, m.commands())
}

func TestSetSkew(t *testing.T) {
	m := newMockInstrument(t, nil)
	s := NewScope(m.conn)

	require.NoError(t, s.SetSkew(CH1, 50e-9))
	require.NoError(t, s.SetSkew(CH1, math.NaN()))
	assert.Error(t, s.SetSkew(CH1, 200e-9))
	assert.Equal(t, []string{"C1:SKEW 5e-08"}, m.commands())
}
