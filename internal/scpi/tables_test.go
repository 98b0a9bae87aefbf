package scpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoltTablesStrictlyIncreasing(t *testing.T) {
	for _, table := range [][]voltEntry{voltTable1x, voltTable10x} {
		require.Len(t, table, 14)
		for i := 1; i < len(table); i++ {
			assert.Greater(t, table[i].volts, table[i-1].volts)
		}
	}
	// 10x is the 1x table one decade up
	for i := range voltTable1x {
		assert.InDelta(t, voltTable1x[i].volts*10, voltTable10x[i].volts, 1e-12)
	}
}

func TestTimeTableStrictlyIncreasing(t *testing.T) {
	require.Len(t, timeTable, 34)
	for i := 1; i < len(timeTable); i++ {
		assert.Greater(t, timeTable[i].sec, timeTable[i-1].sec)
	}
	assert.Equal(t, "1NS", timeTable[0].token)
	assert.Equal(t, "100S", timeTable[len(timeTable)-1].token)
}

func TestVoltTableFor(t *testing.T) {
	tbl, ok := voltTableFor(1.0)
	require.True(t, ok)
	assert.Equal(t, "500UV", tbl[0].token)

	tbl, ok = voltTableFor(10.0)
	require.True(t, ok)
	assert.Equal(t, "5MV", tbl[0].token)

	_, ok = voltTableFor(100.0)
	assert.False(t, ok)
	_, ok = voltTableFor(0.0)
	assert.False(t, ok)
}

func TestClosestVoltIndex(t *testing.T) {
	// exact hit
	assert.Equal(t, 10, closestVoltIndex(voltTable1x, 1.0))
	// nearest neighbor, not exact
	assert.Equal(t, 10, closestVoltIndex(voltTable1x, 0.9))
	assert.Equal(t, 0, closestVoltIndex(voltTable1x, 0.0001))
	assert.Equal(t, len(voltTable1x)-1, closestVoltIndex(voltTable1x, 50.0))
}

func TestClampStep(t *testing.T) {
	n := len(voltTable1x)

	// unclamped moves
	idx, applied := clampStep(5, 2, n)
	assert.Equal(t, 7, idx)
	assert.Equal(t, 2, applied)

	idx, applied = clampStep(5, -1, n)
	assert.Equal(t, 4, idx)
	assert.Equal(t, -1, applied)

	// +1 from the top of the table applies nothing
	idx, applied = clampStep(n-1, 1, n)
	assert.Equal(t, n-1, idx)
	assert.Equal(t, 0, applied)

	// -3 from index 2 clamps to 0 and reports -2
	idx, applied = clampStep(2, -3, n)
	assert.Equal(t, 0, idx)
	assert.Equal(t, -2, applied)

	// +3 from one below the top applies only +1
	idx, applied = clampStep(n-2, 3, n)
	assert.Equal(t, n-1, idx)
	assert.Equal(t, 1, applied)
}

func TestChannelString(t *testing.T) {
	assert.Equal(t, "C1", CH1.String())
	assert.Equal(t, "C2", CH2.String())
	assert.Equal(t, "C3", CH3.String())
	assert.Equal(t, "C4", CH4.String())
	assert.Equal(t, "C1", Channel(0).String())
	assert.True(t, CH4.Valid())
	assert.False(t, Channel(5).Valid())
}

func TestMeasTokens(t *testing.T) {
	assert.Equal(t, "PKPK", MeasPKPK.Token())
	assert.Equal(t, "AMPL", MeasAMPL.Token())
	assert.Equal(t, "NDUTY", MeasNDUTY.Token())
	assert.Equal(t, "PKPK", MeasKind(99).Token())

	assert.Equal(t, "PHA", DelayPHA.Token())
	assert.Equal(t, "SKEW", DelaySKEW.Token())
	assert.Equal(t, "PHA", DelayKind(99).Token())
}
