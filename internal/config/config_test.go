package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildwood-code/FResp/internal/sweep"
)

func TestLoadWritesBackDefaults(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultScopeResource, s.ScopeResource)
	assert.Equal(t, DefaultSigGenResource, s.SigGenResource)

	// the defaults were persisted for editing
	_, err = os.Stat(filepath.Join(dir, "fresp.yaml"))
	assert.NoError(t, err)
}

func TestLoadExistingFile(t *testing.T) {
	dir := t.TempDir()
	cfg := "oscope:\n  resource: 10.0.0.5:5025\nsiggen:\n  resource: 10.0.0.6:5555\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fresp.yaml"), []byte(cfg), 0o644))

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:5025", s.ScopeResource)
	assert.Equal(t, "10.0.0.6:5555", s.SigGenResource)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := "oscope:\n  resource: 10.0.0.5:5025\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fresp.yaml"), []byte(cfg), 0o644))

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:5025", s.ScopeResource)
	assert.Equal(t, DefaultSigGenResource, s.SigGenResource)
}

func TestDwellProfiles(t *testing.T) {
	assert.Equal(t, sweep.DwellFast, Dwell("fast"))
	assert.Equal(t, sweep.DwellFast, Dwell("FAST"))
	assert.Equal(t, sweep.DwellSlow, Dwell("slow"))
	assert.Equal(t, sweep.DwellMid, Dwell("mid"))
	assert.Equal(t, sweep.DwellMid, Dwell("normal"))
	assert.Equal(t, sweep.DwellMid, Dwell("default"))
	assert.Equal(t, sweep.DwellMid, Dwell(""))

	assert.Equal(t, 250*time.Millisecond, Dwell("fast").MinDwell)
	assert.Equal(t, time.Second, Dwell("slow").MinDwell)
}
