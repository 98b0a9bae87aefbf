// Package config persists the instrument resource addresses between
// runs and maps dwell profile names to their sweep parameters.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"

	"github.com/wildwood-code/FResp/internal/sweep"
)

// Factory-default instrument addresses, written back to the config file
// on first run so they can be edited in place.
const (
	DefaultScopeResource  = "192.168.0.197:5025"
	DefaultSigGenResource = "192.168.0.198:5555"
)

// Settings are the persisted instrument addresses.
type Settings struct {
	ScopeResource  string
	SigGenResource string
}

// Load reads fresp.yaml from dir (or the user config directory and the
// working directory when dir is empty). A missing file is created with
// the defaults; FRESP_* environment variables override either address.
func Load(dir string) (Settings, error) {
	v := viper.New()
	v.SetConfigName("fresp")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	} else {
		v.AddConfigPath("$HOME/.config/fresp")
		v.AddConfigPath(".")
	}

	v.SetDefault("oscope.resource", DefaultScopeResource)
	v.SetDefault("siggen.resource", DefaultSigGenResource)

	v.SetEnvPrefix("FRESP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, err
		}
		// first run: persist the defaults so they are editable
		_ = v.SafeWriteConfig()
	}

	return Settings{
		ScopeResource:  v.GetString("oscope.resource"),
		SigGenResource: v.GetString("siggen.resource"),
	}, nil
}

// Dwell maps a profile name to its dwell parameters. Unrecognized names
// (including "mid", "norm", "normal", and "default") use the mid
// profile.
func Dwell(name string) sweep.DwellConfig {
	switch strings.ToLower(name) {
	case "fast":
		return sweep.DwellFast
	case "slow":
		return sweep.DwellSlow
	default:
		return sweep.DwellMid
	}
}
