package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wildwood-code/FResp/internal/scpi"
	"github.com/wildwood-code/FResp/internal/sweep"
)

// Trigger channel aliases resolved after all arguments are parsed.
const (
	trigChIn  = -1
	trigChOut = -2
)

// Options is the fully parsed command line.
type Options struct {
	Sweep    sweep.Config
	Filename string
	Echo     bool
}

const numericPos = `(\+?\d*\.?\d*(?:E(?:\+|-)?\d{1,3})?)(K|M)?`

// Argument group patterns. Each command-line argument is one group,
// e.g. "freq:1k-10k,log(10)" or "in:c1,ac,10x,bwl".
var (
	reOscopeCh = regexp.MustCompile(`(?i)^(IN?|O(?:UT)?)(?::|=)(?:C|CH)?([1-4])(?:,(AC|DC|1X|10X|-?BWL?))?(?:,(AC|DC|1X|10X|-?BWL?))?(?:,(AC|DC|1X|10X|-?BWL?))?$`)
	reStimSpec = regexp.MustCompile(`(?i)^S(?:TIM)?(?::|=)(.+)$`)
	reFreqSpec = regexp.MustCompile(`(?i)^F(?:REQ)?(?::|=)` + numericPos + `(?:HZ)?\-` + numericPos + `(?:HZ)?(?:\,(LOG|LIN)(?:\(|\[)([0-9]+)(?:\)|\]))?$`)
	reMeasSpec = regexp.MustCompile(`(?i)^M(?:EAS)?(?::|=)(.+)$`)
	reTrigSpec = regexp.MustCompile(`(?i)^T(?:RIG)?(?::|=)(.+)$`)
	reDwell    = regexp.MustCompile(`(?i)^D(?:WELL)?(?::|=)(SLOW|MID|FAST|NORM(?:AL)?|DEF(?:AULT)?)$`)
	reLogSpec  = regexp.MustCompile(`(?i)^(?:FILE|LOG|REP(?:ORT)?)(?::|=)(.+)$`)

	reComma = regexp.MustCompile(`^(.+?)(?:,(.*))?$`)
)

// toValue converts a number with an optional suffix multiplier and
// sign. Suffix case is significant: m is milli, M is mega, k or K is
// kilo.
func toValue(base, suffix, sign string) (float64, error) {
	v, err := strconv.ParseFloat(base, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", base)
	}
	if suffix != "" {
		switch suffix[0] {
		case 'k', 'K':
			v *= 1.0e3
		case 'm':
			v *= 1.0e-3
		case 'M':
			v *= 1.0e6
		}
	}
	if sign == "-" {
		v = -v
	}
	return v, nil
}

// splitComma peels the first comma-separated item off spec.
func splitComma(spec string) (item, rest string, ok bool) {
	m := reComma.FindStringSubmatch(spec)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// evalStimSpec parses the stimulus group payload, e.g.
// "S1,750mVpk+0.0Vdc". Amplitudes given as Vpk are converted to Vpp.
func evalStimSpec(spec string, stim *sweep.StimConfig) error {
	reChannel := regexp.MustCompile(`(?i)^(?:ST?|CH?)?([1-2])$`)
	reVoltage := regexp.MustCompile(`(?i)^\+?(\d*\.?\d*(?:E(?:\+|-)?\d{1,3})?)(m)?(VPP|VPK?)(?:(\+|-)(\d*\.?\d*(?:E(?:\+|-)?\d{1,3})?)(m)?(?:V|VDC)?)?$`)

	for spec != "" {
		arg, rest, ok := splitComma(spec)
		if !ok {
			return fmt.Errorf("bad stimulus spec %q", spec)
		}
		spec = rest

		if m := reChannel.FindStringSubmatch(arg); m != nil {
			stim.Channel = int(m[1][0] - '0')
			continue
		}
		m := reVoltage.FindStringSubmatch(arg)
		if m == nil {
			return fmt.Errorf("bad stimulus spec %q", arg)
		}
		v, err := toValue(m[1], m[2], "")
		if err != nil {
			return err
		}
		if !strings.EqualFold(m[3], "VPP") {
			v *= 2.0 // Vpk to Vpp
		}
		stim.Amplitude = v
		stim.Kind = sweep.VoltPP
		stim.Offset = 0.0
		if m[4] != "" {
			dc, err := toValue(m[5], m[6], m[4])
			if err != nil {
				return err
			}
			stim.Offset = dc
		}
	}
	return nil
}

// evalTrigSpec parses the trigger group payload, e.g. "CH1,0.0V,rising,ac".
// All parameters are optional and may appear in any order; the channel
// may be a number or the in/out alias.
func evalTrigSpec(spec string, trig *sweep.TrigConfig) error {
	reChannel := regexp.MustCompile(`(?i)^(?:(I)N|(O)UT|CH?([1-4]))$`)
	reCoup := regexp.MustCompile(`(?i)^(?:(A)C|(D)C)$`)
	reEdge := regexp.MustCompile(`(?i)^(?:(R)(?:ISE|ISING)?|(F)(?:ALL|ALLING)?)$`)
	reVoltage := regexp.MustCompile(`(?i)^((?:\+|-)?\d*\.?\d*(?:E(?:\+|-)?\d{1,3})?)(M)?V?$`)

	for spec != "" {
		arg, rest, ok := splitComma(spec)
		if !ok {
			return fmt.Errorf("bad trigger spec %q", spec)
		}
		spec = rest

		switch {
		case reChannel.MatchString(arg):
			m := reChannel.FindStringSubmatch(arg)
			switch {
			case m[1] != "":
				trig.Channel = trigChIn
			case m[2] != "":
				trig.Channel = trigChOut
			default:
				trig.Channel = int(m[3][0] - '0')
			}
		case reCoup.MatchString(arg):
			m := reCoup.FindStringSubmatch(arg)
			if m[1] != "" {
				trig.Coupling = scpi.CouplingAC
			} else {
				trig.Coupling = scpi.CouplingDC
			}
		case reEdge.MatchString(arg):
			m := reEdge.FindStringSubmatch(arg)
			if m[1] != "" {
				trig.Edge = scpi.EdgeRising
			} else {
				trig.Edge = scpi.EdgeFalling
			}
		case reVoltage.MatchString(arg):
			m := reVoltage.FindStringSubmatch(arg)
			v, err := toValue(m[1], m[2], "")
			if err != nil {
				return err
			}
			trig.Level = v
		default:
			return fmt.Errorf("bad trigger spec %q", arg)
		}
	}
	return nil
}

// evalMeasSpec parses the measurement group payload, e.g. "VPP,phase".
func evalMeasSpec(spec string, meas *sweep.MeasConfig) error {
	reVtype := regexp.MustCompile(`(?i)^(?:V?P(P)|V?P(K))$`)
	reTtype := regexp.MustCompile(`(?i)^(?:(P)HA(?:SE)?|(D)EL(?:AY)?)$`)

	for spec != "" {
		arg, rest, ok := splitComma(spec)
		if !ok {
			return fmt.Errorf("bad measurement spec %q", spec)
		}
		spec = rest

		switch {
		case reVtype.MatchString(arg):
			m := reVtype.FindStringSubmatch(arg)
			if m[1] != "" {
				meas.Volt = sweep.VoltPP
			} else {
				meas.Volt = sweep.VoltPK
			}
		case reTtype.MatchString(arg):
			m := reTtype.FindStringSubmatch(arg)
			if m[1] != "" {
				meas.Time = sweep.TimePhase
			} else {
				meas.Time = sweep.TimeDelay
			}
		default:
			return fmt.Errorf("bad measurement spec %q", arg)
		}
	}
	return nil
}

// evalLogSpec parses the file group payload, e.g. `"out.txt",echo`.
// The filename may be quoted; echo/quiet controls console output.
func evalLogSpec(spec string, filename *string, echo *bool) error {
	reQuoted := regexp.MustCompile(`^"([^"]+)"(?:,(.*))?$`)
	reNonQuoted := regexp.MustCompile(`^([^,"]+?)(?:,(.*))?$`)
	reEchoQuiet := regexp.MustCompile(`(?i)^(?:(echo)|(quiet))$`)

	for spec != "" {
		if m := reQuoted.FindStringSubmatch(spec); m != nil {
			*filename = m[1]
			spec = m[2]
			continue
		}
		m := reNonQuoted.FindStringSubmatch(spec)
		if m == nil {
			return fmt.Errorf("bad file spec %q", spec)
		}
		arg := m[1]
		spec = m[2]
		if em := reEchoQuiet.FindStringSubmatch(arg); em != nil {
			*echo = em[1] != ""
		} else {
			*filename = arg
		}
	}
	return nil
}

// parseArgs parses the grouped command-line arguments into a sweep
// configuration, applying the documented defaults for anything not
// specified.
func parseArgs(args []string) (Options, error) {
	opts := Options{
		Sweep: sweep.Config{
			Freq:   sweep.FreqConfig{Start: 1000.0, Stop: 10000.0, Kind: sweep.SweepLog, Points: 10},
			Stim:   sweep.StimConfig{Channel: 1, Kind: sweep.VoltPP, Amplitude: 1.0, Offset: 0.0},
			Input:  sweep.ChannelConfig{Channel: 1, Coupling: scpi.CouplingAC, Atten: 10.0, BWL: true},
			Output: sweep.ChannelConfig{Channel: 2, Coupling: scpi.CouplingAC, Atten: 10.0, BWL: true},
			Trig:   sweep.TrigConfig{Channel: trigChIn, Edge: scpi.EdgeRising, Coupling: scpi.CouplingAC, Level: 0.0},
			Meas:   sweep.MeasConfig{Volt: sweep.VoltPP, Time: sweep.TimePhase},
			Dwell:  sweep.DwellMid,
		},
		Echo: true,
	}

	for _, arg := range args {
		switch {
		case reOscopeCh.MatchString(arg):
			m := reOscopeCh.FindStringSubmatch(arg)
			isIn := strings.HasPrefix(strings.ToUpper(m[1]), "I")
			cc := &opts.Sweep.Output
			if isIn {
				cc = &opts.Sweep.Input
			}
			cc.Channel = int(m[2][0] - '0')
			for _, flag := range m[3:6] {
				if flag == "" {
					break
				}
				switch up := strings.ToUpper(flag); {
				case up == "AC":
					cc.Coupling = scpi.CouplingAC
				case up == "DC":
					cc.Coupling = scpi.CouplingDC
				case up == "1X":
					cc.Atten = 1.0
				case up == "10X":
					cc.Atten = 10.0
				default: // BWL or -BWL
					cc.BWL = !strings.HasPrefix(up, "-")
				}
			}

		case reStimSpec.MatchString(arg):
			m := reStimSpec.FindStringSubmatch(arg)
			if err := evalStimSpec(m[1], &opts.Sweep.Stim); err != nil {
				return opts, fmt.Errorf("argument %q: %w", arg, err)
			}

		case reFreqSpec.MatchString(arg):
			m := reFreqSpec.FindStringSubmatch(arg)
			start, err := toValue(m[1], m[2], "")
			if err != nil {
				return opts, fmt.Errorf("argument %q: %w", arg, err)
			}
			stop, err := toValue(m[3], m[4], "")
			if err != nil {
				return opts, fmt.Errorf("argument %q: %w", arg, err)
			}
			opts.Sweep.Freq.Start = start
			opts.Sweep.Freq.Stop = stop
			if m[5] != "" {
				if strings.EqualFold(m[5], "LOG") {
					opts.Sweep.Freq.Kind = sweep.SweepLog
				} else {
					opts.Sweep.Freq.Kind = sweep.SweepLinear
				}
				if m[6] != "" {
					n, err := strconv.Atoi(m[6])
					if err != nil {
						return opts, fmt.Errorf("argument %q: %w", arg, err)
					}
					opts.Sweep.Freq.Points = n
				}
			}

		case reMeasSpec.MatchString(arg):
			m := reMeasSpec.FindStringSubmatch(arg)
			if err := evalMeasSpec(m[1], &opts.Sweep.Meas); err != nil {
				return opts, fmt.Errorf("argument %q: %w", arg, err)
			}

		case reLogSpec.MatchString(arg):
			m := reLogSpec.FindStringSubmatch(arg)
			if err := evalLogSpec(m[1], &opts.Filename, &opts.Echo); err != nil {
				return opts, fmt.Errorf("argument %q: %w", arg, err)
			}

		case reDwell.MatchString(arg):
			m := reDwell.FindStringSubmatch(arg)
			switch strings.ToUpper(m[1]) {
			case "FAST":
				opts.Sweep.Dwell = sweep.DwellFast
			case "SLOW":
				opts.Sweep.Dwell = sweep.DwellSlow
			default:
				opts.Sweep.Dwell = sweep.DwellMid
			}

		case reTrigSpec.MatchString(arg):
			m := reTrigSpec.FindStringSubmatch(arg)
			if err := evalTrigSpec(m[1], &opts.Sweep.Trig); err != nil {
				return opts, fmt.Errorf("argument %q: %w", arg, err)
			}

		default:
			return opts, fmt.Errorf("syntax error with argument %q", arg)
		}
	}

	// resolve trigger channel aliases
	switch opts.Sweep.Trig.Channel {
	case trigChIn:
		opts.Sweep.Trig.Channel = opts.Sweep.Input.Channel
	case trigChOut:
		opts.Sweep.Trig.Channel = opts.Sweep.Output.Channel
	}

	// sanity checks
	if opts.Sweep.Input.Channel == opts.Sweep.Output.Channel {
		return opts, fmt.Errorf("input and output oscilloscope channels cannot be identical")
	}
	if opts.Sweep.Freq.Stop <= opts.Sweep.Freq.Start {
		return opts, fmt.Errorf("stop frequency must be greater than start frequency")
	}
	if opts.Sweep.Freq.Points < 2 {
		return opts, fmt.Errorf("there must be at least 2 sample points specified")
	}
	if opts.Sweep.Stim.Amplitude <= 0.0 {
		return opts, fmt.Errorf("the stimulus amplitude must be greater than 0.0V")
	}

	return opts, nil
}
