// Command fresp measures the frequency response of a circuit using a
// signal generator for stimulus and an oscilloscope for measurement,
// both driven over SCPI on TCP. Results are written as tab-separated
// rows to the console and optionally to a file.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/wildwood-code/FResp/internal/analysis"
	"github.com/wildwood-code/FResp/internal/config"
	"github.com/wildwood-code/FResp/internal/report"
	"github.com/wildwood-code/FResp/internal/scpi"
	"github.com/wildwood-code/FResp/internal/sweep"
)

// attach connects to both instruments and builds a measurement session
// over them. On a partial failure the connection already made is
// released.
func attach(settings config.Settings, cfg sweep.Config, logger zerolog.Logger) (*sweep.Session, error) {
	gen, err := scpi.AttachSigGen(settings.SigGenResource, logger)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to function generator: %w", err)
	}
	scope, err := scpi.AttachScope(settings.ScopeResource, logger)
	if err != nil {
		_ = gen.Close()
		return nil, fmt.Errorf("unable to connect to oscilloscope: %w", err)
	}
	return sweep.New(gen, scope, cfg, logger), nil
}

const version = "2.1.0"

func usage(prog string) {
	fmt.Printf("%s freq:fstart-fstop,log|lin(npts) stim:ch,vampl+voffset "+
		"in:ch,ac|dc,1x|10x,bwl|-bwl out:ch,ac|dc,1x|10x,bwl|-bwl "+
		"trig:ch,ac|dc,rising|falling,vtrig meas:Vpk|Vpp,phase|delay "+
		"dwell:fast|mid|slow file:filename,quiet|echo\n", prog)
	fmt.Printf("  fstart and fstop may use suffix notation (ex/ 1k-10k)\n")
	fmt.Printf("  log sweep npts is points/decade\n")
	fmt.Printf("  lin sweep npts is the points/sweep\n")
	fmt.Printf("  stim vampl+voffset are optional, ch defaults to oscope in or may be S1-S2\n")
	fmt.Printf("  in, out ch is 1-4 (ex/ ch1, c1, or 1 are equivalent)\n")
	fmt.Printf("  in, out ac|dc coupling is optional, defaults to ac\n")
	fmt.Printf("  in, out bwl|-bwl bandwidth limit is optional, defaults to bwl\n")
	fmt.Printf("  trig all parameters optional in any order; ch may be 1-4, in, or out\n")
	fmt.Printf("  meas specifies the measurement type (VPP|VPK and phase|delay)\n")
	fmt.Printf("  file|log|report specifies a destination file for the output\n")
	fmt.Printf("  quiet or echo specifies output to the standard output\n\n")
	fmt.Printf("  %s version %s\n\n", prog, version)
	fmt.Printf("  defaults:\n")
	fmt.Printf("  %s freq:1k-10k,log(10) stim:S1,1.0Vpp+0Vdc in:C1,ac,10x,bwl out:C2,ac,10x,bwl trig:in,0.0mV,ac,rising meas:Vpp dwell:mid\n", prog)
}

func newLogger() zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr}
	var w io.Writer = console
	if path := os.Getenv("FRESP_LOGFILE"); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = zerolog.MultiLevelWriter(console, f)
		}
	}
	level := zerolog.InfoLevel
	if os.Getenv("FRESP_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func main() {
	os.Exit(run(os.Args))
}

func run(argv []string) int {
	prog := "fresp"
	if len(argv) > 0 {
		prog = filepath.Base(argv[0])
	}
	if len(argv) < 2 {
		usage(prog)
		return 0
	}

	opts, err := parseArgs(argv[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", prog, err)
		return 1
	}

	logger := newLogger()

	settings, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: read settings: %v\n", prog, err)
		return 1
	}

	var reporters report.Multi
	if opts.Echo {
		reporters = append(reporters, report.NewWriter(os.Stdout))
	}
	if opts.Filename != "" {
		f, err := os.Create(opts.Filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: unable to open %q for write: %v\n", prog, opts.Filename, err)
			return 1
		}
		defer f.Close()
		reporters = append(reporters, report.NewWriter(f))
	}

	sess, err := attach(settings, opts.Sweep, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", prog, err)
		return 1
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn().Err(err).Msg("instrument release")
		}
	}()

	if err := sess.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", prog, err)
		return 1
	}

	if err := reporters.Header(opts.Sweep.Meas.Time); err != nil {
		logger.Warn().Err(err).Msg("report")
	}

	for {
		sample, err := sess.Step()
		if errors.Is(err, sweep.ErrComplete) {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", prog, err)
			return 1
		}
		if err := reporters.Sample(sample); err != nil {
			logger.Warn().Err(err).Msg("report")
		}
		if sess.Completed() {
			break
		}
	}

	sum := analysis.Summarize(sess.Results())
	logger.Info().
		Float64("peak_db", sum.PeakDB).
		Float64("peak_freq", sum.PeakFreq).
		Float64("min_db", sum.MinDB).
		Float64("corner_3db", sum.Corner3dB).
		Msg("sweep complete")

	return 0
}
