package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"klipper-layerspeed/pkg/config"
	"klipper-layerspeed/pkg/log"
	"klipper-layerspeed/pkg/metrics"
	"klipper-layerspeed/pkg/speedchange"
)

// instanceFlags configure the single instance used when no profile is given.
var instanceFlags = []string{
	"name", "layer", "layers", "print-speed", "fan-speed",
	"no-print-speed", "no-fan-speed", "no-annotate", "strip-fan-commands",
}

// applyEnv holds defaults for apply taken from the environment.
type applyEnv struct {
	Profile     string `env:"LAYERSPEED_PROFILE"`
	MetricsFile string `env:"LAYERSPEED_METRICS_FILE"`
}

type applyOptions struct {
	profile     string
	metricsFile string
	output      string
	inPlace     bool

	instance     speedchange.Config
	noPrintSpeed bool
	noFanSpeed   bool
	noAnnotate   bool
}

func newApplyCmd(a *app) *cobra.Command {
	o := &applyOptions{instance: speedchange.DefaultConfig()}
	cmd := &cobra.Command{
		Use:   "apply [input.gcode]",
		Short: "Inject speed and fan overrides into a GCode file",
		Long: `apply reads GCode from the given file, or stdin when no file or "-" is given,
and writes the result to --output, the input file (--in-place) or stdout.

Without --profile a single range is configured with flags. A profile is a
.cfg file with one [speed_change_by_layer NAME] section per range, or a
.yaml file with an "instances" list; ranges are applied in file order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			if err := o.run(a, cmd, args); err != nil {
				a.logger.WithError(err).Error("apply failed")
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.output, "output", "o", "", "output file (default stdout)")
	f.BoolVar(&o.inPlace, "in-place", false, "overwrite the input file")
	f.StringVar(&o.profile, "profile", "", "profile with [speed_change_by_layer NAME] sections (.cfg) or instances (.yaml)")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")

	f.StringVar(&o.instance.Name, "name", o.instance.Name, "instance name used in annotations and logs")
	f.IntVar(&o.instance.StartLayer, "layer", o.instance.StartLayer, "first affected layer, as numbered in the slicer preview")
	f.IntVar(&o.instance.LayerCount, "layers", o.instance.LayerCount, "number of affected layers")
	f.IntVar(&o.instance.PrintSpeedPercent, "print-speed", o.instance.PrintSpeedPercent, "print speed in percent of the sliced speed")
	f.IntVar(&o.instance.FanSpeedPercent, "fan-speed", o.instance.FanSpeedPercent, "part fan speed in percent of full power")
	f.BoolVar(&o.noPrintSpeed, "no-print-speed", false, "leave print speed unchanged")
	f.BoolVar(&o.noFanSpeed, "no-fan-speed", false, "leave fan speed unchanged")
	f.BoolVar(&o.noAnnotate, "no-annotate", false, "do not add explanatory comments")
	f.BoolVar(&o.instance.StripFanCommands, "strip-fan-commands", false, "drop the file's own fan commands inside the range")

	return cmd
}

func (o *applyOptions) run(a *app, cmd *cobra.Command, args []string) error {
	input := "-"
	if len(args) == 1 {
		input = args[0]
	}
	if o.inPlace {
		if input == "-" {
			return fmt.Errorf("--in-place needs an input file")
		}
		if o.output != "" {
			return fmt.Errorf("--in-place and --output are mutually exclusive")
		}
		o.output = input
	}

	configs, err := o.configs(cmd)
	if err != nil {
		return err
	}

	var m *metrics.RunMetrics
	opts := []speedchange.Option{speedchange.WithLogger(a.logger.WithPrefix("speedchange"))}
	if o.metricsFile != "" {
		m = metrics.NewRunMetrics()
		opts = append(opts, speedchange.WithMetrics(m, metrics.Labels{"run": a.runID}))
	}
	proc, err := speedchange.NewProcessor(configs, opts...)
	if err != nil {
		return err
	}

	in, err := openInput(cmd, input)
	if err != nil {
		return err
	}
	defer in.Close()

	var out io.Writer = cmd.OutOrStdout()
	var file *atomicFile
	if o.output != "" && o.output != "-" {
		if file, err = createAtomic(o.output); err != nil {
			return err
		}
		defer file.Abort()
		out = file
	}

	sum, err := proc.Run(in, out)
	if err != nil {
		return err
	}
	in.Close()
	if file != nil {
		if err := file.Commit(); err != nil {
			return err
		}
	}

	a.logger.WithFields(log.Fields{
		"input":     input,
		"output":    outputName(o.output),
		"instances": len(sum.Instances),
		"duration":  sum.Duration.String(),
	}).Info("gcode written")

	if m != nil {
		if err := writeMetrics(o.metricsFile, m); err != nil {
			return err
		}
	}
	return nil
}

// configs builds the instance chain from the profile or the flags. A
// profile from LAYERSPEED_PROFILE applies only when no instance flag is
// set.
func (o *applyOptions) configs(cmd *cobra.Command) ([]speedchange.Config, error) {
	var fromEnv applyEnv
	if err := env.Parse(&fromEnv); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if o.metricsFile == "" {
		o.metricsFile = fromEnv.MetricsFile
	}

	changed := ""
	for _, name := range instanceFlags {
		if cmd.Flags().Changed(name) {
			changed = name
			break
		}
	}

	profile := o.profile
	if profile == "" && changed == "" {
		profile = fromEnv.Profile
	}
	if profile != "" {
		if changed != "" {
			return nil, fmt.Errorf("--%s cannot be combined with --profile", changed)
		}
		return config.LoadProfile(profile)
	}

	cfg := o.instance
	cfg.ChangePrintSpeed = !o.noPrintSpeed
	cfg.ChangeFanSpeed = !o.noFanSpeed
	cfg.Annotate = !o.noAnnotate
	return []speedchange.Config{cfg}, nil
}

func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func outputName(path string) string {
	if path == "" || path == "-" {
		return "stdout"
	}
	return path
}

func writeMetrics(path string, m *metrics.RunMetrics) error {
	f, err := createAtomic(path)
	if err != nil {
		return err
	}
	defer f.Abort()
	if _, err := m.Registry().WriteTo(f); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return f.Commit()
}

// atomicFile writes to a temporary file next to the target and renames it
// into place on Commit, so a failed run never leaves a partial file.
type atomicFile struct {
	*os.File
	target string
	done   bool
}

func createAtomic(target string) (*atomicFile, error) {
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &atomicFile{File: f, target: target}, nil
}

func (f *atomicFile) Commit() error {
	if err := f.File.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod output: %w", err)
	}
	if err := os.Rename(f.Name(), f.target); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	f.done = true
	return nil
}

// Abort removes the temporary file unless Commit succeeded.
func (f *atomicFile) Abort() {
	if f.done {
		return
	}
	f.File.Close()
	os.Remove(f.Name())
}
