package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"klipper-layerspeed/pkg/log"
)

// app holds the state shared by every subcommand of one invocation.
type app struct {
	envFile   string
	logLevel  string
	logFormat string
	logFile   string

	logger *log.Logger
	runID  string
	logOut io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "layerspeed",
		Short: "Override print and fan speed for a range of layers in sliced GCode",
		Long: `layerspeed post-processes sliced GCode. For each configured range it injects
a print speed override (M220) and a part fan override (M106) right after the
first layer marker of the range and restores 100% speed and the previous fan
value once the range ends.

Environment variables (also read from --env-file):
  LAYERSPEED_LOG_LEVEL    debug, info, warn or error (default info)
  LAYERSPEED_LOG_FORMAT   text or json (default text)
  LAYERSPEED_LOG_CALLER   add file:line to log lines
  LAYERSPEED_PROFILE      default --profile for apply
  LAYERSPEED_METRICS_FILE default --metrics-file for apply
  NO_COLOR                disable coloured log prefixes`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", ".env", "environment file loaded before reading LAYERSPEED_* variables")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LAYERSPEED_LOG_LEVEL")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (text, json); overrides LAYERSPEED_LOG_FORMAT")
	flags.StringVar(&a.logFile, "log-file", "", "write logs to a size-rotated file instead of stderr")

	root.AddCommand(newApplyCmd(a), newInspectCmd(a), newVersionCmd())
	return root
}

// setup loads the env file and builds the run logger.
func (a *app) setup(cmd *cobra.Command) error {
	if err := loadEnvFile(a.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	opts, err := log.OptionsFromEnv()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		opts.Level = a.logLevel
	}
	if a.logFormat != "" {
		opts.Format = a.logFormat
	}

	var logger *log.Logger
	if a.logFile != "" {
		l, w, err := log.NewFileLogger("layerspeed", log.RotationConfig{Filename: a.logFile})
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logger = l
		a.logOut = w
	} else {
		logger = log.New("layerspeed")
		if w := cmd.ErrOrStderr(); w != os.Stderr {
			logger.SetWriter(w)
			logger.SetColorize(false)
		}
	}
	opts.Apply(logger)

	a.runID = xid.New().String()
	a.logger = logger.With("run", a.runID)
	log.SetDefaultLogger(a.logger)
	return nil
}

func (a *app) close() {
	if a.logOut != nil {
		a.logOut.Close()
		a.logOut = nil
	}
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing default file is ignored.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
