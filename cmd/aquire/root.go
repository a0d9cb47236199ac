package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/jamesainslie/aquire/pkg/aquire/config"
	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "aquire",
		Short: "Inspect and control adaptive visual tuning",
		Long: `aquire resolves how much visual polish (blur, shadows, animation) the
current machine should render, from its hardware tier, your preference and
live power and thermal signals.

When aquired is running, commands talk to it; otherwise they work on the
preference store directly.

Examples:
  aquire status                     # Current tier, signals and tuning
  aquire prefs set perfPreference cinematic
  aquire compute --tier low --low-power
  aquire watch --tui                # Interactive settings panel
  aquire daemon start               # Run aquired in the background`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/aquire/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "pretty", "output format: pretty, plain, json, yaml")
	rootCmd.PersistentFlags().Bool("no-daemon", false, "work on the store directly even if aquired is running")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output on stderr")

	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("no_daemon", rootCmd.PersistentFlags().Lookup("no-daemon"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// setup loads configuration and starts file logging before any command runs.
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		// config subcommands must still work with a broken file.
		if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
			printError("%v", err)
			cfg = config.Default()
			return nil
		}
		return err
	}

	logCfg := cfg.LoggingConfig()
	if getVerbose() {
		logCfg.ConsoleLevel = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	defer logging.Close() //nolint:errcheck // nothing to report at exit
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		return err
	}
	return nil
}

func getVerbose() bool { return viper.GetBool("verbose") }

func getQuiet() bool { return viper.GetBool("quiet") }

func noDaemon() bool { return viper.GetBool("no_daemon") }

// render formats r with the --output formatter.
func render(w io.Writer, r *output.Result) error {
	f, err := output.Get(viper.GetString("output"))
	if err != nil {
		return fmt.Errorf("%w (available: %v)", err, output.Available())
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...any) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...any) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
