package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prescaler/host/config"
	"prescaler/host/logger"
	"prescaler/protocol"
	"prescaler/scaling"
)

var (
	// Global flags
	clockFlag   string
	configPath  string
	verboseFlag bool
	quietFlag   bool

	// Loaded by the root PersistentPreRunE.
	cfg       *config.Config
	baseClock uint32
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prescaler",
		Short: "Clock prescaler calculator and scaled timer host",
		Long: `prescaler finds prescaler and counter settings that make a timer or
baud generator produce a requested frequency, and drives the scaled timers
of a connected MCU.

The base clock comes from --clock, the config file, or defaults to 16MHz.`,
		Version:           protocol.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadSettings,
	}

	cmd.PersistentFlags().StringVar(&clockFlag, "clock", "", "Timer base clock, e.g. 16MHz (overrides config)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML or JSON)")
	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Print calculation traces and protocol debug output")
	cmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress informational messages")

	cmd.AddCommand(findCmd())
	cmd.AddCommand(recoverCmd())
	cmd.AddCommand(matchCmd())
	cmd.AddCommand(maxCmd())
	cmd.AddCommand(baudCmd())
	cmd.AddCommand(tablesCmd())
	cmd.AddCommand(portsCmd())
	cmd.AddCommand(simCmd())
	cmd.AddCommand(mcuCmd())

	return cmd
}

func loadSettings(_ *cobra.Command, _ []string) error {
	logger.Verbose = verboseFlag
	logger.Quiet = quietFlag

	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	if clockFlag != "" {
		cfg.BaseClock = clockFlag
	}

	hz, err := cfg.BaseClockHz()
	if err != nil {
		return err
	}
	baseClock = hz
	logger.Debug("base clock %s", config.FormatFrequency(hz))
	return nil
}

func newCalculator() *scaling.Calculator {
	return scaling.NewCalculator(baseClock, scaling.WithDebugWriter(logger.DebugLine))
}
