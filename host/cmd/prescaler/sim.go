package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"prescaler/host/config"
	"prescaler/host/mcu"
	"prescaler/host/sim"
	"prescaler/specs"
)

var (
	simTimer    string
	simDuration time.Duration
)

func simCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim <frequency>",
		Short: "Run a scaled timer on the simulated MCU and measure its output",
		Long: `Program a scaled timer on an in-process simulated MCU, let it run and
report the measured output rate next to the programmed one.

The simulated firmware carries the built-in tables only.

Examples:
  prescaler sim 1kHz --timer counter1
  prescaler sim 50 --timer counter2 --duration 2s`,
		Args: cobra.ExactArgs(1),
		RunE: runSim,
	}

	cmd.Flags().StringVar(&simTimer, "timer", specs.NameCounter2, "Simulated timer")
	cmd.Flags().DurationVar(&simDuration, "duration", time.Second, "Simulated run time")

	return cmd
}

func runSim(cmd *cobra.Command, args []string) error {
	freq, err := config.ParseFrequency(args[0])
	if err != nil {
		return err
	}
	if simDuration < time.Millisecond {
		return fmt.Errorf("duration %v too short", simDuration)
	}

	board, err := sim.New(baseClock)
	if err != nil {
		return err
	}
	m := mcu.NewMCU()
	m.Attach(board)
	defer m.Close()

	if err := m.RetrieveDictionary(); err != nil {
		return err
	}
	if _, err := m.ConfigureTimer(0, simTimer); err != nil {
		return err
	}
	st, err := m.SetTimerFrequency(0, freq)
	if err != nil {
		return err
	}

	board.Advance(simDuration)
	edges, err := board.Edges(simTimer)
	if err != nil {
		return err
	}

	measured := float64(edges) / simDuration.Seconds()
	fmt.Fprintf(cmd.OutOrStdout(), "%s\nmeasured=%.1fHz over %v (%d edges)\n", st, measured, simDuration, edges)
	return nil
}
