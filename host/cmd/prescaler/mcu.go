package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"prescaler/host/config"
	"prescaler/host/logger"
	"prescaler/host/mcu"
	"prescaler/host/serial"
	"prescaler/host/sim"
	"prescaler/scaling"
)

var (
	mcuDevice string
	mcuBaud   int
	mcuSim    bool
	mcuOID    uint8
)

func mcuCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcu",
		Short: "Drive the scaled timers of a connected MCU",
		Long: `Talk to prescaler firmware over a serial link. Every subcommand
connects, reads the data dictionary and sends one request.

Examples:
  # Show what the firmware supports
  prescaler mcu dict --device /dev/ttyACM0

  # Run Timer1 at 1 kHz as oid 3
  prescaler mcu config counter2 --oid 3
  prescaler mcu frequency 1kHz --oid 3

  # Same session against the built-in simulator
  prescaler mcu frequency 1kHz --sim`,
	}

	cmd.PersistentFlags().StringVarP(&mcuDevice, "device", "d", "", "Serial device (default from config)")
	cmd.PersistentFlags().IntVar(&mcuBaud, "baud", 0, "Baud rate (default from config, ignored for USB)")
	cmd.PersistentFlags().BoolVar(&mcuSim, "sim", false, "Use the in-process simulated MCU")
	cmd.PersistentFlags().Uint8Var(&mcuOID, "oid", 0, "Scaled timer object id")

	cmd.AddCommand(mcuDictCmd())
	cmd.AddCommand(mcuConfigCmd())
	cmd.AddCommand(mcuFrequencyCmd())
	cmd.AddCommand(mcuTickCmd())
	cmd.AddCommand(mcuScaleCmd())
	cmd.AddCommand(mcuStopCmd())
	cmd.AddCommand(mcuQueryCmd())

	return cmd
}

// connect opens the session described by the flags and config. The
// simulated MCU has timer 0 bound to oid 0 so single commands work on it.
func connect() (*mcu.MCU, error) {
	m := mcu.NewMCU()

	if mcuSim {
		board, err := sim.New(baseClock)
		if err != nil {
			return nil, err
		}
		m.Attach(board)
	} else {
		scfg := serial.DefaultConfig(cfg.Serial.Device)
		scfg.Baud = cfg.Serial.Baud
		scfg.ReadTimeout = time.Duration(cfg.Serial.ReadTimeoutMs) * time.Millisecond
		if mcuDevice != "" {
			scfg.Device = mcuDevice
		}
		if mcuBaud != 0 {
			scfg.Baud = mcuBaud
		}
		logger.Info("connecting to %s", scfg.Device)
		if err := m.ConnectWithConfig(scfg); err != nil {
			return nil, err
		}
	}

	if err := m.RetrieveDictionary(); err != nil {
		m.Close()
		return nil, err
	}
	if mcuSim {
		if timers := m.Timers(); len(timers) > 0 {
			if _, err := m.ConfigureTimer(mcuOID, timers[0]); err != nil {
				m.Close()
				return nil, err
			}
		}
	}
	return m, nil
}

// withMCU runs fn on a fresh session and prints the timer state it returns.
func withMCU(fn func(m *mcu.MCU) (mcu.TimerState, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		m, err := connect()
		if err != nil {
			return err
		}
		defer m.Close()

		st, err := fn(m)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), st)
		return nil
	}
}

func mcuDictCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "dict",
		Short: "Print the firmware data dictionary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := connect()
			if err != nil {
				return err
			}
			defer m.Close()

			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintf(out, "%s\n", m.DictionaryRaw())
				return nil
			}

			d := m.Dictionary()
			fmt.Fprintf(out, "version: %s\nbuild: %s\n", d.Version, d.BuildVersions)
			if hz, err := m.ClockFreq(); err == nil {
				fmt.Fprintf(out, "clock: %dHz\n", hz)
			}
			fmt.Fprintf(out, "timers: %v\n", m.Timers())
			printIDs(out, "commands", d.Commands)
			printIDs(out, "responses", d.Responses)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the dictionary JSON as received")

	return cmd
}

func printIDs(out io.Writer, title string, ids map[string]int) {
	formats := make([]string, 0, len(ids))
	for f := range ids {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return ids[formats[i]] < ids[formats[j]] })

	fmt.Fprintf(out, "%s:\n", title)
	for _, f := range formats {
		fmt.Fprintf(out, "  %3d  %s\n", ids[f], f)
	}
}

func mcuConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config <timer>",
		Short: "Bind --oid to a hardware timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMCU(func(m *mcu.MCU) (mcu.TimerState, error) {
				return m.ConfigureTimer(mcuOID, args[0])
			})(cmd, args)
		},
	}
}

func mcuFrequencyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "frequency <frequency>",
		Short: "Let the firmware pick the scale for a frequency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			freq, err := config.ParseFrequency(args[0])
			if err != nil {
				return err
			}
			return withMCU(func(m *mcu.MCU) (mcu.TimerState, error) {
				return m.SetTimerFrequency(mcuOID, freq)
			})(cmd, args)
		},
	}
}

func mcuTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick <tick_us>",
		Short: "Select the prescaler closest to a tick duration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			us, err := parseUint(args[0], 16)
			if err != nil {
				return fmt.Errorf("tick_us: %w", err)
			}
			return withMCU(func(m *mcu.MCU) (mcu.TimerState, error) {
				return m.SetTimerTick(mcuOID, uint16(us))
			})(cmd, args)
		},
	}
}

func mcuScaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scale <prescale> <limit>",
		Short: "Load a raw prescaler exponent and counter limit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := parseUint(args[0], 8)
			if err != nil {
				return fmt.Errorf("prescale: %w", err)
			}
			limit, err := parseUint(args[1], 16)
			if err != nil {
				return fmt.Errorf("limit: %w", err)
			}
			scale := scaling.ClockScale{PrescaleExponent: uint8(exp), CounterLimit: uint16(limit)}
			return withMCU(func(m *mcu.MCU) (mcu.TimerState, error) {
				return m.SetTimerScale(mcuOID, scale)
			})(cmd, args)
		},
	}
}

func mcuStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the timer bound to --oid",
		Args:  cobra.NoArgs,
		RunE: withMCU(func(m *mcu.MCU) (mcu.TimerState, error) {
			return m.StopTimer(mcuOID)
		}),
	}
}

func mcuQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query",
		Short: "Report the state of the timer bound to --oid",
		Args:  cobra.NoArgs,
		RunE: withMCU(func(m *mcu.MCU) (mcu.TimerState, error) {
			return m.QueryTimer(mcuOID)
		}),
	}
}
