package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"prescaler/host/config"
	"prescaler/scaling"
	"prescaler/specs"
)

var (
	tableName string
	allTables bool
	bitsFlag  uint8
)

func findCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <frequency>",
		Short: "Find the prescaler and counter limit for a frequency",
		Long: `Find the first prescaler in the table that can produce the frequency,
and the counter limit to load with it.

Examples:
  # 1 kHz interrupt from the 8-bit timer
  prescaler find 1kHz --table counter1

  # Compare every known table at 20 MHz
  prescaler find 440 --all --clock 20MHz`,
		Args: cobra.ExactArgs(1),
		RunE: runFind,
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", specs.NameCounter2, "Prescaler table")
	cmd.Flags().BoolVarP(&allTables, "all", "a", false, "Try every table")

	return cmd
}

func runFind(cmd *cobra.Command, args []string) error {
	freq, err := config.ParseFrequency(args[0])
	if err != nil {
		return err
	}

	names := []string{tableName}
	if allTables {
		names = cfg.TableNames()
	}

	calc := newCalculator()
	out := cmd.OutOrStdout()
	found := false
	for _, name := range names {
		table, err := cfg.Table(name)
		if err != nil {
			return err
		}
		scale, err := calc.FindScale(freq, table)
		if err != nil {
			if !allTables {
				return fmt.Errorf("%s: %w", name, err)
			}
			fmt.Fprintf(out, "%-10s %v\n", name, err)
			continue
		}
		found = true
		printScale(out, calc, name, scale, freq)
	}
	if !found {
		return fmt.Errorf("%d Hz is not representable in any table", freq)
	}
	return nil
}

func printScale(out io.Writer, calc *scaling.Calculator, name string, scale scaling.ClockScale, want uint32) {
	actual, _ := calc.RecoverFrequency(scale)
	fmt.Fprintf(out, "%-10s prescale=%d (/%d) limit=%d actual=%dHz error=%+.3f%%\n",
		name, scale.PrescaleExponent, scale.Divisor(), scale.CounterLimit, actual, percentError(actual, want))
}

func percentError(actual, want uint32) float64 {
	if want == 0 {
		return 0
	}
	return (float64(actual) - float64(want)) * 100 / float64(want)
}

func recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover <prescale> <limit>",
		Short: "Compute the frequency a prescaler exponent and counter limit produce",
		Long: `Compute the frequency produced by a prescaler exponent and counter limit.

Examples:
  # Timer0 with clk/64 counting to 249
  prescaler recover 6 249`,
		Args: cobra.ExactArgs(2),
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
			hz, err := newCalculator().RecoverFrequency(scale)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%dHz (%s)\n", hz, config.FormatFrequency(hz))
			return nil
		},
	}
}

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <tick_us>",
		Short: "Find the prescaler whose tick is closest to a duration",
		Long: `Find the prescaler whose clock period, in whole microseconds, is closest to
tick_us. Equal distances pick the larger prescaler.

Examples:
  prescaler match 4 --table counter2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			us, err := parseUint(args[0], 16)
			if err != nil {
				return fmt.Errorf("tick_us: %w", err)
			}
			table, err := cfg.Table(tableName)
			if err != nil {
				return err
			}
			calc := newCalculator()
			exp, err := calc.MatchTickDuration(uint16(us), table)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "prescale=%d (/%d) tick=%dus\n", exp, uint32(1)<<exp, calc.TickDuration(exp))
			return nil
		},
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", specs.NameCounter2, "Prescaler table")

	return cmd
}

func maxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "max [prescale]",
		Short: "Print the largest counter value",
		Long: `Print the largest value the counter can hold, from --bits or the
counter width of --table.

Examples:
  prescaler max --bits 12
  prescaler max --table counter1`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bound := scaling.ScaleBound{CounterBits: bitsFlag}
			if !cmd.Flags().Changed("bits") {
				table, err := cfg.Table(tableName)
				if err != nil {
					return err
				}
				bound.CounterBits = table.CounterBits
			}
			if len(args) == 1 {
				exp, err := parseUint(args[0], 8)
				if err != nil {
					return fmt.Errorf("prescale: %w", err)
				}
				bound.PrescaleExponent = uint8(exp)
			}
			v, err := scaling.MaxCounterValue(bound)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", specs.NameCounter2, "Prescaler table")
	cmd.Flags().Uint8Var(&bitsFlag, "bits", 16, "Counter width in bits")

	return cmd
}

func baudCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "baud <rate>...",
		Short: "Compute USART UBRR settings for baud rates",
		Long: `Compute the U2X bit and UBRR register value for each baud rate.

Examples:
  prescaler baud 9600 57600 115200
  prescaler baud 250000 --clock 20MHz`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			calc := newCalculator()
			out := cmd.OutOrStdout()
			var failed []string
			for _, arg := range args {
				rate, err := parseUint(arg, 32)
				if err != nil {
					return fmt.Errorf("baud %q: %w", arg, err)
				}
				s, err := specs.UartBaud(calc, uint32(rate))
				if err != nil {
					fmt.Fprintf(out, "%8d  %v\n", rate, err)
					failed = append(failed, arg)
					continue
				}
				u2x := 0
				if s.DoubleSpeed {
					u2x = 1
				}
				fmt.Fprintf(out, "%8d  U2X=%d UBRR=%-4d actual=%d error=%+.2f%%\n",
					rate, u2x, s.UBRR, s.Actual, s.ErrorPercent(uint32(rate)))
			}
			if len(failed) > 0 {
				return fmt.Errorf("no setting for %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}

func tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List prescaler tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, name := range cfg.TableNames() {
				table, err := cfg.Table(name)
				if err != nil {
					return err
				}
				divs := make([]string, len(table.PrescaleExponents))
				for i, e := range table.PrescaleExponents {
					divs[i] = "/" + strconv.FormatUint(1<<e, 10)
				}
				fmt.Fprintf(out, "%-10s %2d-bit  %s\n", name, table.CounterBits, strings.Join(divs, " "))
			}
			return nil
		},
	}
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		var ne *strconv.NumError
		if errors.As(err, &ne) {
			return 0, ne.Err
		}
		return 0, err
	}
	return v, nil
}
