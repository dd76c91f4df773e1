package app

import (
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/KevinKickass/et7000d/internal/device"
	"github.com/KevinKickass/et7000d/internal/modbus"
	"github.com/KevinKickass/et7000d/internal/ranges"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type probeOptions struct {
	unitID      uint8
	timeout     time.Duration
	checkRanges bool
	verbose     bool
	reads       []string
	writes      []string
}

func newProbeCmd() *cobra.Command {
	o := probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe <host[:port]>",
		Short: "Discover a module and print its channels and current values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zap.NewNop()
			if o.verbose {
				var err error
				if logger, err = zap.NewDevelopment(); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*o.timeout+5*time.Second)
			defer cancel()

			s := device.NewSession(args[0], modbus.NewClient(endpoint(args[0]), o.unitID, o.timeout), logger)
			defer s.Close()

			out := cmd.OutOrStdout()
			if err := s.Connect(ctx); err != nil {
				return err
			}
			for _, spec := range o.writes {
				addr, values, err := parseWrite(spec)
				if err != nil {
					return err
				}
				if !s.WriteModbus(ctx, addr, values) {
					return fmt.Errorf("write %s failed", spec)
				}
			}
			printSession(ctx, out, s)

			for _, spec := range o.reads {
				addr, n, err := parseRead(spec)
				if err != nil {
					return err
				}
				values, ok := s.ReadModbus(ctx, addr, n)
				printRegisters(out, addr, values, ok)
			}

			if o.checkRanges {
				printIssues(out, ranges.Default.Check())
			}
			return nil
		},
	}

	cmd.Flags().Uint8Var(&o.unitID, "unit", 1, "Modbus unit id")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 150*time.Millisecond, "per-request timeout")
	cmd.Flags().BoolVar(&o.checkRanges, "check-ranges", false, "also report inconsistencies in the range table")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "log transport activity")
	cmd.Flags().StringArrayVar(&o.reads, "read", nil, "read flat Modbus address `addr[:count]` after the channel table (repeatable)")
	cmd.Flags().StringArrayVar(&o.writes, "write", nil, "write `addr=value[,value...]` before reading (repeatable)")
	return cmd
}

// endpoint appends the default Modbus port when host has none.
func endpoint(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, "502")
}

func printSession(ctx context.Context, out io.Writer, s *device.Session) {
	topo := s.Snapshot()
	fmt.Fprintf(out, "module ET-%s (0x%04X)\n", topo.TypeName(), topo.TypeID)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tCH\tRANGE\tENABLED\tRAW\tVALUE\tUNITS")
	for _, g := range device.Groups {
		for k := 0; k < topo.Count(g); k++ {
			ch := topo.Channel(g, k)
			r := s.Read(ctx, g, k)

			code := "-"
			if g.Analog() {
				code = fmt.Sprintf("0x%02X", ch.RangeCode)
			}
			raw := "-"
			if r.OK {
				raw = fmt.Sprintf("0x%04X", r.Raw)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%s\t%s\t%s\n",
				g, k, code, ch.Enabled, raw, formatValue(r.Value), ch.Range.Units)
		}
	}
	w.Flush()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "?"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func printIssues(out io.Writer, issues []ranges.Issue) {
	if len(issues) == 0 {
		fmt.Fprintln(out, "range table: no issues")
		return
	}
	fmt.Fprintf(out, "range table: %d issue(s)\n", len(issues))
	for _, issue := range issues {
		fmt.Fprintf(out, "  %s\n", issue)
	}
}

// parseRead parses "addr" or "addr:count".
func parseRead(spec string) (addr, n int, err error) {
	a, c, hasCount := strings.Cut(spec, ":")
	if addr, err = strconv.Atoi(a); err != nil {
		return 0, 0, fmt.Errorf("invalid address %q", spec)
	}
	n = 1
	if hasCount {
		if n, err = strconv.Atoi(c); err != nil || n < 1 {
			return 0, 0, fmt.Errorf("invalid count %q", spec)
		}
	}
	return addr, n, nil
}

// parseWrite parses "addr=v1,v2,...". Values accept 0x prefixes.
func parseWrite(spec string) (int, []uint16, error) {
	a, list, ok := strings.Cut(spec, "=")
	if !ok || list == "" {
		return 0, nil, fmt.Errorf("invalid write %q, want addr=value", spec)
	}
	addr, err := strconv.Atoi(a)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid address %q", spec)
	}
	var values []uint16
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(field), 0, 16)
		if err != nil {
			return 0, nil, fmt.Errorf("invalid value %q in %q", field, spec)
		}
		values = append(values, uint16(v))
	}
	return addr, values, nil
}

func printRegisters(out io.Writer, addr int, values []uint16, ok bool) {
	if !ok {
		fmt.Fprintf(out, "%d: ?\n", addr)
		return
	}
	words := make([]string, len(values))
	for i, v := range values {
		words[i] = fmt.Sprintf("0x%04X", v)
	}
	fmt.Fprintf(out, "%d: %s\n", addr, strings.Join(words, " "))
}
