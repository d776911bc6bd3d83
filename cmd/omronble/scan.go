package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/omronble/internal/registry"
	"github.com/srg/omronble/internal/session"
)

func newScanCmd() *cobra.Command {
	var (
		duration  time.Duration
		format    string
		allowList []string
		blockList []string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for Omron health devices",
		Long: `Scan for Omron Bluetooth Low Energy health devices in the vicinity.

Only devices advertising Omron health data are listed, together with their
pairing state and the per-user record summary from the advertisement.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("duration") {
				if duration <= 0 {
					return fmt.Errorf("invalid duration %s: must be > 0", duration)
				}
				a.cfg.ScanTimeout = duration
			}

			// All arguments validated - don't show usage on runtime errors
			cmd.SilenceUsage = true

			var filters []registry.Option
			if len(allowList) > 0 {
				filters = append(filters, registry.WithAllowList(allowList...))
			}
			if len(blockList) > 0 {
				filters = append(filters, registry.WithBlockList(blockList...))
			}
			return runScan(cmd, a, format, filters)
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 10*time.Second, "Scan duration")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringSliceVar(&allowList, "allow", nil, "Only show devices with these addresses")
	cmd.Flags().StringSliceVar(&blockList, "block", nil, "Hide devices with these addresses")
	return cmd
}

func runScan(cmd *cobra.Command, a *app, format string, filters []registry.Option) error {
	m := a.newManager(session.WithRegistryOptions(filters...))
	defer m.Close()

	ctx, cancel := interruptContext(cmd.Context(), cmd.ErrOrStderr(), 0)
	defer cancel()

	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for Omron devices", "Scanning", a.cfg.ScanTimeout)
	progress.Start()
	defer progress.Stop()

	if err := m.StartScan(ctx); err != nil {
		return err
	}

	snaps, unsubscribe := m.Subscribe()
	defer unsubscribe()

	snap, err := waitScan(ctx, m, snaps)
	progress.Stop()
	if err != nil {
		return err
	}
	if snap.LastError != "" {
		return errors.New(snap.LastError)
	}

	if format == "json" {
		devices := snap.Devices
		if devices == nil {
			devices = []registry.DiscoveredDevice{}
		}
		return writeJSON(cmd.OutOrStdout(), devices)
	}
	return displayDevicesTable(cmd.OutOrStdout(), snap.Devices)
}

// waitScan blocks until the manager reports the scan as stopped.
// Cancelling ctx stops the scan early; the devices found so far are kept.
func waitScan(ctx context.Context, m *session.Manager, snaps <-chan session.Snapshot) (session.Snapshot, error) {
	done := ctx.Done()
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return session.Snapshot{}, session.ErrClosed
			}
			if !snap.Scanning {
				return snap, nil
			}
		case <-done:
			done = nil
			m.StopScan()
		}
	}
}

func displayDevicesTable(out io.Writer, devices []registry.DiscoveredDevice) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No Omron devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tPAIRABLE\tCLOCK\tRECORDS")

	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		pairable := "no"
		if d.Pairable {
			pairable = color.GreenString("yes")
		}
		clock := "set"
		if d.TimeNotConfigured {
			clock = color.YellowString("not set")
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s\t%s\n",
			name, d.ID, d.RSSI, pairable, clock, userRecords(d))
	}
	return w.Flush()
}

// userRecords renders "user:records" pairs, e.g. "1:3 2:0".
func userRecords(d registry.DiscoveredDevice) string {
	parts := make([]string, 0, len(d.Users))
	for _, u := range d.Users {
		parts = append(parts, fmt.Sprintf("%d:%d", u.Index, u.NumberOfRecords))
	}
	return strings.Join(parts, " ")
}
