package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/omronble/internal/measurement"
	"github.com/srg/omronble/internal/racp"
	"github.com/srg/omronble/internal/session"
	"github.com/srg/omronble/internal/store"
)

func newSyncCmd() *cobra.Command {
	var (
		timeout time.Duration
		format  string
		dbPath  string
		showLog bool
	)

	cmd := &cobra.Command{
		Use:   "sync <device-address>",
		Short: "Download stored records from a device",
		Long: `Connect to an Omron device, subscribe to its measurement characteristics and
download every stored record through the Record Access Control Point.

Put the device into transfer mode before running this command. Received
measurements are printed and, with --db, saved to a local SQLite history.
Records already in the history are not stored twice.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("timeout") {
				if timeout <= 0 {
					return fmt.Errorf("invalid timeout %s: must be > 0", timeout)
				}
				a.cfg.SyncTimeout = timeout
			}
			if !cmd.Flags().Changed("db") {
				dbPath = a.cfg.DatabasePath
			}

			cmd.SilenceUsage = true
			return runSync(cmd, a, args[0], syncOutput{format: format, dbPath: dbPath, showLog: showLog})
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 60*time.Second, "Give up when the transfer takes longer")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Save measurements to this SQLite database")
	cmd.Flags().BoolVar(&showLog, "activity", false, "Print the session activity log")
	return cmd
}

type syncOutput struct {
	format  string
	dbPath  string
	showLog bool
}

type syncResult struct {
	snap  session.Snapshot
	saved *int
	err   error
}

func runSync(cmd *cobra.Command, a *app, deviceID string, out syncOutput) error {
	m := a.newManager()
	defer m.Close()

	ctx, cancel := interruptContext(cmd.Context(), cmd.ErrOrStderr(), a.cfg.SyncTimeout)
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Syncing "+deviceID, "Connecting")
	progress.Start()
	defer progress.Stop()

	if err := m.Connect(ctx, deviceID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrSyncTimeout
		}
		return fmt.Errorf("connect %s: %w", deviceID, err)
	}

	snaps, unsubscribe := m.Subscribe()
	snap, waitErr := waitSync(ctx, snaps, progress.SetPhase)
	unsubscribe()
	progress.Stop()

	if err := m.Disconnect(); err != nil {
		a.logger.WithError(err).Warn("Disconnect failed")
	}

	res := syncResult{snap: snap, err: waitErr}
	if out.dbPath != "" && len(snap.Measurements) > 0 {
		n, err := saveMeasurements(context.WithoutCancel(ctx), out.dbPath, deviceID, snap)
		if err != nil {
			return err
		}
		res.saved = &n
	}

	w := cmd.OutOrStdout()
	if out.format == "json" {
		if err := writeJSON(w, syncJSON(deviceID, res)); err != nil {
			return err
		}
	} else {
		if err := displaySyncTable(w, res, out.dbPath); err != nil {
			return err
		}
	}
	if out.showLog {
		for _, line := range m.ActivityLog() {
			fmt.Fprintln(cmd.ErrOrStderr(), line)
		}
	}
	return waitErr
}

// waitSync follows snapshots until record retrieval ends. The returned
// snapshot is the last one taken while connected, so measurements survive a
// dropped link.
func waitSync(ctx context.Context, snaps <-chan session.Snapshot, phase func(string)) (session.Snapshot, error) {
	var last session.Snapshot
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return last, session.ErrClosed
			}
			if snap.State == session.Connected {
				last = snap
				phase(syncPhase(snap.RACP))
			}
			if snap.SyncFinished() {
				if snap.State != session.Connected {
					if snap.LastError != "" {
						return last, fmt.Errorf("%w: %s", ErrConnectionLost, snap.LastError)
					}
					return last, ErrConnectionLost
				}
				return snap, nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return last, ErrSyncTimeout
			}
			return last, ctx.Err()
		}
	}
}

func syncPhase(st *racp.Status) string {
	switch {
	case st == nil || st.Expected == nil:
		return "Counting records"
	default:
		return fmt.Sprintf("Receiving %d/%d", st.Received, *st.Expected)
	}
}

func saveMeasurements(ctx context.Context, path, deviceID string, snap session.Snapshot) (int, error) {
	s, err := store.Open(path)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	n, err := s.Save(ctx, deviceID, snap.SessionID, snap.Measurements)
	if err != nil {
		return 0, fmt.Errorf("save measurements: %w", err)
	}
	return n, nil
}

// outcomeLine describes how record retrieval ended.
func outcomeLine(st *racp.Status, received int) string {
	if st == nil {
		return color.RedString("Record access did not start")
	}
	switch st.Outcome() {
	case racp.ResultSuccess:
		return color.GreenString("Sync complete") + fmt.Sprintf(": %d record(s)", received)
	case racp.ResultEmpty:
		return "No stored records"
	case racp.ResultIncomplete:
		return color.YellowString("Sync incomplete") + fmt.Sprintf(": %d record(s)", received)
	case racp.ResultRejected:
		return color.RedString("Sync rejected") + ": " + st.Response.Value.String()
	case racp.ResultHalted:
		return color.RedString("Record access halted") + ": " + st.Reason
	default:
		return color.YellowString("Sync did not finish") + fmt.Sprintf(": %d record(s)", received)
	}
}

func displaySyncTable(w io.Writer, res syncResult, dbPath string) error {
	if len(res.snap.Measurements) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TAKEN AT\tKIND\tMEASUREMENT")
		for _, m := range res.snap.Measurements {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", m.TakenAt().Format(timeLayout), m.Kind(), measurement.Summary(m))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w, outcomeLine(res.snap.RACP, len(res.snap.Measurements)))
	if res.saved != nil {
		fmt.Fprintf(w, "Saved %d new record(s) to %s\n", *res.saved, dbPath)
	}
	return nil
}

func syncJSON(deviceID string, res syncResult) *orderedmap.OrderedMap[string, any] {
	om := orderedmap.New[string, any]()
	om.Set("device_id", deviceID)
	om.Set("session_id", res.snap.SessionID)

	outcome := "not started"
	if res.snap.RACP != nil {
		outcome = string(res.snap.RACP.Outcome())
		if res.snap.RACP.Expected != nil {
			om.Set("expected", *res.snap.RACP.Expected)
		}
	}
	om.Set("outcome", outcome)
	om.Set("received", len(res.snap.Measurements))
	if res.err != nil {
		om.Set("error", res.err.Error())
	}

	items := make([]any, 0, len(res.snap.Measurements))
	for _, m := range res.snap.Measurements {
		items = append(items, measurement.Fields(m))
	}
	om.Set("measurements", items)
	if res.saved != nil {
		om.Set("saved", *res.saved)
	}
	return om
}
