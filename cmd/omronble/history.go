package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/omronble/internal/measurement"
	"github.com/srg/omronble/internal/store"
)

var errNoDatabase = errors.New("no measurement database: pass --db or set database_path in the config file")

func newHistoryCmd() *cobra.Command {
	var (
		dbPath   string
		deviceID string
		kind     string
		limit    int
		format   string
		tz       string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List measurements saved by sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			if err := validateKind(kind); err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("invalid limit %d: must be >= 0", limit)
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("invalid time zone %q: %w", tz, err)
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("db") {
				dbPath = a.cfg.DatabasePath
			}
			if dbPath == "" {
				return errNoDatabase
			}

			cmd.SilenceUsage = true

			s, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			records, err := s.List(cmd.Context(), store.Query{
				DeviceID: deviceID,
				Kind:     measurement.Kind(kind),
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			a.logger.WithField("count", len(records)).Debug("Loaded measurement history")

			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), historyJSON(records, loc))
			}
			return displayHistoryTable(cmd.OutOrStdout(), records, loc)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database written by sync")
	cmd.Flags().StringVar(&deviceID, "device", "", "Only show measurements from this device")
	cmd.Flags().StringVar(&kind, "kind", "", "Only show one kind (blood_pressure, weight, temperature, body_composition)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of measurements (0 for all)")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringVar(&tz, "tz", "Local", "Time zone for displayed times")
	return cmd
}

func validateKind(kind string) error {
	switch measurement.Kind(kind) {
	case "", measurement.KindBloodPressure, measurement.KindWeight,
		measurement.KindTemperature, measurement.KindBodyComposition:
		return nil
	}
	return fmt.Errorf("invalid kind '%s'", kind)
}

func displayHistoryTable(w io.Writer, records []store.Record, loc *time.Location) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No stored measurements")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TAKEN AT\tDEVICE\tMEASUREMENT")
	for _, r := range records {
		takenAt := r.TakenAt.In(loc).Format(timeLayout)
		if !r.DeviceTime {
			takenAt += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", takenAt, r.DeviceID, r.Summary)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, r := range records {
		if !r.DeviceTime {
			fmt.Fprintln(w, "* time of download; the device did not report when the reading was taken")
			break
		}
	}
	return nil
}

func historyJSON(records []store.Record, loc *time.Location) []*orderedmap.OrderedMap[string, any] {
	items := make([]*orderedmap.OrderedMap[string, any], 0, len(records))
	for _, r := range records {
		om := orderedmap.New[string, any]()
		om.Set("id", r.ID)
		om.Set("device_id", r.DeviceID)
		om.Set("session_id", r.SessionID)
		om.Set("kind", string(r.Kind))
		om.Set("taken_at", r.TakenAt.In(loc).Format(time.RFC3339))
		om.Set("device_time", r.DeviceTime)
		om.Set("primary_value", r.PrimaryValue)
		om.Set("unit", r.Unit)
		om.Set("summary", r.Summary)
		om.Set("fields", r.Fields)
		om.Set("stored_at", r.StoredAt.In(loc).Format(time.RFC3339))
		items = append(items, om)
	}
	return items
}
