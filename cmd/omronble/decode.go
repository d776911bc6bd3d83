package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/omronble/internal/device"
	"github.com/srg/omronble/internal/measurement"
	"github.com/srg/omronble/internal/omron"
)

var characteristicAliases = map[string]string{
	"bp":               device.CharacteristicBloodPressure,
	"blood-pressure":   device.CharacteristicBloodPressure,
	"spot-check":       device.CharacteristicOmronSpotCheck,
	"weight":           device.CharacteristicWeight,
	"temp":             device.CharacteristicTemperature,
	"temperature":      device.CharacteristicTemperature,
	"bc":               device.CharacteristicBodyComposition,
	"body-composition": device.CharacteristicBodyComposition,
}

func newDecodeCmd() *cobra.Command {
	var (
		format string
		tz     string
	)

	cmd := &cobra.Command{
		Use:   "decode <adv|characteristic> <hex>",
		Short: "Decode an advertisement or measurement payload",
		Long: `Decode captured bytes without a device.

The first argument selects the decoder:
  adv                      Omron manufacturer data, starting with the company ID (0e 02)
  bp, blood-pressure       Blood Pressure Measurement (2A35)
  spot-check               Omron spot-check blood pressure
  weight                   Weight Measurement (2A9D)
  temp, temperature        Temperature Measurement (2A1C)
  bc, body-composition     Body Composition Measurement (2A9C)
A characteristic UUID is accepted as well.`,
		Example: `  omronble decode adv "0e 02 01 09 05 00 03 00 00 00"
  omronble decode bp "02 78 00 50 00 5d 00 e9 07 06 01 08 1e 00"
  omronble decode 2a9d 00a438`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("invalid time zone %q: %w", tz, err)
			}
			data, err := parseHex(args[1])
			if err != nil {
				return err
			}

			cmd.SilenceUsage = true
			if args[0] == "adv" || args[0] == "advertisement" {
				return decodeAdvertisement(cmd.OutOrStdout(), data, format)
			}

			uuid, err := resolveCharacteristic(args[0])
			if err != nil {
				cmd.SilenceUsage = false
				return err
			}
			return decodeMeasurement(cmd.OutOrStdout(), uuid, data, format, loc)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringVar(&tz, "tz", "Local", "Time zone for device timestamps")
	return cmd
}

func resolveCharacteristic(arg string) (string, error) {
	if uuid, ok := characteristicAliases[arg]; ok {
		return uuid, nil
	}
	uuids, err := device.ValidateUUID(arg)
	if err != nil || !measurement.CanDecode(uuids[0]) {
		return "", fmt.Errorf("unknown characteristic %q", arg)
	}
	return uuids[0], nil
}

func decodeAdvertisement(w io.Writer, data []byte, format string) error {
	adv, err := omron.DecodeAdvertisement(data)
	if err != nil {
		return err
	}

	om := orderedmap.New[string, any]()
	setVendor(om, adv)
	om.Set("pairable", adv.Pairable)
	om.Set("time_not_configured", adv.TimeNotConfigured)
	om.Set("number_of_users", adv.NumberOfUsers())

	if format == "json" {
		om.Set("users", adv.Users)
		return writeJSON(w, om)
	}

	printFields(w, om)
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tLAST SEQUENCE\tRECORDS")
	for _, u := range adv.Users {
		fmt.Fprintf(tw, "%d\t%d\t%d\n", u.Index, u.LastSequenceNumber, u.NumberOfRecords)
	}
	return tw.Flush()
}

func setVendor(om *orderedmap.OrderedMap[string, any], v device.VendorInfo) {
	om.Set("vendor", v.VendorName())
	om.Set("company_id", fmt.Sprintf("0x%04X", v.VendorID()))
}

func decodeMeasurement(w io.Writer, uuid string, data []byte, format string, loc *time.Location) error {
	m, err := measurement.Decoder{Location: loc}.Decode(uuid, data)
	if err != nil {
		return err
	}

	fields := measurement.Fields(m)
	if format == "json" {
		return writeJSON(w, fields)
	}

	fmt.Fprintln(w, measurement.Summary(m))
	fmt.Fprintln(w)
	printFields(w, fields)
	return nil
}
