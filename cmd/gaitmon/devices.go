package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/gaitmon/internal/bletransport"
	"github.com/srg/gaitmon/pkg/connection"
	"github.com/srg/gaitmon/pkg/liveness"
	"github.com/srg/gaitmon/pkg/registry"
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Show connected devices and their status",
	Long: `Query the transport for connected gait sensors and display each
device's liveness status, estimated sample rate, and whether it is
actively collecting data.`,
	RunE: runDevices,
}

var devicesFormat string

func init() {
	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "table", "Output format (table, json)")
}

// deviceStatus is one row of the devices report.
type deviceStatus struct {
	ID         string   `json:"id"`
	Status     string   `json:"status"`
	Collecting bool     `json:"collecting"`
	SampleRate *float64 `json:"sample_rate,omitempty"`
}

func runDevices(cmd *cobra.Command, args []string) error {
	if devicesFormat != "table" && devicesFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be table or json", devicesFormat)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	transport := bletransport.New(logger, bletransport.Options{
		ScanDuration:   cfg.ScanTimeout.Std(),
		ConnectTimeout: cfg.ConnectTimeout.Std(),
	})
	reg := registry.New(logger)
	defer reg.Close()
	monitor := liveness.New(reg, logger, liveness.Options{
		HeartbeatTimeout: cfg.HeartbeatTimeout.Std(),
		StaleAfter:       cfg.StaleAfter.Std(),
		WarnEntries:      cfg.WarnEntries,
	})
	facade := connection.New(transport, reg, monitor, logger, connection.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout.Std())
	defer cancel()

	facade.RefreshConnectedDevices(ctx)
	monitor.Tick()

	collecting := make(map[string]bool)
	for _, id := range facade.ActiveCollectingDevices(ctx) {
		collecting[id] = true
	}

	statuses := monitor.Statuses()
	rows := make([]deviceStatus, 0, len(statuses))
	for id, status := range statuses {
		row := deviceStatus{
			ID:         id,
			Status:     string(status),
			Collecting: collecting[id],
		}
		if rate, ok := reg.CurrentSampleRate(id); ok {
			row.SampleRate = &rate
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	if devicesFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	}
	return displayDeviceStatusTable(rows)
}

func displayDeviceStatusTable(rows []deviceStatus) error {
	if len(rows) == 0 {
		fmt.Println("No connected devices")
		return nil
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tSTATUS\tCOLLECTING\tRATE")
	fmt.Fprintln(w, strings.Repeat("-", 60))

	for _, row := range rows {
		var status string
		switch liveness.Status(row.Status) {
		case liveness.StatusConnected:
			status = green.Sprint(row.Status)
		case liveness.StatusConnecting:
			status = yellow.Sprint(row.Status)
		default:
			status = red.Sprint(row.Status)
		}

		collecting := "no"
		if row.Collecting {
			collecting = "yes"
		}

		rate := "-"
		if row.SampleRate != nil {
			rate = fmt.Sprintf("%.1f Hz", *row.SampleRate)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.ID, status, collecting, rate)
	}
	return w.Flush()
}
