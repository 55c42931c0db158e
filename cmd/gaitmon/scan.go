package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/gaitmon/internal/bletransport"
	"github.com/srg/gaitmon/pkg/config"
	"github.com/srg/gaitmon/pkg/connection"
	"github.com/srg/gaitmon/pkg/registry"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for gait sensor devices",
	Long: `Scan for and display nearby wireless gait sensor devices.

Results show device names, addresses, signal strength, and advertised
services. Named devices are listed first.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (0 uses the config value)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if scanDuration > 0 {
		cfg.ScanTimeout = config.Duration(scanDuration)
	}
	if scanFormat != "" {
		cfg.OutputFormat = scanFormat
	}
	if err := cfg.Validate(); err != nil {
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
	facade := connection.New(transport, reg, nil, logger, connection.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	fmt.Printf("Scanning for gait sensors (%s)...\n", cfg.ScanTimeout.Std())

	devices, err := facade.Scan(ctx)
	if err != nil {
		return err
	}

	switch cfg.OutputFormat {
	case "json":
		return displayDevicesJSON(devices)
	default:
		return displayDevicesTable(devices)
	}
}

func displayDevicesTable(devices []connection.ScannedDevice) error {
	if len(devices) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tCONNECTABLE\tSERVICES")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, dev := range devices {
		name := dev.Name
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		connectable := red.Sprint("no")
		if dev.Connectable {
			connectable = green.Sprint("yes")
		}

		services := strings.Join(dev.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s\n",
			name, dev.ID, dev.RSSI, connectable, services)
	}

	return w.Flush()
}

func displayDevicesJSON(devices []connection.ScannedDevice) error {
	var w io.Writer = os.Stdout
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}
