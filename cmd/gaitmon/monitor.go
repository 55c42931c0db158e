package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gaitmon/internal/bletransport"
	"github.com/srg/gaitmon/internal/validation"
	"github.com/srg/gaitmon/pkg/connection"
	"github.com/srg/gaitmon/pkg/liveness"
	"github.com/srg/gaitmon/pkg/registry"
	"github.com/srg/gaitmon/pkg/telemetry"
	"github.com/srg/gaitmon/pkg/timestamp"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor [device-id...]",
	Short: "Connect to gait sensors and stream telemetry",
	Long: `Connect to one or more gait sensor devices, start data collection,
and stream decoded samples to the terminal until interrupted.

With no device ids, the devices and session details of the previous run
are reused. Device liveness is tracked in the background: devices that
stop sending heartbeats and data are flagged as timed out in the periodic
status line.`,
	Args: cobra.ArbitraryArgs,
	RunE: runMonitor,
}

var (
	monitorPrintSamples bool
	monitorStatusEvery  time.Duration
	monitorSessionName  string
	monitorSubjectID    string
)

func init() {
	monitorCmd.Flags().BoolVar(&monitorPrintSamples, "print-samples", true, "Print every decoded sample")
	monitorCmd.Flags().DurationVar(&monitorStatusEvery, "status-interval", 10*time.Second, "How often to print the device status line")
	monitorCmd.Flags().StringVar(&monitorSessionName, "session", "", "Session name to record with this run")
	monitorCmd.Flags().StringVar(&monitorSubjectID, "subject", "", "Subject identifier to record with this run")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	deviceIDs := make([]string, 0, len(args))
	for _, arg := range args {
		id, err := validation.DeviceID(arg)
		if err != nil {
			return err
		}
		deviceIDs = append(deviceIDs, id)
	}

	if monitorSessionName != "" {
		name, err := validation.SessionName(monitorSessionName)
		if err != nil {
			return err
		}
		monitorSessionName = name
	}
	if monitorSubjectID != "" {
		id, err := validation.SubjectID(monitorSubjectID)
		if err != nil {
			return err
		}
		monitorSubjectID = id
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// Prefill missing pieces from the previous run.
	if len(deviceIDs) == 0 || monitorSessionName == "" || monitorSubjectID == "" {
		if draft, ok := loadSessionDraft(cfg.DraftDir, logger); ok {
			if len(deviceIDs) == 0 {
				deviceIDs = draft.DeviceIDs
				fmt.Printf("Reusing devices from previous session: %s\n", strings.Join(deviceIDs, ", "))
			}
			if monitorSessionName == "" {
				monitorSessionName = draft.SessionName
			}
			if monitorSubjectID == "" {
				monitorSubjectID = draft.SubjectID
			}
		}
	}
	if len(deviceIDs) == 0 {
		return fmt.Errorf("no device ids given and no previous session to reuse; run 'gaitmon scan' to discover devices")
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	saveSessionDraft(cfg.DraftDir, sessionDraft{
		SessionName: monitorSessionName,
		SubjectID:   monitorSubjectID,
		DeviceIDs:   deviceIDs,
	}, logger)

	reg := registry.New(logger)
	defer reg.Close()

	fan := telemetry.NewFanout(logger)
	ingest := telemetry.NewIngestor(reg, fan, logger)

	transport := bletransport.New(logger, bletransport.Options{
		ScanDuration:    cfg.ScanTimeout.Std(),
		ConnectTimeout:  cfg.ConnectTimeout.Std(),
		ConnectAttempts: cfg.ConnectAttempts,
		OnSample:        ingest.HandleSample,
	})

	monitor := liveness.New(reg, logger, liveness.Options{
		Interval:         cfg.LivenessInterval.Std(),
		HeartbeatTimeout: cfg.HeartbeatTimeout.Std(),
		StaleAfter:       cfg.StaleAfter.Std(),
		WarnEntries:      cfg.WarnEntries,
	})

	facade := connection.New(transport, reg, monitor, logger, connection.Options{
		AutoPopulate: cfg.AutoPopulate,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, shutting down...")
		cancel()
	}()

	// Session clock starts at the first connect.
	norm := timestamp.New()
	norm.SetBase(time.Now().UnixMilli())

	if monitorPrintSamples {
		unsubscribe := fan.Subscribe(samplePrinter(norm))
		defer unsubscribe()
	}

	for _, id := range deviceIDs {
		reg.MarkExpected(id)
		fmt.Printf("Connecting to %s...\n", id)
		if err := facade.Connect(ctx, id); err != nil {
			return err
		}
		if err := facade.StartCollection(ctx, id); err != nil {
			return err
		}
	}

	monitor.Start(ctx)
	defer monitor.Stop()

	statusTicker := time.NewTicker(monitorStatusEvery)
	defer statusTicker.Stop()

	fmt.Println("Streaming. Press Ctrl+C to stop.")
	for {
		select {
		case <-ctx.Done():
			shutdown(facade, deviceIDs, logger)
			return nil
		case <-statusTicker.C:
			facade.RefreshConnectedDevices(ctx)
			printStatusLine(reg, monitor)
		}
	}
}

// samplePrinter renders each published sample with a session-relative
// timestamp and the estimated rate when available.
func samplePrinter(norm *timestamp.Normalizer) telemetry.Subscriber {
	return func(s telemetry.Sample) error {
		rate := "..."
		if s.SampleRate != nil {
			rate = fmt.Sprintf("%.1f Hz", *s.SampleRate)
		}
		fmt.Printf("[%s] %s r=(%.1f %.1f %.1f) a=(%.2f %.2f %.2f) %s\n",
			norm.Format(s.Timestamp, timestamp.FormatRelative),
			s.DeviceID, s.R1, s.R2, s.R3, s.X, s.Y, s.Z, rate)
		return nil
	}
}

func printStatusLine(reg *registry.Registry, monitor *liveness.Monitor) {
	statuses := monitor.Statuses()
	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	fmt.Print("status:")
	for _, id := range ids {
		status := statuses[id]
		var rendered string
		switch status {
		case liveness.StatusConnected:
			rendered = green.Sprint(status)
		case liveness.StatusConnecting:
			rendered = yellow.Sprint(status)
		default:
			rendered = red.Sprint(status)
		}
		if rate, ok := reg.CurrentSampleRate(id); ok {
			fmt.Printf(" %s=%s(%.1fHz)", id, rendered, rate)
		} else {
			fmt.Printf(" %s=%s", id, rendered)
		}
	}
	fmt.Println()
}

// shutdown stops collection and disconnects, best-effort: the process is
// exiting either way.
func shutdown(facade *connection.Facade, deviceIDs []string, logger *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, id := range deviceIDs {
		if err := facade.StopCollection(ctx, id); err != nil {
			logger.WithError(err).WithField("device_id", id).Error("Failed to stop collection during shutdown")
		}
		if err := facade.Disconnect(ctx, id); err != nil {
			logger.WithError(err).WithField("device_id", id).Error("Failed to disconnect during shutdown")
		}
	}
}
