package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/gaitmon/internal/bletransport"
	"github.com/srg/gaitmon/internal/validation"
	"github.com/srg/gaitmon/pkg/connection"
	"github.com/srg/gaitmon/pkg/registry"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect <start|stop> <device-id>",
	Short: "Start or stop data collection on a connected device",
	Long: `Toggle gait data collection on a device that is already connected.

'collect start' subscribes to the device's gait characteristic;
'collect stop' unsubscribes. Use 'gaitmon devices' to see which devices
are currently collecting.`,
	Args: cobra.ExactArgs(2),
	RunE: runCollect,
}

func runCollect(cmd *cobra.Command, args []string) error {
	action := args[0]
	if action != "start" && action != "stop" {
		return fmt.Errorf("invalid action '%s': must be start or stop", action)
	}
	id, err := validation.DeviceID(args[1])
	if err != nil {
		return err
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
		ConnectTimeout:  cfg.ConnectTimeout.Std(),
		ConnectAttempts: cfg.ConnectAttempts,
	})
	reg := registry.New(logger)
	defer reg.Close()
	facade := connection.New(transport, reg, nil, logger, connection.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout.Std())
	defer cancel()

	if action == "start" {
		if err := facade.StartCollection(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Collection started on %s\n", id)
		return nil
	}

	if err := facade.StopCollection(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Collection stopped on %s\n", id)
	return nil
}
