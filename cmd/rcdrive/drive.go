package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/rcdrive/internal/control"
	"github.com/srg/rcdrive/internal/groutine"
	"github.com/srg/rcdrive/internal/input"
	"github.com/srg/rcdrive/internal/journal"
	"github.com/srg/rcdrive/internal/notify"
	"github.com/srg/rcdrive/internal/remote"
)

// statusTimeout bounds the final Status call after the loop stopped.
const statusTimeout = time.Second

func newDriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Find the car, connect and stream control values",
		Long: `Scan for the car by name, connect, discover the control service and
stream steering and throttle at a fixed interval until interrupted.

Keyboard input:
  w/s or up/down      throttle
  a/d or left/right   steering
  space               center both
  r                   toggle scanning
  q or Ctrl+C         quit

Values return to neutral when no key repeats within release_after.
The car reconnects automatically after it drops out of range.`,
		Example: `  rcdrive drive
  rcdrive drive --input joystick --joystick /dev/input/js1
  rcdrive drive --name MyCar --interval 30ms --trace`,
		Args: cobra.NoArgs,
		RunE: runDrive,
	}

	cmd.Flags().String("name", "", "Advertised name of the car (overrides config)")
	cmd.Flags().StringP("input", "i", "", "Input source: keyboard, joystick or neutral (overrides config)")
	cmd.Flags().String("joystick", "", "Joystick device path (overrides config)")
	cmd.Flags().Duration("interval", 0, "Write interval per channel (overrides config)")
	cmd.Flags().Duration("scan-window", 0, "Scan window before giving up (overrides config)")
	cmd.Flags().Bool("trace", false, "Print the last written values on exit")
	return cmd
}

func runDrive(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	trace, _ := cmd.Flags().GetBool("trace")

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	central, err := openRadio(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := central.Close(); err != nil {
			logger.WithError(err).Debug("Failed to close BLE adapter")
		}
	}()

	out := &syncWriter{w: cmd.OutOrStdout()}
	feed := notify.NewFeed(64)
	values := control.NewValues(cfg.Control)
	opts := remote.Options{
		Identity:       cfg.Identity(),
		ScanWindow:     cfg.ScanWindow,
		WriteInterval:  cfg.WriteInterval,
		ConnectTimeout: cfg.ConnectTimeout,
		Notifier:       feed,
		Logger:         logger,
	}
	var writes *journal.Journal
	if trace {
		writes = journal.New(cfg.JournalSize)
		opts.Recorder = writes
	}
	client := remote.NewClient(central, values, opts)

	src, err := input.New(cfg.Input, input.Deps{
		In:       cmd.InOrStdin(),
		OnRescan: client.ToggleScan,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintf(out, "Driving %s with %s input (interval %s)%s", cfg.DeviceName, cfg.Input.Kind, cfg.WriteInterval, crlf)

	// The printer outlives ctx so the shutdown transitions still get shown.
	printCtx, stopPrinter := context.WithCancel(context.Background())
	defer stopPrinter()

	var (
		group     groutine.Group
		sourceErr error
	)
	group.Go(printCtx, "status-printer", func(ctx context.Context) {
		newStatusPrinter(out).Run(ctx, feed)
	})
	group.Go(ctx, "input-source", func(ctx context.Context) {
		defer cancel()
		sourceErr = src.Run(ctx, values)
	})

	_ = client.Run(ctx)
	cancel()
	stopPrinter()
	group.Wait()

	statusCtx, statusCancel := context.WithTimeout(context.Background(), statusTimeout)
	defer statusCancel()
	if st, ok := client.Status(statusCtx); ok {
		printStats(out, st.Channels)
	}
	if writes != nil {
		printJournal(out, writes)
	}

	switch {
	case sourceErr == nil, errors.Is(sourceErr, input.ErrQuit),
		errors.Is(sourceErr, context.Canceled), errors.Is(sourceErr, context.DeadlineExceeded):
		return nil
	default:
		return fmt.Errorf("input source failed: %w", sourceErr)
	}
}
