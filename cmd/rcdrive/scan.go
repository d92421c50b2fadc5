package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/rcdrive/internal/device"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan once for the car and list what answered",
		Long: `Open one scan window and list advertisements matching the car's name,
with address, signal strength and whether the peer accepts connections.

Use --all to list every advertising device, which helps finding the name a
new car advertises.`,
		Example: `  rcdrive scan
  rcdrive scan --name MyCar --duration 5s
  rcdrive scan --all --format json`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}

	cmd.Flags().String("name", "", "Advertised name to look for (overrides config)")
	cmd.Flags().DurationP("duration", "d", 0, "Scan window (defaults to the configured scan_window)")
	cmd.Flags().Bool("all", false, "List every advertising device, not only the car")
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	return cmd
}

// scanResult is one device seen during the window.
type scanResult struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	Seen        int       `json:"seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// scanCollector is the device.EventConsumer for a one-shot scan.
type scanCollector struct {
	mu      sync.Mutex
	results map[string]*scanResult
	failed  chan error
}

func newScanCollector() *scanCollector {
	return &scanCollector{
		results: make(map[string]*scanResult),
		failed:  make(chan error, 1),
	}
}

func (c *scanCollector) OnScanResult(adv device.Advertisement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[adv.Addr()]
	if !ok {
		r = &scanResult{Address: adv.Addr()}
		c.results[adv.Addr()] = r
	}
	if name := adv.LocalName(); name != "" {
		r.Name = name
	}
	r.RSSI = adv.RSSI()
	r.Connectable = adv.Connectable()
	r.Seen++
	r.LastSeen = time.Now()
}

func (c *scanCollector) OnScanFailed(err error) {
	select {
	case c.failed <- err:
	default:
	}
}

func (c *scanCollector) OnConnectionStateChanged(device.Link, device.LinkState, error) {}

func (c *scanCollector) OnServicesDiscovered(device.Link, device.Profile, error) {}

// Results returns the devices sorted by signal strength, strongest first.
func (c *scanCollector) Results() []scanResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]scanResult, 0, len(c.results))
	for _, r := range c.results {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}

func runScan(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	window := cfg.ScanWindow
	if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
		window = d
	}
	filter := device.ScanFilter{Name: cfg.DeviceName}
	if all, _ := cmd.Flags().GetBool("all"); all {
		filter = device.ScanFilter{}
	}

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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := &syncWriter{w: cmd.OutOrStdout()}
	collector := newScanCollector()
	if err := collectScan(ctx, central, filter, window, collector, out, logger); err != nil {
		return err
	}

	results := collector.Results()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		if filter.Name != "" {
			return fmt.Errorf("%w: nothing advertised %q within %s", ErrNoMatch, filter.Name, window)
		}
		return fmt.Errorf("%w within %s", ErrNoMatch, window)
	}
	printScanTable(out, results)
	return nil
}

// collectScan keeps one window open until it elapses, ctx ends or the radio
// aborts the scan.
func collectScan(ctx context.Context, central device.Central, filter device.ScanFilter, window time.Duration,
	collector *scanCollector, out io.Writer, logger *logrus.Logger) error {
	target := filter.Name
	if target == "" {
		target = "any device"
	}
	progress := NewCountdownPrinter(out, "Scanning for "+target, window)

	if err := central.StartScan(filter, collector); err != nil {
		return fmt.Errorf("failed to start scan: %w", err)
	}
	progress.Start()

	timer := time.NewTimer(window)
	defer timer.Stop()

	var scanErr error
	select {
	case <-timer.C:
	case <-ctx.Done():
		logger.Debug("Scan interrupted")
	case scanErr = <-collector.failed:
	}
	progress.Stop()

	if err := central.StopScan(); err != nil {
		logger.WithError(err).Debug("Failed to stop scan")
	}
	if scanErr != nil {
		return fmt.Errorf("scan aborted: %w", scanErr)
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printScanTable(out io.Writer, results []scanResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tCONNECTABLE\tSEEN")
	for _, r := range results {
		name := r.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%d\n", name, r.Address, r.RSSI, r.Connectable, r.Seen)
	}
	_ = w.Flush()
}
