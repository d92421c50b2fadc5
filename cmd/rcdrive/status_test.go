package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/srg/rcdrive/internal/control"
	"github.com/srg/rcdrive/internal/device"
	"github.com/srg/rcdrive/internal/journal"
	"github.com/srg/rcdrive/internal/notify"
	"github.com/srg/rcdrive/internal/remote"
	"github.com/srg/rcdrive/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noon = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestStatusPrinter_Print(t *testing.T) {
	var buf bytes.Buffer
	p := newStatusPrinter(&buf)

	for _, e := range []notify.Event{
		{Time: noon, Kind: notify.KindScan, Scanning: true, Reason: notify.ReasonStarted},
		{Time: noon.Add(time.Second), Kind: notify.KindScan, Reason: notify.ReasonMatched},
		{Time: noon.Add(time.Second), Kind: notify.KindConnection, State: "connecting", Address: carAddress, Session: "01J0"},
		{Time: noon.Add(2 * time.Second), Kind: notify.KindDiscovery, Address: carAddress, Err: errors.New("steering missing")},
		{Time: noon.Add(3 * time.Second), Kind: notify.KindConnection, State: "disconnected", Err: remote.ErrUnexpectedDisconnect},
	} {
		p.Print(e)
	}

	testutils.AssertText(t, `12:00:00.000 scanning for the car (started)
12:00:01.000 scan stopped (matched)
12:00:01.000 connecting AA:BB:CC:DD:EE:FF session=01J0
12:00:02.000 service discovery incomplete: steering missing
12:00:03.000 disconnected: `+remote.ErrUnexpectedDisconnect.Error()+`
`, buf.String())
}

func TestStatusPrinter_RunFlushesOnStop(t *testing.T) {
	var buf bytes.Buffer
	feed := notify.NewFeed(8)
	feed.Notify(notify.Event{Time: noon, Kind: notify.KindConnection, State: "tearing_down"})
	feed.Notify(notify.Event{Time: noon, Kind: notify.KindConnection, State: "disconnected"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	newStatusPrinter(&buf).Run(ctx, feed)

	assert.Contains(t, buf.String(), "tearing_down")
	assert.Contains(t, buf.String(), "disconnected", "buffered events MUST be printed after stop")
	assert.Zero(t, feed.Len())
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, map[control.Channel]remote.ChannelStats{
		control.Throttle: {Writes: 2, Failures: 1, LastValue: 170, LastError: errors.New("busy")},
		control.Steering: {Writes: 3, LastValue: 30},
	})

	testutils.AssertText(t, `steering writes=3 failures=0 last=30
throttle writes=2 failures=1 last=170 error="busy"
`, buf.String())
}

func TestPrintJournal(t *testing.T) {
	j := journal.New(2)
	j.Record(control.Steering, control.Encode(30), nil)
	j.Record(control.Throttle, control.Encode(170), nil)
	j.Record(control.Steering, control.Encode(31), errors.New("busy"))

	var buf bytes.Buffer
	printJournal(&buf, j)
	testutils.AssertText(t, `last 2 of 3 writes:
  throttle=170 (ok)
  steering=31 (failed)
`, buf.String())
}

func TestCountdownPrinter(t *testing.T) {
	var buf lockedBuffer
	p := NewCountdownPrinter(&buf, "Scanning for DaddyMobile", time.Second)
	p.Start()
	p.Start()
	time.Sleep(3 * progressUpdateInterval / 2)
	p.Stop()
	p.Stop()

	out := buf.String()
	assert.Contains(t, out, "\rScanning for DaddyMobile (1s left)")
	assert.True(t, len(out) >= len(clearLineSequence) && out[len(out)-len(clearLineSequence):] == clearLineSequence,
		"Stop MUST clear the progress line")
}

func TestCountdownPrinter_StopWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	p := NewCountdownPrinter(&buf, "x", time.Second)

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop MUST NOT block when Start was never called")
	}
	require.Equal(t, clearLineSequence, buf.String())
}

func TestFormatUserError(t *testing.T) {
	assert.Equal(t, "boom", FormatUserError(errors.New("boom")))
	assert.Contains(t, FormatUserError(fmt.Errorf("scan: %w", device.ErrPermissionDenied)), "grant Bluetooth access")
	assert.Contains(t, FormatUserError(device.ErrBluetoothOff), "turn Bluetooth on")
}

func TestRootCommand_Version(t *testing.T) {
	for _, flag := range []string{"--version", "-v"} {
		t.Run(flag, func(t *testing.T) {
			var buf bytes.Buffer
			cmd := newRootCmd()
			cmd.SetOut(&buf)
			cmd.SetArgs([]string{flag})
			require.NoError(t, cmd.Execute())
			assert.Contains(t, buf.String(), "rcdrive version dev (commit none, built unknown)")
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
