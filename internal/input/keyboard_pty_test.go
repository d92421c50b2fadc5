//go:build linux || darwin

package input

import (
	"context"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/srg/rcdrive/internal/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyboard_RunOnTerminal(t *testing.T) {
	// GOAL: Verify the keyboard source works on a real terminal in raw mode
	//
	// TEST SCENARIO: Open a PTY pair → type on the master → values move → q quits

	ptmx, tty, err := pty.Open()
	require.NoError(t, err)
	defer ptmx.Close()
	defer tty.Close()

	values := control.NewValues(control.DefaultRange)
	k := NewKeyboard(tty, KeyboardOptions{Step: 10})

	done := make(chan error, 1)
	go func() { done <- k.Run(context.Background(), values) }()

	_, err = ptmx.Write([]byte("d"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return values.Get(control.Steering) == 110 }, 2*time.Second, 5*time.Millisecond)

	_, err = ptmx.Write([]byte("q"))
	require.NoError(t, err)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQuit)
	case <-time.After(2 * time.Second):
		t.Fatal("quit key MUST end Run")
	}
}

func TestKeyboard_RunCancelOnTerminal(t *testing.T) {
	ptmx, tty, err := pty.Open()
	require.NoError(t, err)
	defer ptmx.Close()
	defer tty.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewKeyboard(tty, KeyboardOptions{Step: 10}).Run(ctx, control.NewValues(control.DefaultRange)) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel MUST end Run without further input")
	}
}
