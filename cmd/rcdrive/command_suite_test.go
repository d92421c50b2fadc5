package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const (
	carAddress = "AA:BB:CC:DD:EE:FF"
	waitFor    = 3 * time.Second
	pollEvery  = 2 * time.Millisecond
)

// fakeRadio adds the Close hook the commands release the adapter with.
type fakeRadio struct {
	*testutils.FakeCentral
	closed atomic.Int32
}

func (r *fakeRadio) Close() error {
	r.closed.Add(1)
	return nil
}

// lockedBuffer is a bytes.Buffer safe to read while a command still writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs the real command tree against a scripted radio.
// All cmd/rcdrive suites embed it.
type CommandTestSuite struct {
	suite.Suite

	Radio     *fakeRadio
	RadioErr  error
	openCalls atomic.Int32

	restore func()
}

func (s *CommandTestSuite) SetupTest() {
	s.Radio = &fakeRadio{FakeCentral: testutils.NewFakeCentral(nil)}
	s.RadioErr = nil
	s.openCalls.Store(0)

	prev := openRadio
	openRadio = func(*logrus.Logger) (radio, error) {
		s.openCalls.Add(1)
		if s.RadioErr != nil {
			return nil, s.RadioErr
		}
		return s.Radio, nil
	}
	s.restore = func() { openRadio = prev }
}

func (s *CommandTestSuite) TearDownTest() {
	s.restore()
}

// running is a command executing on its own goroutine.
type running struct {
	out    *lockedBuffer
	done   chan error
	cancel context.CancelFunc
}

// Start executes args on a fresh command tree with stdin from in.
func (s *CommandTestSuite) Start(in io.Reader, args ...string) *running {
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{out: &lockedBuffer{}, done: make(chan error, 1), cancel: cancel}

	cmd := newRootCmd()
	cmd.SetOut(r.out)
	cmd.SetErr(io.Discard)
	if in == nil {
		in = strings.NewReader("")
	}
	cmd.SetIn(in)
	cmd.SetArgs(args)
	go func() { r.done <- cmd.ExecuteContext(ctx) }()
	return r
}

// Wait returns the command error, failing the test if it does not finish.
func (s *CommandTestSuite) Wait(r *running) error {
	select {
	case err := <-r.done:
		r.cancel()
		return err
	case <-time.After(waitFor):
		r.cancel()
		s.FailNow("command MUST finish")
		return nil
	}
}

// ExecuteCommand runs args to completion and returns the output.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	r := s.Start(nil, args...)
	err := s.Wait(r)
	return r.out.String(), err
}

// WaitScanning blocks until the command opened a scan window.
func (s *CommandTestSuite) WaitScanning() {
	s.Require().Eventually(s.Radio.Scanning, waitFor, pollEvery, "command MUST start scanning")
}
