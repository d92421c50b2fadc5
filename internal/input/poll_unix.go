//go:build linux || darwin

package input

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func pollLoop(ctx context.Context, f *os.File, bufSize int, handle func([]byte) error) error {
	pollFd := []unix.PollFd{{Fd: int32(f.Fd()), Events: unix.POLLIN}}
	buf := make([]byte, bufSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		nReady, err := unix.Poll(pollFd, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return err
		}
		if nReady == 0 {
			continue // timeout, check context
		}

		n, err := f.Read(buf)
		if n > 0 {
			if herr := handle(buf[:n]); herr != nil {
				return herr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
