package input

import (
	"context"
	"errors"
	"io"
	"os"
)

// pollTimeoutMs bounds how long a poll waits before re-checking the context.
const pollTimeoutMs = 50

// readLoop hands every chunk read from r to handle until ctx ends, r hits
// EOF or handle returns an error. Files are polled so cancellation does not
// wait for the next byte.
func readLoop(ctx context.Context, r io.Reader, bufSize int, handle func([]byte) error) error {
	if f, ok := r.(*os.File); ok {
		return pollLoop(ctx, f, bufSize, handle)
	}
	return blockingLoop(ctx, r, bufSize, handle)
}

// blockingLoop reads on a helper goroutine. The goroutine stays blocked in
// Read after cancellation until the reader returns.
func blockingLoop(ctx context.Context, r io.Reader, bufSize int, handle func([]byte) error) error {
	type chunk struct {
		data []byte
		err  error
	}
	chunks := make(chan chunk)
	done := make(chan struct{})
	defer close(done)

	go func() {
		buf := make([]byte, bufSize)
		for {
			n, err := r.Read(buf)
			c := chunk{data: append([]byte(nil), buf[:n]...), err: err}
			select {
			case chunks <- c:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-chunks:
			if len(c.data) > 0 {
				if err := handle(c.data); err != nil {
					return err
				}
			}
			if c.err != nil {
				if errors.Is(c.err, io.EOF) {
					return nil
				}
				return c.err
			}
		}
	}
}
