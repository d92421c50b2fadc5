//go:build !linux && !darwin

package input

import (
	"context"
	"os"
)

func pollLoop(ctx context.Context, f *os.File, bufSize int, handle func([]byte) error) error {
	return blockingLoop(ctx, f, bufSize, handle)
}
