package ble

import (
	"context"
	"fmt"
	"time"

	"github.com/chaz8081/thermobill/internal/ble/protocol"
)

// WriteFunc delivers one chunk to the printer and returns once the
// transport has accepted it.
type WriteFunc func(chunk []byte) error

// Profile is a named chunk size and pacing pair.
type Profile struct {
	Name      string
	ChunkSize int
	Delay     time.Duration
}

var (
	// ProfileFast suits printers that buffer a full ATT write.
	ProfileFast = Profile{Name: "fast", ChunkSize: 200, Delay: 0}
	// ProfileSafe suits slow firmware on the default MTU.
	ProfileSafe = Profile{Name: "safe", ChunkSize: protocol.MaxSafeChunk, Delay: 10 * time.Millisecond}
)

// LookupProfile returns the named built-in profile.
func LookupProfile(name string) (Profile, error) {
	switch name {
	case "fast", "":
		return ProfileFast, nil
	case "safe":
		return ProfileSafe, nil
	default:
		return Profile{}, fmt.Errorf("ble: unknown transmit profile %q", name)
	}
}

// TransmitOptions configures Transmit.
type TransmitOptions struct {
	ChunkSize int
	// Delay is the pause between consecutive chunks.
	Delay time.Duration
	// Progress, when set, is called after each chunk with the number of
	// chunks sent so far and the total.
	Progress func(sent, total int)
}

// Options returns transmit options for p.
func (p Profile) Options() TransmitOptions {
	return TransmitOptions{ChunkSize: p.ChunkSize, Delay: p.Delay}
}

// Transmit writes stream in order as chunks of at most opts.ChunkSize
// bytes, waiting for each write before starting the next. ctx is checked
// before every chunk; once it is done no further chunk is written and
// the error wraps ErrCancelled. A failed write stops the stream with a
// *TransmissionError and is never retried. Chunks already written stay
// written.
func Transmit(ctx context.Context, stream []byte, opts TransmitOptions, write WriteFunc) error {
	if opts.ChunkSize <= 0 {
		return fmt.Errorf("ble: chunk size must be > 0, got %d", opts.ChunkSize)
	}
	if write == nil {
		return fmt.Errorf("ble: nil write function")
	}

	chunks := protocol.Chunk(stream, opts.ChunkSize)
	total := len(chunks)

	var pause *time.Timer
	defer func() {
		if pause != nil {
			pause.Stop()
		}
	}()

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w after %d of %d chunks: %v", ErrCancelled, i, total, err)
		}
		if err := write(chunk); err != nil {
			return &TransmissionError{Index: i, Err: err}
		}
		if opts.Progress != nil {
			opts.Progress(i+1, total)
		}

		if opts.Delay > 0 && i < total-1 {
			if pause == nil {
				pause = time.NewTimer(opts.Delay)
			} else {
				pause.Reset(opts.Delay)
			}
			select {
			case <-ctx.Done():
			case <-pause.C:
			}
		}
	}
	return nil
}
