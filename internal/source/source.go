// Package source feeds raw NMEA bytes into a session: a reconnecting TCP
// client, a paced file replay, or any io.Reader such as stdin.
package source

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sink receives raw bytes. gps.Service satisfies it.
type Sink interface {
	io.Writer
	// Flush completes a trailing unterminated line at end of stream.
	Flush()
}

const defaultChunkBytes = 4096

// Copy moves bytes from r to sink in chunks until EOF, a read error, or ctx
// is done. The reader is not interrupted mid-read; close it to unblock.
func Copy(ctx context.Context, sink Sink, r io.Reader) (int64, error) {
	buf := make([]byte, defaultChunkBytes)
	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		m, err := r.Read(buf)
		if m > 0 {
			_, _ = sink.Write(buf[:m])
			n += int64(m)
		}
		if err != nil {
			sink.Flush()
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
