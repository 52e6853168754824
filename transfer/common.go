package transfer

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ChunkSize is the fixed buffer size used for every streamed transfer.
const ChunkSize = 64 * 1024

// ProgressFunc receives progress updates. total is -1 when unknown.
type ProgressFunc func(transferred int64, total int64, speed float64, elapsed time.Duration)

// ProgressReader wraps an io.Reader to track progress.
type ProgressReader struct {
	Reader      io.Reader
	Total       int64
	Transferred int64
	StartTime   time.Time
	LastUpdate  time.Time
	LastBytes   int64
	OnProgress  ProgressFunc

	done bool
}

// NewProgressReader returns r unchanged when fn is nil.
func NewProgressReader(r io.Reader, total int64, fn ProgressFunc) io.Reader {
	if fn == nil {
		return r
	}
	return &ProgressReader{Reader: r, Total: total, OnProgress: fn}
}

func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	if pr.StartTime.IsZero() {
		pr.StartTime = time.Now()
		pr.LastUpdate = pr.StartTime
	}

	n, err = pr.Reader.Read(p)
	if n > 0 {
		pr.Transferred += int64(n)

		now := time.Now()
		if pr.OnProgress != nil && now.Sub(pr.LastUpdate) >= 100*time.Millisecond {
			speed := float64(pr.Transferred-pr.LastBytes) / now.Sub(pr.LastUpdate).Seconds()
			pr.OnProgress(pr.Transferred, pr.Total, speed, now.Sub(pr.StartTime))
			pr.LastUpdate = now
			pr.LastBytes = pr.Transferred
		}
	}
	if err == io.EOF && !pr.done && pr.OnProgress != nil {
		pr.done = true
		elapsed := time.Since(pr.StartTime)
		pr.OnProgress(pr.Transferred, pr.Total, averageSpeed(pr.Transferred, elapsed), elapsed)
	}
	return
}

// Copy streams src into dst in ChunkSize pieces. A failed read or write
// aborts the copy; nothing is retried.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, fmt.Errorf("write after %d bytes: %w", written, werr)
			}
			if nw != nr {
				return written, fmt.Errorf("write after %d bytes: %w", written, io.ErrShortWrite)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, fmt.Errorf("read after %d bytes: %w", written, rerr)
		}
	}
}

// Stats summarises one finished transfer.
type Stats struct {
	Bytes   int64
	Elapsed time.Duration
}

// MBps returns the average throughput in MB/s.
func (s Stats) MBps() float64 {
	return averageSpeed(s.Bytes, s.Elapsed) / 1024 / 1024
}

func averageSpeed(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	return float64(n) / elapsed.Seconds()
}
