package transfer

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"
)

func TestCopy(t *testing.T) {
	src := strings.Repeat("x", 3*ChunkSize+17)
	var dst bytes.Buffer
	n, err := Copy(&dst, strings.NewReader(src))
	if err != nil || n != int64(len(src)) || dst.String() != src {
		t.Fatalf("Copy = %d, %v", n, err)
	}
}

type failWriter struct{ after int }

func (w *failWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("disk full")
	}
	w.after--
	return len(p), nil
}

func TestCopyStopsOnError(t *testing.T) {
	src := strings.Repeat("x", 4*ChunkSize)
	n, err := Copy(&failWriter{after: 1}, strings.NewReader(src))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v", err)
	}
	if n != ChunkSize {
		t.Errorf("written = %d, want %d", n, ChunkSize)
	}

	boom := errors.New("connection reset")
	_, err = Copy(io.Discard, iotest.ErrReader(boom))
	if !errors.Is(err, boom) {
		t.Errorf("read error = %v", err)
	}
}

func TestProgressReaderReportsCompletion(t *testing.T) {
	var calls []int64
	var lastTotal int64
	r := NewProgressReader(strings.NewReader("hello world"), 11, func(n, total int64, speed float64, elapsed time.Duration) {
		calls = append(calls, n)
		lastTotal = total
	})
	if _, err := io.ReadAll(r); err != nil {
		t.Fatal(err)
	}
	if len(calls) == 0 || calls[len(calls)-1] != 11 || lastTotal != 11 {
		t.Errorf("progress calls = %v, total %d", calls, lastTotal)
	}
	// A second EOF does not report again.
	buf := make([]byte, 4)
	r.Read(buf)
	if calls[len(calls)-1] != 11 || len(calls) > 2 {
		t.Errorf("progress calls after EOF = %v", calls)
	}

	plain := strings.NewReader("x")
	if NewProgressReader(plain, 1, nil) != io.Reader(plain) {
		t.Error("nil callback should return the reader unchanged")
	}
}

func TestBar(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf, "put a.bin")
	b.Update(512, 1024, 2*1024*1024, 3*time.Second)
	b.Finish()
	out := buf.String()
	for _, want := range []string{"\rput a.bin: [", "50.0%", "2.00 MB/s", "Time: 3s", "\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("bar output %q missing %q", out, want)
		}
	}

	buf.Reset()
	b.Update(1536, -1, 0, 0)
	if !strings.Contains(buf.String(), "1.5 KB") {
		t.Errorf("unknown-size output = %q", buf.String())
	}
}

func TestFormatBytes(t *testing.T) {
	for n, want := range map[int64]string{
		0:           "0 B",
		1023:        "1023 B",
		1024:        "1.0 KB",
		5 << 20:     "5.0 MB",
		3 << 30 / 2: "1.5 GB",
	} {
		if got := formatBytes(n); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestStats(t *testing.T) {
	s := Stats{Bytes: 10 << 20, Elapsed: 2 * time.Second}
	if got := s.MBps(); got != 5 {
		t.Errorf("MBps = %v", got)
	}
}
