package perfmetrics

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoggerAppends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "metrics")
	l := &Logger{Dir: dir}

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := l.Log(Record{Time: at, Site: "work", Direction: Upload, RemotePath: "/a.bin", Bytes: 2 << 20, Elapsed: 2 * time.Second}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Log(Record{Time: at, Site: "work", Direction: Download, RemotePath: "/b.bin", Err: errors.New("broken pipe")}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "Timestamp" {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{"2024-05-01T12:00:00Z", "pleskfm", "work", "upload", "/a.bin", "2097152", "2.00", "1.00", "2.00", "ok"}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("row 1 column %s = %q, want %q", CsvHeader[i], rows[1][i], want[i])
		}
	}
	if rows[2][9] != "broken pipe" || rows[2][7] != "0.00" {
		t.Errorf("row 2 = %v", rows[2])
	}
}
