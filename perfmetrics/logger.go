package perfmetrics

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// FileName is the CSV file transfers are appended to.
const FileName = "transfers.csv"

// CsvHeader defines the CSV header for performance logging
var CsvHeader = []string{"Timestamp", "Client", "Site", "Direction", "RemotePath", "Bytes", "FileSizeMB", "ThroughputMBps", "TimeSec", "Status"}

// Direction of a transfer.
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// Record is one finished or failed transfer.
type Record struct {
	Time       time.Time
	Site       string
	Direction  Direction
	RemotePath string
	Bytes      int64
	Elapsed    time.Duration
	Err        error
}

func (r Record) row(client string) []string {
	secs := r.Elapsed.Seconds()
	throughput := 0.0
	if secs > 0 {
		throughput = float64(r.Bytes) / 1024 / 1024 / secs
	}
	status := "ok"
	if r.Err != nil {
		status = r.Err.Error()
	}
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return []string{
		ts.Format(time.RFC3339),
		client,
		r.Site,
		string(r.Direction),
		r.RemotePath,
		strconv.FormatInt(r.Bytes, 10),
		strconv.FormatFloat(float64(r.Bytes)/1024/1024, 'f', 2, 64),
		strconv.FormatFloat(throughput, 'f', 2, 64),
		strconv.FormatFloat(secs, 'f', 2, 64),
		status,
	}
}

// Logger appends transfer records to dir/transfers.csv.
type Logger struct {
	Dir    string
	Client string
}

// DefaultDir returns ~/.pleskfm/perfmetrics.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".pleskfm", "perfmetrics"), nil
}

// Log appends rec, writing the header first when the file is new.
func (l *Logger) Log(rec Record) error {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", l.Dir, err)
	}
	filePath := filepath.Join(l.Dir, FileName)

	// Check if file exists to determine if we need to write header
	_, statErr := os.Stat(filePath)
	fileExists := !errors.Is(statErr, fs.ErrNotExist)

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if !fileExists {
		if err := writer.Write(CsvHeader); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	client := l.Client
	if client == "" {
		client = "pleskfm"
	}
	if err := writer.Write(rec.row(client)); err != nil {
		return fmt.Errorf("failed to write CSV record: %w", err)
	}

	// Ensure data is written to disk
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV writer: %w", err)
	}
	return file.Close()
}
