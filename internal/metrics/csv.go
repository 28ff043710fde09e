package metrics

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"netmend/internal/model"
)

var csvHeader = []string{
	"timestamp",
	"state",
	"checker",
	"latency_ms",
	"jitter_ms",
	"bandwidth_mbps",
	"score",
}

// WriteCSV writes samples to CSV with a fixed column order.
func WriteCSV(w io.Writer, items []model.Sample) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range items {
		if err := writer.Write(record(s)); err != nil {
			return err
		}
	}
	return writer.Error()
}

// AppendCSV appends samples to a CSV file, writing the header only when the
// file is new. Not safe for concurrent use across processes; the engine
// serializes its own appends.
func AppendCSV(path string, items []model.Sample) error {
	info, err := os.Stat(path)
	newFile := err != nil || info.Size() == 0

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if newFile {
		if err := writer.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, s := range items {
		if err := writer.Write(record(s)); err != nil {
			return err
		}
	}
	return writer.Error()
}

func record(s model.Sample) []string {
	return []string{
		s.Timestamp.UTC().Format(time.RFC3339Nano),
		string(s.State),
		s.Checker,
		strconv.FormatFloat(s.LatencyMs, 'f', 3, 64),
		strconv.FormatFloat(s.JitterMs, 'f', 3, 64),
		strconv.FormatFloat(s.BandwidthMbps, 'f', 3, 64),
		strconv.Itoa(s.Score),
	}
}
