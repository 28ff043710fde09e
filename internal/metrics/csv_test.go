package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"netmend/internal/model"
)

func TestAppendCSV_WritesHeaderOnce(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "samples.csv")

	s1 := model.Sample{Timestamp: time.Unix(1, 0).UTC(), State: model.StateOnline, Checker: "http", LatencyMs: 12.5, Score: 100}
	s2 := model.Sample{Timestamp: time.Unix(2, 0).UTC(), State: model.StateDegraded, Checker: "http", LatencyMs: 250, Score: 70}

	if err := AppendCSV(path, []model.Sample{s1}); err != nil {
		t.Fatalf("AppendCSV #1: %v", err)
	}
	if err := AppendCSV(path, []model.Sample{s2}); err != nil {
		t.Fatalf("AppendCSV #2: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d\n%s", len(lines), string(data))
	}
	if !strings.HasPrefix(lines[0], "timestamp,") {
		t.Fatalf("missing header: %q", lines[0])
	}
}

func TestReadCSV_RoundTrip(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "samples.csv")

	want := model.Sample{
		Timestamp:     time.Unix(42, 0).UTC(),
		State:         model.StateOnline,
		Checker:       "stun",
		LatencyMs:     33.25,
		JitterMs:      4.5,
		BandwidthMbps: 25,
		Score:         85,
	}
	if err := AppendCSV(path, []model.Sample{want}); err != nil {
		t.Fatalf("AppendCSV: %v", err)
	}

	got, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len=%d", len(got))
	}
	if !got[0].Timestamp.Equal(want.Timestamp) {
		t.Fatalf("timestamp=%v", got[0].Timestamp)
	}
	if got[0].State != want.State || got[0].Checker != want.Checker {
		t.Fatalf("state=%s checker=%s", got[0].State, got[0].Checker)
	}
	if got[0].LatencyMs != want.LatencyMs || got[0].Score != want.Score {
		t.Fatalf("latency=%v score=%d", got[0].LatencyMs, got[0].Score)
	}
}
