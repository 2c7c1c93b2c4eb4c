package progress_test

import (
	"math"
	"testing"
	"time"

	"spool/internal/progress"
)

func TestParseFetchLine(t *testing.T) {
	line := "45%|████      | 12.3M/27.1M [00:05<00:08, 2.40MB/s]"
	update, ok := progress.ParseFetchLine(line)
	if !ok {
		t.Fatalf("line did not match: %q", line)
	}
	if update.Percent != 45 {
		t.Errorf("percent = %d, want 45", update.Percent)
	}
	if update.DownloadedBytes != 12_300_000 {
		t.Errorf("downloaded = %d, want 12300000", update.DownloadedBytes)
	}
	if update.TotalBytes != 27_100_000 {
		t.Errorf("total = %d, want 27100000", update.TotalBytes)
	}
	if math.Abs(update.SpeedBytesPerSec-2_400_000) > 1 {
		t.Errorf("speed = %f, want 2400000", update.SpeedBytesPerSec)
	}
	if math.Abs(update.Fraction-0.45) > 1e-9 {
		t.Errorf("fraction = %f, want 0.45", update.Fraction)
	}
}

func TestParseFetchLineVariants(t *testing.T) {
	cases := []struct {
		name string
		line string
		want bool
	}{
		{"zero percent", "0%|          | 0.00/27.1M [00:00<?, ?B/s]", false},
		{"complete", "100%|██████████| 27.1M/27.1M [00:13<00:00, 2.10MB/s]", true},
		{"kilobyte units", "12%|█▎        | 340.0k/2.8M [00:01<00:09, 280.5kB/s]", true},
		{"plain text", "Downloading The Example Book...", false},
		{"empty", "", false},
		{"error output", "ERROR: failed to resolve license", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := progress.ParseFetchLine(tc.line); ok != tc.want {
				t.Fatalf("match = %v, want %v for %q", ok, tc.want, tc.line)
			}
		})
	}
}

func TestParseTranscodeLine(t *testing.T) {
	line := "size= 1200kB time=00:01:30.50 bitrate= 128.0kbits"
	update, ok := progress.ParseTranscodeLine(line, 7200*time.Second)
	if !ok {
		t.Fatalf("line did not match: %q", line)
	}
	if math.Abs(update.Fraction-0.0126) > 0.0001 {
		t.Errorf("fraction = %f, want ~0.0126", update.Fraction)
	}
	if update.Elapsed != 90500*time.Millisecond {
		t.Errorf("elapsed = %s, want 1m30.5s", update.Elapsed)
	}
}

func TestParseTranscodeLineClampsAndRejects(t *testing.T) {
	// Elapsed beyond the declared runtime clamps to 1.
	update, ok := progress.ParseTranscodeLine("time=02:30:00.00 bitrate=N/A", time.Hour)
	if !ok || update.Fraction != 1 {
		t.Fatalf("overlong elapsed: ok=%v fraction=%f", ok, update.Fraction)
	}

	if _, ok := progress.ParseTranscodeLine("size= 1200kB time=00:01:30.50", 0); ok {
		t.Fatal("zero runtime produced an update")
	}
	if _, ok := progress.ParseTranscodeLine("frame= 2041 fps= 25 q=28.0", time.Hour); ok {
		t.Fatal("line without time field produced an update")
	}
	if _, ok := progress.ParseTranscodeLine("time=00:99:00.00", time.Hour); ok {
		t.Fatal("malformed minutes produced an update")
	}
}

func TestClamp(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.5, 0}, {0, 0}, {0.42, 0.42}, {1, 1}, {3.7, 1}, {math.NaN(), 0},
	}
	for _, tc := range cases {
		if got := progress.Clamp(tc.in); got != tc.want {
			t.Errorf("Clamp(%f) = %f, want %f", tc.in, got, tc.want)
		}
	}
}
