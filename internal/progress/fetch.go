package progress

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/dustin/go-humanize"
)

// fetchLineRE matches the download tool's progress bar lines, e.g.
//
//	45%|████      | 12.3M/27.1M [00:05<00:08, 2.40MB/s]
var fetchLineRE = regexp.MustCompile(
	`(\d{1,3})%\|[^|]*\|\s*([0-9.]+)([kKMGT]?)i?B?/([0-9.]+)([kKMGT]?)i?B?\s*\[[^\[\]]*?,\s*([0-9.]+)([kKMGT]?)i?B/s\]`)

// FetchUpdate is one decoded fetch progress sample.
type FetchUpdate struct {
	Percent          int
	DownloadedBytes  int64
	TotalBytes       int64
	SpeedBytesPerSec float64
	Fraction         float64
}

// String renders the sample for status output.
func (u FetchUpdate) String() string {
	return fmt.Sprintf("%s / %s (%d%%) at %s/s",
		humanize.Bytes(uint64(u.DownloadedBytes)),
		humanize.Bytes(uint64(u.TotalBytes)),
		u.Percent,
		humanize.Bytes(uint64(u.SpeedBytesPerSec)))
}

// ParseFetchLine decodes one progress bar line. The boolean is false for
// lines that do not match the grammar.
func ParseFetchLine(line string) (FetchUpdate, bool) {
	m := fetchLineRE.FindStringSubmatch(line)
	if m == nil {
		return FetchUpdate{}, false
	}

	percent, err := strconv.Atoi(m[1])
	if err != nil || percent < 0 || percent > 100 {
		return FetchUpdate{}, false
	}
	downloaded, okDown := scaledBytes(m[2], m[3])
	total, okTotal := scaledBytes(m[4], m[5])
	speed, okSpeed := scaledBytes(m[6], m[7])
	if !okDown || !okTotal || !okSpeed {
		return FetchUpdate{}, false
	}

	return FetchUpdate{
		Percent:          percent,
		DownloadedBytes:  int64(downloaded),
		TotalBytes:       int64(total),
		SpeedBytesPerSec: speed,
		Fraction:         Clamp(float64(percent) / 100),
	}, true
}

func scaledBytes(value, unit string) (float64, bool) {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0, false
	}
	switch unit {
	case "", " ":
		return n, true
	case "k", "K":
		return n * 1000, true
	case "M":
		return n * 1000 * 1000, true
	case "G":
		return n * 1000 * 1000 * 1000, true
	case "T":
		return n * 1000 * 1000 * 1000 * 1000, true
	default:
		return 0, false
	}
}

// Clamp bounds a fraction to [0,1]; NaN collapses to 0.
func Clamp(fraction float64) float64 {
	if math.IsNaN(fraction) || fraction < 0 {
		return 0
	}
	if fraction > 1 {
		return 1
	}
	return fraction
}
