package progress

import (
	"regexp"
	"strconv"
	"time"
)

// transcodeLineRE matches ffmpeg's stderr status lines, e.g.
//
//	size= 1200kB time=00:01:30.50 bitrate= 128.0kbits
var transcodeLineRE = regexp.MustCompile(`\btime=(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// TranscodeUpdate is one decoded transcode progress sample.
type TranscodeUpdate struct {
	Elapsed  time.Duration
	Fraction float64
}

// ParseTranscodeLine decodes the elapsed media time from one status line
// and relates it to the item's known runtime. Lines without a time field,
// or a non-positive runtime, yield no update.
func ParseTranscodeLine(line string, runtime time.Duration) (TranscodeUpdate, bool) {
	if runtime <= 0 {
		return TranscodeUpdate{}, false
	}
	m := transcodeLineRE.FindStringSubmatch(line)
	if m == nil {
		return TranscodeUpdate{}, false
	}

	hours, err1 := strconv.Atoi(m[1])
	minutes, err2 := strconv.Atoi(m[2])
	seconds, err3 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil || err3 != nil || minutes >= 60 || seconds >= 60 {
		return TranscodeUpdate{}, false
	}

	elapsed := time.Duration((float64(hours)*3600 + float64(minutes)*60 + seconds) * float64(time.Second))
	return TranscodeUpdate{
		Elapsed:  elapsed,
		Fraction: Clamp(elapsed.Seconds() / runtime.Seconds()),
	}, true
}
