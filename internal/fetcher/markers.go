package fetcher

import (
	"regexp"
	"strings"

	"spool/internal/outcome"
)

var errorTokenRE = regexp.MustCompile(`\bERROR\b`)

var networkMarkers = []string{
	"NetworkError",
	"ConnectionError",
	"Connection reset",
	"Connection refused",
	"Network is unreachable",
	"Temporary failure in name resolution",
}

var timeoutMarkers = []string{
	"timed out",
	"TimeoutError",
}

var credentialMarkers = []string{
	"License request denied",
	"license_denied",
	"Customer not eligible",
	"not authorized",
}

var notFoundMarkers = []string{
	"not found in library",
	"No audiobook found",
}

// classifyLine tests one output line against the terminal-failure
// markers. The boolean is false for ordinary output.
func classifyLine(line string) (outcome.Kind, bool) {
	for _, marker := range networkMarkers {
		if strings.Contains(line, marker) {
			return outcome.KindNetworkError, true
		}
	}
	for _, marker := range timeoutMarkers {
		if strings.Contains(line, marker) {
			return outcome.KindTimeout, true
		}
	}
	for _, marker := range credentialMarkers {
		if strings.Contains(line, marker) {
			return outcome.KindNoCredentialYet, true
		}
	}
	for _, marker := range notFoundMarkers {
		if strings.Contains(line, marker) {
			return outcome.KindNotFound, true
		}
	}
	if errorTokenRE.MatchString(line) {
		return outcome.KindUnknownState, true
	}
	return "", false
}
