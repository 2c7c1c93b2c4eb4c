// Package deps reports the availability of the external tools spool
// shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"spool/internal/config"
)

// Requirement defines an external binary spool relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// FromConfig derives the tool requirements for the configured pipeline.
func FromConfig(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{
			Name:        "Downloader",
			Command:     cfg.Fetcher.Binary,
			Description: "Fetches audiobooks and registers accounts",
		},
		{
			Name:        "Transcoder",
			Command:     cfg.Transcoder.Binary,
			Description: "Converts fetched audio into library files",
		},
	}
}

// Check evaluates the requirements and reports availability.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if resolved, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		} else {
			status.Command = resolved
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// Missing filters statuses down to unavailable required tools.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
