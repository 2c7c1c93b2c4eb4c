package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func renderJobTable(jobs []jobView) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "ITEM", "STAGE", "PROGRESS", "TRANSFER", "RESULT"})
	for _, job := range jobs {
		tw.AppendRow(table.Row{
			job.ID,
			job.ItemID,
			job.Stage,
			formatProgress(job),
			formatTransfer(job),
			formatResult(job),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

// formatProgress picks the stage-relevant fraction: transcode once it
// has begun, fetch otherwise.
func formatProgress(job jobView) string {
	fraction := job.FetchProgress
	label := "fetch"
	if job.TranscodeProgress > 0 {
		fraction = job.TranscodeProgress
		label = "transcode"
	}
	if fraction <= 0 {
		return "-"
	}
	return fmt.Sprintf("%s %.0f%%", label, fraction*100)
}

func formatTransfer(job jobView) string {
	if job.TotalBytes <= 0 {
		return "-"
	}
	out := fmt.Sprintf("%s / %s",
		humanize.Bytes(uint64(job.DownloadedBytes)),
		humanize.Bytes(uint64(job.TotalBytes)))
	if job.Speed > 0 {
		out += fmt.Sprintf(" @ %s/s", humanize.Bytes(uint64(job.Speed)))
	}
	return out
}

func formatResult(job jobView) string {
	switch {
	case job.Result != "" && job.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", job.Result, truncate(job.ErrorMessage, 60))
	case job.Result != "":
		return job.Result
	case job.Stage == "cooldown" && job.TryAfter != nil:
		return "retry " + humanize.Time(*job.TryAfter)
	default:
		return "-"
	}
}

func renderHealth(status *statusView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Queue: %d total, %d planned, %d running, %d cooldown, %d done (%d failed)\n",
		status.Queue.Total, status.Queue.Planned, status.Queue.Running,
		status.Queue.Cooldown, status.Queue.Done, status.Queue.Failed)
	fmt.Fprintf(&b, "Paused: %s\n", yesNo(status.Paused))
	fmt.Fprintf(&b, "Authorization in progress: %s", yesNo(status.AuthBusy))
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
