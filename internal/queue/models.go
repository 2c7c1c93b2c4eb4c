package queue

import (
	"time"

	"spool/internal/outcome"
)

// Job represents one queued fetch+transcode unit of work.
type Job struct {
	ID                int64
	ItemID            string
	InProgress        bool
	Done              bool
	FetchProgress     float64
	TranscodeProgress float64
	DownloadedBytes   int64
	TotalBytes        int64
	Speed             float64
	TryAfter          *time.Time
	Result            outcome.Kind
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Eligible reports whether the job may be claimed at the given instant.
func (j *Job) Eligible(now time.Time) bool {
	if j == nil || j.Done || j.InProgress {
		return false
	}
	if j.TryAfter == nil {
		return true
	}
	return !now.Before(*j.TryAfter)
}

// StageKey partitions a job for presentation: planned, running, cooldown,
// final.
func (j *Job) StageKey() string {
	switch {
	case j == nil:
		return ""
	case j.Done:
		return "final"
	case j.InProgress:
		return "running"
	case j.TryAfter != nil:
		return "cooldown"
	default:
		return "planned"
	}
}

// Item is the media asset a job operates on.
type Item struct {
	ID         string
	Title      string
	AccountID  string
	RuntimeSec int
	Fetched    bool
	Transcoded bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Account holds per-account authorization state. CredentialPresent gates
// fetch eligibility; only the authorization dialogue creates accounts.
type Account struct {
	ID                string
	Country           string
	AuthFile          string
	CredentialPresent bool
	CreatedAt         time.Time
}

// AttachmentKind classifies a registered fetch artifact.
type AttachmentKind string

const (
	AttachmentAudio     AttachmentKind = "audio"
	AttachmentCover     AttachmentKind = "cover"
	AttachmentCompanion AttachmentKind = "companion"
	AttachmentOther     AttachmentKind = "other"
)

// Attachment is a managed file produced by a completed fetch.
type Attachment struct {
	ID        int64
	ItemID    string
	Path      string
	Kind      AttachmentKind
	SizeBytes int64
	CreatedAt time.Time
}

// Chapter is an auxiliary record parsed from the fetch metadata file.
type Chapter struct {
	ID       int64
	ItemID   string
	Idx      int
	Title    string
	StartMS  int64
	LengthMS int64
}

// HealthSummary aggregates queue counts per lifecycle state.
type HealthSummary struct {
	Total    int
	Planned  int
	Running  int
	Cooldown int
	Done     int
	Failed   int
}
