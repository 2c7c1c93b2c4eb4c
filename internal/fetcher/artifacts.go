package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spool/internal/queue"
)

// Extensions that are protected or intermediate source material; never
// registered as attachments.
var skippedExtensions = map[string]struct{}{
	".aax":     {},
	".aaxc":    {},
	".voucher": {},
	".part":    {},
	".tmp":     {},
}

func classifyExtension(ext string) queue.AttachmentKind {
	switch strings.ToLower(ext) {
	case ".m4b", ".m4a", ".mp3", ".flac", ".opus", ".ogg":
		return queue.AttachmentAudio
	case ".jpg", ".jpeg", ".png":
		return queue.AttachmentCover
	case ".pdf", ".epub":
		return queue.AttachmentCompanion
	default:
		return queue.AttachmentOther
	}
}

// registerArtifacts enumerates the work directory after a successful
// fetch, records each kept file as an attachment, and loads chapter
// markers from the tool's metadata file when present. At least one audio
// file must exist.
func (c *Client) registerArtifacts(ctx context.Context, item *queue.Item, workDir string) error {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return fmt.Errorf("read work dir: %w", err)
	}

	audioCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if _, skip := skippedExtensions[ext]; skip {
			continue
		}
		fullPath := filepath.Join(workDir, name)

		if ext == ".json" {
			if chapters, ok := parseChapterFile(fullPath, item.ID); ok {
				if err := c.store.ReplaceChapters(ctx, item.ID, chapters); err != nil {
					return fmt.Errorf("store chapters: %w", err)
				}
			}
			continue
		}

		kind := classifyExtension(ext)
		if kind == queue.AttachmentAudio {
			audioCount++
		}
		info, err := entry.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		if err := c.store.AddAttachment(ctx, &queue.Attachment{
			ItemID:    item.ID,
			Path:      fullPath,
			Kind:      kind,
			SizeBytes: size,
		}); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}

	if audioCount == 0 {
		return fmt.Errorf("no audio file produced in %s", workDir)
	}
	return nil
}

// chapterFile mirrors the metadata layout the download tool writes next
// to the audio file.
type chapterFile struct {
	ContentMetadata struct {
		ChapterInfo struct {
			Chapters []struct {
				Title         string `json:"title"`
				StartOffsetMS int64  `json:"start_offset_ms"`
				LengthMS      int64  `json:"length_ms"`
			} `json:"chapters"`
		} `json:"chapter_info"`
	} `json:"content_metadata"`
}

func parseChapterFile(path, itemID string) ([]queue.Chapter, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var parsed chapterFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, false
	}
	source := parsed.ContentMetadata.ChapterInfo.Chapters
	if len(source) == 0 {
		return nil, false
	}
	chapters := make([]queue.Chapter, 0, len(source))
	for i, ch := range source {
		chapters = append(chapters, queue.Chapter{
			ItemID:   itemID,
			Idx:      i,
			Title:    ch.Title,
			StartMS:  ch.StartOffsetMS,
			LengthMS: ch.LengthMS,
		})
	}
	return chapters, true
}
