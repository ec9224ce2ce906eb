// Package metadata runs the video probe and EXIF extraction tools and
// resolves the recorded-at timestamp precedence chain from spec §4.4.
package metadata

import (
	"context"
	"path/filepath"
	"regexp"
	"time"

	"dadcam.systems/core/pkg/ffmpeg"
)

// Extraction is the combined result of probing and EXIF-reading one
// source file, matching the sidecar's extractionStatus/metadataSnapshot
// shape from spec §6.
type Extraction struct {
	Probe       *ffmpeg.ProbeResult
	ProbeOK     bool
	ProbeError  string
	Exif        *ExifResult
	RecordedAt        time.Time
	TimestampSource   string // "metadata" | "folder" | "filesystem"
	TimestampEstimated bool
}

const (
	TimestampSourceMetadata   = "metadata"
	TimestampSourceFolder     = "folder"
	TimestampSourceFilesystem = "filesystem"
)

// Extract runs both tools against path. Partial success is tolerated:
// one tool failing does not abort extraction (spec §4.4).
func Extract(ctx context.Context, path string, fileModTime time.Time) *Extraction {
	ext := &Extraction{}

	if probe, err := ffmpeg.Probe(ctx, path); err == nil {
		ext.Probe = probe
		ext.ProbeOK = true
	} else {
		ext.ProbeError = err.Error()
	}

	if exif, err := ExtractExif(ctx, path); err == nil {
		ext.Exif = exif
	}

	ext.resolveTimestamp(path, fileModTime)
	return ext
}

// resolveTimestamp applies the precedence chain: tool-reported capture
// time, then a date parsed from the parent folder name, then source
// mtime (marked estimated).
func (e *Extraction) resolveTimestamp(path string, fileModTime time.Time) {
	if e.Exif != nil && e.Exif.Success && e.Exif.Core.RecordedAt != "" {
		if t, ok := parseExifDate(e.Exif.Core.RecordedAt); ok {
			e.RecordedAt = t
			e.TimestampSource = TimestampSourceMetadata
			return
		}
	}

	if t, ok := parseFolderDate(filepath.Dir(path)); ok {
		e.RecordedAt = t
		e.TimestampSource = TimestampSourceFolder
		e.TimestampEstimated = true
		return
	}

	e.RecordedAt = fileModTime
	e.TimestampSource = TimestampSourceFilesystem
	e.TimestampEstimated = true
}

// exiftool -n dates look like "2024:06:01 12:30:00" (no timezone) or
// with an offset suffix; both are accepted.
var exifDateLayouts = []string{
	"2006:01:02 15:04:05-07:00",
	"2006:01:02 15:04:05",
}

func parseExifDate(raw string) (time.Time, bool) {
	for _, layout := range exifDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var folderDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})[-_](\d{2})[-_](\d{2})`),
	regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`),
}

func parseFolderDate(folder string) (time.Time, bool) {
	base := filepath.Base(folder)
	for _, re := range folderDatePatterns {
		m := re.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		layout := "2006-01-02"
		candidate := m[1] + "-" + m[2] + "-" + m[3]
		if t, err := time.Parse(layout, candidate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
