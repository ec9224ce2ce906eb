package ingest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"dadcam.systems/core/internal/camera"
	"dadcam.systems/core/internal/dadcamerr"
	"dadcam.systems/core/internal/discovery"
	"dadcam.systems/core/internal/metadata"
	"lukechampine.com/blake3"
)

// sidecarDoc is the on-disk shape written alongside each ingested
// clip, per spec §6. Field names are part of the on-disk format and
// must not be renamed without a migration plan.
type sidecarDoc struct {
	OriginalFilePath string          `json:"originalFilePath"`
	FileHashBlake3   string          `json:"fileHashBlake3"`
	RawExifDump      json.RawMessage `json:"rawExifDump,omitempty"`
	RawFfprobe       map[string]any  `json:"rawFfprobe,omitempty"`
	ExtractionStatus extractionStatus `json:"extractionStatus"`
	MetadataSnapshot metadataSnapshot `json:"metadataSnapshot"`
	ExtendedMetadata metadata.ExifExtended `json:"extendedMetadata"`
	CameraMatch      cameraMatchDoc   `json:"cameraMatch"`
	MatchAudit       camera.MatchAudit `json:"matchAudit"`
	IngestTimestamps ingestTimestamps `json:"ingestTimestamps"`
	DerivedAssetPaths map[string]string `json:"derivedAssetPaths"`
	RentalAudit      json.RawMessage `json:"rentalAudit,omitempty"`
}

type extractionStatus struct {
	Status          string `json:"status"` // "extracted" | "partial" | "failed"
	ProbeSuccess    bool   `json:"probeSuccess"`
	ProbeError      string `json:"probeError,omitempty"`
	ExifSuccess     bool   `json:"exifSuccess"`
	ExifExitCode    int    `json:"exifExitCode"`
	ExifError       string `json:"exifError,omitempty"`
	PipelineVersion int    `json:"pipelineVersion"`
	ExtractedAt     time.Time `json:"extractedAt"`
}

type metadataSnapshot struct {
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FPS             float64 `json:"fps"`
	Codec           string  `json:"codec"`
	Container       string  `json:"container"`
	AudioCodec      string  `json:"audioCodec"`
	DurationMS      int64   `json:"durationMs"`
	RecordedAt      time.Time `json:"recordedAt"`
	TimestampSource string  `json:"timestampSource"`
	TimestampEstimated bool `json:"timestampEstimated"`
}

type cameraMatchDoc struct {
	ProfileType string  `json:"profileType"`
	ProfileRef  string  `json:"profileRef"`
	DeviceUUID  string  `json:"deviceUuid,omitempty"`
	Confidence  float64 `json:"confidence"`
	MatchSource string  `json:"matchSource"`
}

type ingestTimestamps struct {
	DiscoveredAt time.Time `json:"discoveredAt"`
	CopiedAt     time.Time `json:"copiedAt"`
	IndexedAt    time.Time `json:"indexedAt"`
}

// writeSidecar is S2.l: write the per-clip JSON sidecar under
// p.SidecarDir, keyed by the original asset's relative path with its
// extension swapped for ".json" (the key internal/rematch and the
// daemon read back from).
func (p *Pipeline) writeSidecar(relativePath string, ext *metadata.Extraction, audit camera.MatchAudit) error {
	now := time.Now()

	status := "extracted"
	switch {
	case !ext.ProbeOK && (ext.Exif == nil || !ext.Exif.Success):
		status = "failed"
	case !ext.ProbeOK || ext.Exif == nil || !ext.Exif.Success:
		status = "partial"
	}

	doc := sidecarDoc{
		OriginalFilePath: relativePath,
		ExtractionStatus: extractionStatus{
			Status:          status,
			ProbeSuccess:    ext.ProbeOK,
			ProbeError:      ext.ProbeError,
			PipelineVersion: p.PipelineVersn,
			ExtractedAt:     now,
		},
		MetadataSnapshot: metadataSnapshot{
			RecordedAt:         ext.RecordedAt,
			TimestampSource:    ext.TimestampSource,
			TimestampEstimated: ext.TimestampEstimated,
		},
		CameraMatch: cameraMatchDoc{
			ProfileType: string(audit.Winner.ProfileType),
			ProfileRef:  audit.Winner.Slug,
			Confidence:  audit.Winner.Confidence,
			MatchSource: audit.Winner.MatchSource,
		},
		MatchAudit: audit,
		IngestTimestamps: ingestTimestamps{
			DiscoveredAt: now,
			CopiedAt:     now,
			IndexedAt:    now,
		},
		DerivedAssetPaths: map[string]string{
			"thumb":  derivedRelPath(relativePath, "thumb", "jpg"),
			"proxy":  derivedRelPath(relativePath, "proxy", "mp4"),
			"sprite": derivedRelPath(relativePath, "sprite", "jpg"),
		},
	}

	if ext.Exif != nil {
		doc.RawExifDump = ext.Exif.RawDump
		doc.ExtendedMetadata = ext.Exif.Extended
		doc.ExtractionStatus.ExifSuccess = ext.Exif.Success
		doc.ExtractionStatus.ExifExitCode = ext.Exif.ExitCode
		doc.ExtractionStatus.ExifError = ext.Exif.Error
	}

	if ext.ProbeOK && ext.Probe != nil {
		doc.RawFfprobe = ext.Probe.RawJSON
		doc.MetadataSnapshot.Width = ext.Probe.Width
		doc.MetadataSnapshot.Height = ext.Probe.Height
		doc.MetadataSnapshot.FPS = ext.Probe.FPS
		doc.MetadataSnapshot.Codec = ext.Probe.VideoCodec
		doc.MetadataSnapshot.Container = ext.Probe.FormatName
		doc.MetadataSnapshot.AudioCodec = ext.Probe.AudioCodec
		doc.MetadataSnapshot.DurationMS = int64(ext.Probe.Duration * 1000)
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}

	sidecarPath := filepath.Join(p.SidecarDir, sidecarRelPath(relativePath))
	if err := os.MkdirAll(filepath.Dir(sidecarPath), 0o755); err != nil {
		return dadcamerr.NewIOError(filepath.Dir(sidecarPath), err)
	}
	if err := os.WriteFile(sidecarPath, out, 0o644); err != nil {
		return dadcamerr.NewIOError(sidecarPath, err)
	}
	return nil
}

func sidecarRelPath(relativePath string) string {
	ext := filepath.Ext(relativePath)
	return relativePath[:len(relativePath)-len(ext)] + ".json"
}

func derivedRelPath(relativePath, role, ext string) string {
	base := filepath.Ext(relativePath)
	stem := relativePath[:len(relativePath)-len(base)]
	return stem + "." + role + "." + ext
}

// canonicalTupleHash computes a deterministic hash over a set of
// manifest tuples, independent of enumeration order (spec §4.6 S3).
func canonicalTupleHash(tuples []discovery.ManifestTuple) string {
	sorted := make([]discovery.ManifestTuple, len(tuples))
	copy(sorted, tuples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	h := blake3.New(32, nil)
	for _, t := range sorted {
		fmt.Fprintf(h, "%s\x00%d\x00%d\x00", t.Path, t.Size, t.ModTime.UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}
