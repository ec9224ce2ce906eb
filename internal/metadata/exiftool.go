package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"dadcam.systems/core/internal/dadcamerr"
	"dadcam.systems/core/internal/tools"
)

// ExifCore is the parsed core EXIF field set, preferring the EXIF tag
// group over QuickTime/container groups.
type ExifCore struct {
	RecordedAt     string
	CameraMake     string
	CameraModel    string
	SerialNumber   string
	GPSLatitude    *float64
	GPSLongitude   *float64
}

// ExifExtended holds sidecar-only extended fields, not stored on the
// clip row.
type ExifExtended struct {
	SensorType      string
	FocalLength     *float64
	FocalLength35mm *float64
	LensModel       string
	Megapixels      *float64
	Rotation        *float64
}

// ExifResult is one tool's full extraction outcome: raw dump plus
// parsed fields plus success/exit-code/error bookkeeping, per spec §4.4.
type ExifResult struct {
	RawDump  json.RawMessage
	Core     ExifCore
	Extended ExifExtended
	Success  bool
	ExitCode int
	Error    string
}

// ExtractExif runs exiftool in full-dump mode (-j -G -n) and parses the
// grouped output.
func ExtractExif(ctx context.Context, path string) (*ExifResult, error) {
	cmd := exec.CommandContext(ctx, tools.ExiftoolPath(), "-j", "-G", "-n", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if runErr != nil {
		return &ExifResult{
			Success:  false,
			ExitCode: exitCode,
			Error:    stderr.String(),
		}, nil
	}

	var arr []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &arr); err != nil {
		return nil, dadcamerr.NewIOError(path, err)
	}
	var dump map[string]any
	if len(arr) > 0 {
		dump = arr[0]
	} else {
		dump = map[string]any{}
	}

	raw, _ := json.Marshal(dump)

	return &ExifResult{
		RawDump:  raw,
		Core:     parseExifCore(dump),
		Extended: parseExifExtended(dump),
		Success:  true,
		ExitCode: exitCode,
	}, nil
}

func parseExifCore(dump map[string]any) ExifCore {
	var core ExifCore
	date := firstGroupedString(dump, "DateTimeOriginal")
	if date == "" {
		date = firstGroupedString(dump, "CreateDate")
	}
	if date == "" {
		date = firstGroupedString(dump, "MediaCreateDate")
	}
	core.RecordedAt = date

	core.CameraMake = firstGroupedString(dump, "Make")
	core.CameraModel = firstGroupedString(dump, "Model")

	core.SerialNumber = firstGroupedString(dump, "SerialNumber")
	if core.SerialNumber == "" {
		core.SerialNumber = firstGroupedString(dump, "InternalSerialNumber")
	}

	core.GPSLatitude = firstGroupedNumber(dump, "GPSLatitude")
	core.GPSLongitude = firstGroupedNumber(dump, "GPSLongitude")
	return core
}

func parseExifExtended(dump map[string]any) ExifExtended {
	var ext ExifExtended
	ext.SensorType = firstGroupedString(dump, "ImageSensorType")
	ext.FocalLength = firstGroupedNumber(dump, "FocalLength")
	ext.FocalLength35mm = firstGroupedNumber(dump, "FocalLengthIn35mmFormat")
	ext.LensModel = firstGroupedString(dump, "LensModel")
	ext.Megapixels = firstGroupedNumber(dump, "Megapixels")
	ext.Rotation = firstGroupedNumber(dump, "Rotation")
	return ext
}

// firstGroupedString searches an exiftool -G dump (keys like
// "EXIF:Make") for tag, preferring the EXIF group, falling back to any
// group that carries it.
func firstGroupedString(dump map[string]any, tag string) string {
	if v, ok := dump["EXIF:"+tag]; ok {
		if s := toString(v); s != "" {
			return s
		}
	}
	for k, v := range dump {
		if strings.HasSuffix(k, ":"+tag) {
			if s := toString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstGroupedNumber(dump map[string]any, tag string) *float64 {
	s := firstGroupedString(dump, tag)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
