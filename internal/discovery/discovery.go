// Package discovery enumerates media files and their sidecars under a
// source root in a stable, path-sorted order.
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dadcam.systems/core/internal/dadcamerr"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mts": true, ".m2ts": true,
	".mkv": true, ".wmv": true, ".3gp": true,
}

var audioExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".aac": true,
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".heic": true,
}

var mediaExtensions = func() map[string]bool {
	m := make(map[string]bool, len(videoExtensions)+len(audioExtensions)+len(imageExtensions))
	for ext := range videoExtensions {
		m[ext] = true
	}
	for ext := range audioExtensions {
		m[ext] = true
	}
	for ext := range imageExtensions {
		m[ext] = true
	}
	return m
}()

// MediaKind classifies a media file's extension as "video", "audio",
// or "image", matching the allowlists Walk uses to discover it. Returns
// "" for an extension Walk would not have treated as media.
func MediaKind(path string) string {
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case videoExtensions[ext]:
		return "video"
	case audioExtensions[ext]:
		return "audio"
	case imageExtensions[ext]:
		return "image"
	default:
		return ""
	}
}

var sidecarExtensions = map[string]bool{
	".thm": true, ".xml": true, ".lrf": true, ".json": true,
}

// Entry is one discovered file: either a media original or a sidecar
// that shares a stem with an already-discovered media file.
type Entry struct {
	RelativePath string
	AbsolutePath string
	Size         int64
	ModTime      time.Time
	IsSidecar    bool
	// ParentRelativePath is set for sidecars and names the owning
	// media entry's RelativePath.
	ParentRelativePath string
}

// resolveEntry returns the true stat info for path, following a
// symlink to its target when d is a symlink. The returned resolved
// path is the symlink target (via os.Readlink) for symlinks, or path
// itself otherwise; callers use it to detect and refuse to descend
// into symlinked directories, since os.Stat alone can't distinguish a
// directory reached via a symlink from one reached directly and
// filepath.WalkDir doesn't protect against symlink cycles.
func resolveEntry(path string, d os.DirEntry) (resolved string, info os.FileInfo, err error) {
	if d.Type()&os.ModeSymlink == 0 {
		info, err = d.Info()
		return path, info, err
	}
	target, err := os.Readlink(path)
	if err != nil {
		return path, nil, dadcamerr.NewIOError(path, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	info, err = os.Stat(target)
	if err != nil {
		return path, nil, dadcamerr.NewIOError(path, err)
	}
	return target, info, nil
}

// Walk enumerates root and returns media entries followed by their
// sidecars, both in path-sorted order. Symlinked media files are
// followed and reported under the size/mtime of their resolved
// target; symlinked directories are not descended into, to avoid
// cycles.
func Walk(root string) ([]Entry, error) {
	type rawFile struct {
		rel  string
		abs  string
		size int64
		mod  time.Time
	}
	var media, sidecars []rawFile

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		resolved, info, statErr := resolveEntry(path, d)
		if statErr != nil {
			return statErr
		}
		if info.IsDir() {
			if path != root && resolved != path {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		ext := strings.ToLower(filepath.Ext(path))
		rf := rawFile{rel: rel, abs: path, size: info.Size(), mod: info.ModTime()}
		switch {
		case mediaExtensions[ext]:
			media = append(media, rf)
		case sidecarExtensions[ext]:
			sidecars = append(sidecars, rf)
		}
		return nil
	})
	if err != nil {
		return nil, dadcamerr.NewIOError(root, err)
	}

	sort.Slice(media, func(i, j int) bool { return media[i].rel < media[j].rel })
	sort.Slice(sidecars, func(i, j int) bool { return sidecars[i].rel < sidecars[j].rel })

	stemOf := func(rel string) string {
		ext := filepath.Ext(rel)
		return rel[:len(rel)-len(ext)]
	}
	stemToMedia := make(map[string]string, len(media))
	for _, m := range media {
		stemToMedia[stemOf(m.rel)] = m.rel
	}

	entries := make([]Entry, 0, len(media)+len(sidecars))
	for _, m := range media {
		entries = append(entries, Entry{
			RelativePath: m.rel,
			AbsolutePath: m.abs,
			Size:         m.size,
			ModTime:      m.mod,
		})
	}
	for _, s := range sidecars {
		parent, ok := stemToMedia[stemOf(s.rel)]
		if !ok {
			continue // orphan sidecar, no owning media file discovered
		}
		entries = append(entries, Entry{
			RelativePath:       s.rel,
			AbsolutePath:       s.abs,
			Size:               s.size,
			ModTime:            s.mod,
			IsSidecar:          true,
			ParentRelativePath: parent,
		})
	}

	return entries, nil
}

// ManifestTuple is the (path, size, mtime) triple used by the rescan
// diff in spec §4.6 S3.
type ManifestTuple struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Diff compares a baseline manifest against a fresh rescan, returning
// the set of added paths, removed paths, and paths whose size changed.
func Diff(baseline, rescan []ManifestTuple) (added, removed, sizeChanged []string) {
	baseByPath := make(map[string]ManifestTuple, len(baseline))
	for _, b := range baseline {
		baseByPath[b.Path] = b
	}
	rescanByPath := make(map[string]ManifestTuple, len(rescan))
	for _, r := range rescan {
		rescanByPath[r.Path] = r
	}

	for path, r := range rescanByPath {
		b, ok := baseByPath[path]
		if !ok {
			added = append(added, path)
			continue
		}
		if b.Size != r.Size {
			sizeChanged = append(sizeChanged, path)
		}
	}
	for path := range baseByPath {
		if _, ok := rescanByPath[path]; !ok {
			removed = append(removed, path)
		}
	}

	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(sizeChanged)
	return added, removed, sizeChanged
}

// VolumeInfo describes the source device/volume an ingest ran against.
type VolumeInfo struct {
	Serial   string
	Label    string
	Mount    string
	Capacity int64
}

// InspectVolume reports basic volume facts for the filesystem
// containing root. Best-effort: callers must tolerate empty fields on
// platforms or mounts where this information isn't exposed.
func InspectVolume(root string) (VolumeInfo, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return VolumeInfo{}, dadcamerr.NewIOError(root, err)
	}
	return VolumeInfo{Mount: abs, Label: filepath.Base(abs)}, nil
}
