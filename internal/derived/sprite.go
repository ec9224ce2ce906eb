package derived

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dadcam.systems/core/pkg/ffmpeg"
)

const (
	defaultSpriteFPS       = 1
	defaultSpriteTileWidth = 160
	defaultSpriteMaxFrames = 120
	defaultFramesPerPage   = 60
	spriteColumns          = 10
)

// SpriteOptions configures sprite sheet generation (spec §4.8 sprite
// extras).
type SpriteOptions struct {
	FPS           int
	TileWidth     int
	MaxFrames     int
	FramesPerPage int
}

func (o SpriteOptions) withDefaults() SpriteOptions {
	if o.FPS == 0 {
		o.FPS = defaultSpriteFPS
	}
	if o.TileWidth == 0 {
		o.TileWidth = defaultSpriteTileWidth
	}
	if o.MaxFrames == 0 {
		o.MaxFrames = defaultSpriteMaxFrames
	}
	if o.FramesPerPage == 0 {
		o.FramesPerPage = defaultFramesPerPage
	}
	return o
}

// Page describes one sprite sheet image's tile layout.
type Page struct {
	Index         int
	PageCount     int
	FrameCount    int // frames on this page
	StartFrame    int // global frame index this page starts at
	TileWidth     int
	TileHeight    int
	Columns       int
	Rows          int
	IntervalMS    int64
	RelativePath  string
}

// tileHeight derives a 16:9 tile height from the configured tile width.
func tileHeight(tileWidth int) int {
	return tileWidth * 9 / 16
}

// layoutPages computes the page breakdown for a clip's duration
// without touching ffmpeg or the filesystem (spec §4.8: "split into
// multiple pages" once frame_count exceeds frames_per_page).
func layoutPages(durationMS int64, opts SpriteOptions) []Page {
	opts = opts.withDefaults()
	durationSecs := int((durationMS + 999) / 1000)
	frameCountTotal := durationSecs
	if frameCountTotal > opts.MaxFrames {
		frameCountTotal = opts.MaxFrames
	}
	if frameCountTotal < 1 {
		frameCountTotal = 1
	}

	pageCount := (frameCountTotal + opts.FramesPerPage - 1) / opts.FramesPerPage
	th := tileHeight(opts.TileWidth)

	var intervalMS int64
	if frameCountTotal > 1 {
		intervalMS = durationMS / int64(frameCountTotal)
	} else {
		intervalMS = durationMS
	}

	pages := make([]Page, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		start := i * opts.FramesPerPage
		framesThisPage := frameCountTotal - start
		if framesThisPage > opts.FramesPerPage {
			framesThisPage = opts.FramesPerPage
		}
		cols := spriteColumns
		if framesThisPage < cols {
			cols = framesThisPage
		}
		rows := (framesThisPage + cols - 1) / cols

		pages = append(pages, Page{
			Index:      i,
			PageCount:  pageCount,
			FrameCount: framesThisPage,
			StartFrame: start,
			TileWidth:  opts.TileWidth,
			TileHeight: th,
			Columns:    cols,
			Rows:       rows,
			IntervalMS: intervalMS,
		})
	}
	return pages
}

// GenerateSprites renders one sprite sheet per page, a companion VTT
// cue file, and a JSON layout descriptor, all under outBasePath's
// directory. outBasePath names the single-page (or first-page) image;
// multi-page outputs are named "<stem>_p<n><ext>" alongside it.
func GenerateSprites(ctx context.Context, sourcePath, outBasePath string, durationMS int64, opts SpriteOptions) ([]Page, error) {
	if err := os.MkdirAll(filepath.Dir(outBasePath), 0o755); err != nil {
		return nil, fmt.Errorf("create sprite dir: %w", err)
	}

	pages := layoutPages(durationMS, opts)
	ext := filepath.Ext(outBasePath)
	stem := strings.TrimSuffix(outBasePath, ext)

	for i := range pages {
		pagePath := outBasePath
		if len(pages) > 1 {
			pagePath = fmt.Sprintf("%s_p%d%s", stem, pages[i].Index, ext)
		}
		if err := renderSpritePage(ctx, sourcePath, pagePath, pages[i]); err != nil {
			return nil, fmt.Errorf("sprite page %d: %w", pages[i].Index, err)
		}
		pages[i].RelativePath = filepath.Base(pagePath)
	}

	return pages, nil
}

// renderSpritePage seeks to the page's first frame, samples one frame
// per tile interval, and tiles them into a single sheet image. Scale
// with force_original_aspect_ratio=increase plus a crop pins the tile
// to exact dimensions regardless of the source's aspect ratio.
func renderSpritePage(ctx context.Context, sourcePath, outPath string, page Page) error {
	tmpPath := outPath + ".tmp.jpg"

	startOffset := time.Duration(int64(page.StartFrame)*page.IntervalMS) * time.Millisecond
	intervalSecs := float64(page.IntervalMS) / 1000
	filter := fmt.Sprintf(
		"fps=1/%g,scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,tile=%dx%d",
		intervalSecs, page.TileWidth, page.TileHeight, page.TileWidth, page.TileHeight, page.Columns, page.Rows)

	result := ffmpeg.RunCapture(ctx, sourcePath, tmpPath,
		ffmpeg.Seek(startOffset),
		ffmpeg.Frames(1),
		ffmpeg.Filter(filter),
		ffmpeg.Quality(4),
	)
	if result.Err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg: %w", result.Err)
	}
	return finishAtomic(tmpPath, outPath)
}

// WriteVTT writes a WebVTT cue file covering every page's frames, each
// cue pointing at its page image with a "#xywh=x,y,w,h" fragment
// (spec §6 WebVTT output).
func WriteVTT(vttPath string, pages []Page, durationMS int64) error {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")

	for _, page := range pages {
		for i := 0; i < page.FrameCount; i++ {
			globalFrame := page.StartFrame + i
			startMS := int64(globalFrame) * page.IntervalMS
			endMS := int64(globalFrame+1) * page.IntervalMS
			if endMS > durationMS {
				endMS = durationMS
			}

			col := i % page.Columns
			row := i / page.Columns
			x := col * page.TileWidth
			y := row * page.TileHeight

			fmt.Fprintf(&b, "%s --> %s\n%s#xywh=%d,%d,%d,%d\n\n",
				formatVTTTime(startMS), formatVTTTime(endMS), page.RelativePath, x, y, page.TileWidth, page.TileHeight)
		}
	}

	return os.WriteFile(vttPath, []byte(b.String()), 0o644)
}

func formatVTTTime(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	millis := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

// layoutDescriptor is the companion JSON file describing a sprite
// sheet's page/tile geometry, for clients that want it without
// parsing the VTT.
type layoutDescriptor struct {
	PageCount int           `json:"pageCount"`
	TileWidth int           `json:"tileWidth"`
	Pages     []pageSummary `json:"pages"`
}

type pageSummary struct {
	Index      int    `json:"index"`
	Path       string `json:"path"`
	FrameCount int    `json:"frameCount"`
	Columns    int    `json:"columns"`
	Rows       int    `json:"rows"`
	IntervalMS int64  `json:"intervalMs"`
}

// WriteLayoutJSON writes the companion layout descriptor alongside the
// sprite sheet(s).
func WriteLayoutJSON(jsonPath string, pages []Page) error {
	desc := layoutDescriptor{
		PageCount: len(pages),
	}
	if len(pages) > 0 {
		desc.TileWidth = pages[0].TileWidth
	}
	for _, p := range pages {
		desc.Pages = append(desc.Pages, pageSummary{
			Index:      p.Index,
			Path:       p.RelativePath,
			FrameCount: p.FrameCount,
			Columns:    p.Columns,
			Rows:       p.Rows,
			IntervalMS: p.IntervalMS,
		})
	}
	out, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sprite layout: %w", err)
	}
	return os.WriteFile(jsonPath, out, 0o644)
}
