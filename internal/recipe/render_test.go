package recipe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSingleClipArgs_NoAudioInsertsNullSource(t *testing.T) {
	clip := RenderClip{ClipID: 1, Path: "/lib/proxies/1_abc.mp4", DurationMS: 5000, HasAudio: false}
	args := buildSingleClipArgs(clip, "", false, 0)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "anullsrc=r=48000:cl=stereo")
	assert.Contains(t, joined, "-map 0:v -map 1:a")
}

func TestBuildSingleClipArgs_WatermarkAppendsFilters(t *testing.T) {
	clip := RenderClip{ClipID: 1, Path: "/lib/proxies/1_abc.mp4", DurationMS: 5000, HasAudio: true}
	args := buildSingleClipArgs(clip, "", true, 0)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "DAD CAM - UNLICENSED")
	assert.Contains(t, joined, "scale=1280:720")
}

func TestBuildMultiClipArgs_ChainsXfadeAcrossClips(t *testing.T) {
	clips := []RenderClip{
		{ClipID: 1, Path: "/a.mp4", DurationMS: 4000, HasAudio: true},
		{ClipID: 2, Path: "/b.mp4", DurationMS: 4000, HasAudio: true},
		{ClipID: 3, Path: "/c.mp4", DurationMS: 4000, HasAudio: true},
	}
	args := buildMultiClipArgs(clips, "", false, 0.5, 0)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "xfade=transition=fade")
	assert.Contains(t, joined, "acrossfade=d=")
	assert.Equal(t, 3, strings.Count(joined, "-i "))
}

func TestTitleOverlayFilter_EscapesColonsAndQuotes(t *testing.T) {
	f := titleOverlayFilter(`it's: a title`, 5, 3)
	assert.Contains(t, f, `it\'s\: a title`)
}

func TestBuildXfadeChain_SingleClipReturnsBaseLabel(t *testing.T) {
	parts := []string{}
	label := buildXfadeChain(&parts, []RenderClip{{DurationMS: 1000}}, 0.5)
	assert.Equal(t, "v0", label)
	assert.Empty(t, parts)
}
