package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEBUR128Stats(t *testing.T) {
	output := `
		[Parsed_ebur128_0 @ 0x7f9] Summary:
		  Integrated loudness:
		    I:         -23.0 LUFS
		    Threshold: -33.0 LUFS
		  Loudness range:
		    LRA:         8.0 LU
		    Threshold:  -43.0 LUFS
		  True peak:
		    True peak:        -3.0 dBTP
	`
	stats := parseEBUR128(output)

	assert.True(t, stats.hasAudio)
	assert.InDelta(t, -23.0, stats.integratedLUFS, 0.1)
	assert.InDelta(t, 8.0, stats.lra, 0.1)
	assert.InDelta(t, -3.0, stats.truePeak, 0.1)
}

func TestComputeAudioScore_NoAudio(t *testing.T) {
	score, reason := computeAudioScore(audioStats{})

	assert.InDelta(t, 0.3, score, 0.01)
	assert.Equal(t, ReasonAudioNone, reason)
}

func TestComputeAudioScore_GoodLoudness(t *testing.T) {
	stats := audioStats{
		integratedLUFS: -23.0, haveLUFS: true,
		lra: 8.0, haveLRA: true,
		truePeak: -3.0, haveTruePeak: true,
		hasAudio: true,
	}
	score, reason := computeAudioScore(stats)

	assert.Greater(t, score, 0.8)
	assert.Equal(t, ReasonAudioGood, reason)
}

func TestComputeAudioScore_TooQuiet(t *testing.T) {
	stats := audioStats{
		integratedLUFS: -40.0, haveLUFS: true,
		lra: 8.0, haveLRA: true,
		truePeak: -10.0, haveTruePeak: true,
		hasAudio: true,
	}
	score, reason := computeAudioScore(stats)

	assert.Less(t, score, 0.5)
	assert.Equal(t, ReasonAudioSilent, reason)
}

func TestComputeAudioScore_ClippingRisk(t *testing.T) {
	stats := audioStats{
		integratedLUFS: -20.0, haveLUFS: true,
		lra: 6.0, haveLRA: true,
		truePeak: 0.5, haveTruePeak: true,
		hasAudio: true,
	}
	score, _ := computeAudioScore(stats)

	assert.Less(t, score, 0.9)
}

func TestAudioAnalyzer_ShortClipReturnsNeutral(t *testing.T) {
	a := audioAnalyzer{}
	score, reason, err := a.Analyze(nil, "/does/not/matter.mp4", 1000)

	assert.NoError(t, err)
	assert.Equal(t, 0.5, score)
	assert.Equal(t, ReasonAudioShort, reason)
}
