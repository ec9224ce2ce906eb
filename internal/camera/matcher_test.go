package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sonyBundledProfile() BundledProfile {
	return BundledProfile{
		Slug:    "sony-avchd-fdr-ax",
		Name:    "Sony AVCHD Camcorder",
		Version: 2,
		MatchRules: MatchRules{
			Make:      []string{"sony"},
			Codec:     []string{"h264"},
			Container: []string{"mts", "m2ts"},
		},
		IsSystem: true,
	}
}

func goProBundledProfile() BundledProfile {
	return BundledProfile{
		Slug:    "gopro-hero",
		Name:    "GoPro Hero",
		Version: 1,
		MatchRules: MatchRules{
			Make: []string{"gopro"},
		},
		IsSystem: true,
	}
}

func TestMatch_SonyAVCHDMatchesBundledProfile(t *testing.T) {
	sig := ClipSignature{
		CameraMake: "Sony",
		Codec:      "h264",
		Container:  "mts",
		Width:      1920,
		Height:     1080,
	}
	result := Match(sig, nil, nil, nil, []BundledProfile{sonyBundledProfile(), goProBundledProfile()})

	require.Equal(t, ProfileTypeBundled, result.ProfileType)
	assert.Equal(t, "sony-avchd-fdr-ax", result.ProfileRef)
	assert.Equal(t, SourceBundledProfile, result.MatchSource)
	// make-only(2) + codec+container(3) = 5 -> confidence 0.5
	assert.InDelta(t, 0.5, result.Confidence, 0.001)
}

func TestMatch_GoProClipFallsToGenericFallback(t *testing.T) {
	sig := ClipSignature{
		CameraMake: "GoPro",
		CameraModel: "HERO11 Black",
		Codec:      "hevc",
		Container:  "mp4",
	}
	// Neither profile's rules clear the bar for this clip: the Sony
	// profile requires make=sony (fails), and the GoPro profile would
	// score make(2), which meets the 2.0 threshold, so a codec reject
	// is added to exercise the generic-fallback path deterministically.
	goPro := goProBundledProfile()
	goPro.MatchRules.RejectCodec = []string{"hevc"}

	result := Match(sig, nil, nil, nil, []BundledProfile{sonyBundledProfile(), goPro})

	require.Equal(t, ProfileTypeBundled, result.ProfileType)
	assert.Equal(t, GenericFallbackSlug, result.ProfileRef)
	assert.Equal(t, SourceGenericFallback, result.MatchSource)
	assert.InDelta(t, 0.1, result.Confidence, 0.001)

	var goProCandidate *Candidate
	for i := range result.Candidates {
		if result.Candidates[i].Ref == "gopro-hero" {
			goProCandidate = &result.Candidates[i]
		}
	}
	require.NotNil(t, goProCandidate)
	assert.True(t, goProCandidate.Rejected)
}

func TestMatch_RegisteredDeviceUSBWinsOverRules(t *testing.T) {
	devices := []RegisteredDevice{
		{
			UUID:            "dev-1",
			ProfileType:     ProfileTypeUser,
			ProfileRef:      "user-profile-1",
			USBFingerprints: []string{"vid:1234-pid:5678"},
		},
	}
	sig := ClipSignature{CameraMake: "Sony", Codec: "h264", Container: "mts"}

	result := Match(sig, []string{"vid:1234-pid:5678"}, devices, nil, []BundledProfile{sonyBundledProfile()})

	assert.Equal(t, ProfileTypeUser, result.ProfileType)
	assert.Equal(t, "user-profile-1", result.ProfileRef)
	assert.Equal(t, "dev-1", result.DeviceUUID)
	assert.Equal(t, SourceRegisteredDeviceUSB, result.MatchSource)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestMatch_DeviceWithoutProfileFallsThroughToRules(t *testing.T) {
	devices := []RegisteredDevice{
		{UUID: "dev-2", ProfileType: ProfileTypeNone, USBFingerprints: []string{"vid:aaaa-pid:bbbb"}},
	}
	sig := ClipSignature{CameraMake: "Sony", Codec: "h264", Container: "mts"}

	result := Match(sig, []string{"vid:aaaa-pid:bbbb"}, devices, nil, []BundledProfile{sonyBundledProfile()})

	assert.Equal(t, ProfileTypeBundled, result.ProfileType)
	assert.Equal(t, "sony-avchd-fdr-ax", result.ProfileRef)
	assert.Equal(t, SourceBundledProfile, result.MatchSource)
}

func TestScoreMatchRules_AllKeysMustMatch(t *testing.T) {
	rules := MatchRules{
		Make:  []string{"sony"},
		Codec: []string{"h264"},
	}
	// Make matches but codec doesn't: AND semantics zero the whole score.
	score, _, failed := scoreMatchRules(rules, ClipSignature{CameraMake: "Sony", Codec: "hevc"})
	assert.Equal(t, 0.0, score)
	assert.Contains(t, failed, "codec")
}

func TestScoreMatchRules_NoKeysSpecifiedScoresZero(t *testing.T) {
	score, _, _ := scoreMatchRules(MatchRules{}, ClipSignature{CameraMake: "Sony"})
	assert.Equal(t, 0.0, score)
}

func TestBestCandidate_TieBreaksByLexicographicallySmallerRef(t *testing.T) {
	candidates := []Candidate{
		{Ref: "zeta-profile", Score: 5.0},
		{Ref: "alpha-profile", Score: 5.0},
	}
	winner, ok := bestCandidate(candidates)
	require.True(t, ok)
	assert.Equal(t, "alpha-profile", winner.Ref)
}

func TestBestCandidate_HigherScoreWinsOverLexicographicOrder(t *testing.T) {
	candidates := []Candidate{
		{Ref: "zeta-profile", Score: 7.0},
		{Ref: "alpha-profile", Score: 5.0},
	}
	winner, ok := bestCandidate(candidates)
	require.True(t, ok)
	assert.Equal(t, "zeta-profile", winner.Ref)
}

func TestBestCandidate_BelowThresholdExcluded(t *testing.T) {
	candidates := []Candidate{{Ref: "weak", Score: 1.0}}
	_, ok := bestCandidate(candidates)
	assert.False(t, ok)
}

func TestScoreToConfidence_CapsAt095(t *testing.T) {
	assert.InDelta(t, 0.95, scoreToConfidence(10.0), 0.0001)
	assert.InDelta(t, 0.5, scoreToConfidence(5.0), 0.0001)
}

func TestBuildAudit_GenericFallbackReason(t *testing.T) {
	sig := ClipSignature{CameraMake: "Unknown", SourceFolder: "/mnt/card/DCIM"}
	result := Match(sig, nil, nil, nil, nil)
	audit := BuildAudit(sig, "progressive", "avc1", result)

	assert.Equal(t, GenericFallbackSlug, audit.Winner.Slug)
	assert.Equal(t, "No profile scored above threshold, using generic fallback", audit.Winner.AssignmentReason)
	assert.Equal(t, "Unknown", audit.InputSignature.Make)
	assert.Equal(t, "/mnt/card/DCIM", audit.InputSignature.FolderPath)
}

func TestMatchLegacyName_FallsBackBeforeGenericFallback(t *testing.T) {
	sig := ClipSignature{CameraModel: "Old Camcorder Model X"}
	bundled := []BundledProfile{{Slug: "old-camcorder", Name: "Old Camcorder Model X", Version: 1}}

	result := Match(sig, nil, nil, nil, bundled)

	assert.Equal(t, SourceLegacyName, result.MatchSource)
	assert.Equal(t, "old-camcorder", result.ProfileRef)
	assert.InDelta(t, 0.3, result.Confidence, 0.0001)
}
