package camera

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	matchScoreThreshold = 2.0
	matchMaxScore       = 10.0
)

// ClipSignature is the normalized metadata + folder signal the matcher
// evaluates a clip against. The sidecar stores it as a
// MatchInputSignature (see BuildAudit), from which the rematch engine
// rebuilds a ClipSignature.
type ClipSignature struct {
	CameraMake   string
	CameraModel  string
	SerialNumber string
	Codec        string
	Container    string
	Width        int
	Height       int
	FPS          float64
	SourceFolder string
}

// RegisteredDevice is a physical rental unit, matched by USB
// fingerprint or serial before any rule is evaluated (spec P1).
type RegisteredDevice struct {
	UUID            string
	ProfileType     ProfileType
	ProfileRef      string
	SerialNumber    string
	USBFingerprints []string
}

// Candidate records one evaluated profile for the audit trail,
// regardless of whether it won.
type Candidate struct {
	Ref          string
	ProfileType  ProfileType
	Score        float64
	Rejected     bool
	RejectReason string
	MatchedRules []string
	FailedRules  []string
}

// MatchResult is the matcher's full output, written verbatim into the
// clip's sidecar as matchAudit (spec §4.5/§6).
type MatchResult struct {
	ProfileType ProfileType
	ProfileRef  string
	DeviceUUID  string
	Confidence  float64
	MatchSource string
	Candidates  []Candidate
}

const (
	SourceRegisteredDeviceUSB    = "registered_device_usb"
	SourceRegisteredDeviceSerial = "registered_device_serial"
	SourceUserProfile            = "user_profile"
	SourceBundledProfile         = "bundled_profile"
	SourceLegacyName             = "legacy_name"
	SourceGenericFallback        = "generic_fallback"
)

// Match resolves a clip signature to a stable camera reference,
// following the priority order in spec §4.5: registered device, user
// profile rules, bundled profile rules, generic fallback.
func Match(sig ClipSignature, usbFingerprints []string, devices []RegisteredDevice, userProfiles []UserProfile, bundled []BundledProfile) MatchResult {
	if dev, ok := matchDeviceByUSB(usbFingerprints, devices); ok {
		if dev.ProfileType != ProfileTypeNone && dev.ProfileRef != "" {
			return MatchResult{
				ProfileType: dev.ProfileType,
				ProfileRef:  dev.ProfileRef,
				DeviceUUID:  dev.UUID,
				Confidence:  1.0,
				MatchSource: SourceRegisteredDeviceUSB,
			}
		}
	}

	if sig.SerialNumber != "" {
		if dev, ok := matchDeviceBySerial(sig.SerialNumber, devices); ok {
			if dev.ProfileType != ProfileTypeNone && dev.ProfileRef != "" {
				return MatchResult{
					ProfileType: dev.ProfileType,
					ProfileRef:  dev.ProfileRef,
					DeviceUUID:  dev.UUID,
					Confidence:  0.95,
					MatchSource: SourceRegisteredDeviceSerial,
				}
			}
		}
	}

	var candidates []Candidate
	candidates = append(candidates, evaluateUserProfiles(userProfiles, sig)...)
	candidates = append(candidates, evaluateBundledProfiles(bundled, sig)...)

	if winner, ok := bestCandidate(candidates); ok {
		source := SourceBundledProfile
		if winner.ProfileType == ProfileTypeUser {
			source = SourceUserProfile
		}
		return MatchResult{
			ProfileType: winner.ProfileType,
			ProfileRef:  winner.Ref,
			Confidence:  scoreToConfidence(winner.Score),
			MatchSource: source,
			Candidates:  candidates,
		}
	}

	if sig.CameraModel != "" {
		if ptype, ref, ok := matchLegacyName(sig.CameraModel, userProfiles, bundled); ok {
			return MatchResult{
				ProfileType: ptype,
				ProfileRef:  ref,
				Confidence:  0.3,
				MatchSource: SourceLegacyName,
				Candidates:  candidates,
			}
		}
	}

	return MatchResult{
		ProfileType: ProfileTypeBundled,
		ProfileRef:  GenericFallbackSlug,
		Confidence:  0.1,
		MatchSource: SourceGenericFallback,
		Candidates:  candidates,
	}
}

// matchLegacyName resolves a pre-rules-engine integer profile_id by
// case-insensitive name match, tried against user profiles first then
// bundled ones (original_source resolve_legacy_device_uuid fallback).
func matchLegacyName(name string, userProfiles []UserProfile, bundled []BundledProfile) (ProfileType, string, bool) {
	for _, p := range userProfiles {
		if equalFoldTrim(p.Name, name) {
			return ProfileTypeUser, p.UUID, true
		}
	}
	for _, p := range bundled {
		if equalFoldTrim(p.Name, name) || equalFoldTrim(p.Slug, name) {
			return ProfileTypeBundled, p.Slug, true
		}
	}
	return "", "", false
}

func matchDeviceByUSB(fingerprints []string, devices []RegisteredDevice) (RegisteredDevice, bool) {
	for _, fp := range fingerprints {
		for _, d := range devices {
			for _, df := range d.USBFingerprints {
				if df == fp {
					return d, true
				}
			}
		}
	}
	return RegisteredDevice{}, false
}

func matchDeviceBySerial(serial string, devices []RegisteredDevice) (RegisteredDevice, bool) {
	for _, d := range devices {
		if d.SerialNumber != "" && strings.EqualFold(d.SerialNumber, serial) {
			return d, true
		}
	}
	return RegisteredDevice{}, false
}

func scoreToConfidence(score float64) float64 {
	c := score / matchMaxScore
	if c > 0.95 {
		return 0.95
	}
	return c
}

func evaluateUserProfiles(profiles []UserProfile, sig ClipSignature) []Candidate {
	out := make([]Candidate, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, evaluateOne(p.UUID, ProfileTypeUser, p.MatchRules, sig))
	}
	return out
}

func evaluateBundledProfiles(profiles []BundledProfile, sig ClipSignature) []Candidate {
	out := make([]Candidate, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, evaluateOne(p.Slug, ProfileTypeBundled, p.MatchRules, sig))
	}
	return out
}

func evaluateOne(ref string, ptype ProfileType, rules MatchRules, sig ClipSignature) Candidate {
	if rejected, reason := checkRejectRules(rules, sig); rejected {
		return Candidate{Ref: ref, ProfileType: ptype, Rejected: true, RejectReason: reason}
	}
	score, matched, failed := scoreMatchRules(rules, sig)
	return Candidate{
		Ref:          ref,
		ProfileType:  ptype,
		Score:        score,
		MatchedRules: matched,
		FailedRules:  failed,
	}
}

// checkRejectRules implements matcher Phase 1: any reject key applying
// to the clip rejects the profile outright.
func checkRejectRules(rules MatchRules, sig ClipSignature) (bool, string) {
	if sig.Codec != "" {
		for _, rc := range rules.RejectCodec {
			if strings.EqualFold(sig.Codec, rc) {
				return true, fmt.Sprintf("reject_codec: %s matches %s", sig.Codec, rc)
			}
		}
	}
	if sig.Container != "" {
		parts := splitContainer(sig.Container)
		for _, rc := range rules.RejectContainer {
			for _, p := range parts {
				if strings.EqualFold(p, rc) {
					return true, fmt.Sprintf("reject_container: %s matches %s", sig.Container, rc)
				}
			}
		}
	}
	if sig.CameraModel != "" {
		lowerModel := strings.ToLower(sig.CameraModel)
		for _, rm := range rules.RejectModel {
			if strings.Contains(lowerModel, strings.ToLower(rm)) {
				return true, fmt.Sprintf("reject_model: %s contains %s", sig.CameraModel, rm)
			}
		}
	}
	return false, ""
}

func splitContainer(container string) []string {
	parts := strings.Split(container, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// scoreMatchRules implements matcher Phase 2: all present match keys
// must hold (AND); within a key, list values OR. Returns 0 if any
// specified key fails.
func scoreMatchRules(rules MatchRules, sig ClipSignature) (float64, []string, []string) {
	var totalKeys, matchedKeys int
	var specificity float64
	var matched, failed []string

	note := func(ok bool, name string) {
		totalKeys++
		if ok {
			matchedKeys++
			matched = append(matched, name)
		} else {
			failed = append(failed, name)
		}
	}

	makeMatched := false
	if len(rules.Make) > 0 {
		ok := sig.CameraMake != "" && containsSubstringCI(rules.Make, sig.CameraMake)
		note(ok, "make")
		makeMatched = ok
	}
	modelMatched := false
	if len(rules.Model) > 0 {
		ok := sig.CameraModel != "" && containsSubstringCI(rules.Model, sig.CameraModel)
		note(ok, "model")
		modelMatched = ok
	}
	switch {
	case makeMatched && modelMatched:
		specificity += 5.0
	case makeMatched || modelMatched:
		specificity += 2.0
	}

	codecMatched := false
	if len(rules.Codec) > 0 {
		ok := sig.Codec != "" && containsExactCI(rules.Codec, sig.Codec)
		note(ok, "codec")
		codecMatched = ok
	}
	containerMatched := false
	if len(rules.Container) > 0 {
		ok := false
		if sig.Container != "" {
			parts := splitContainer(sig.Container)
			for _, c := range rules.Container {
				for _, p := range parts {
					if strings.EqualFold(p, c) {
						ok = true
					}
				}
			}
		}
		note(ok, "container")
		containerMatched = ok
	}
	switch {
	case codecMatched && containerMatched:
		specificity += 3.0
	case codecMatched || containerMatched:
		specificity += 1.5
	}

	if rules.FolderPattern != "" {
		totalKeys++
		ok := false
		if sig.SourceFolder != "" {
			if re, err := regexp.Compile("(?i)" + rules.FolderPattern); err == nil {
				ok = re.MatchString(sig.SourceFolder)
			}
		}
		if ok {
			matchedKeys++
			matched = append(matched, "folderPattern")
			specificity += 3.0
		} else {
			failed = append(failed, "folderPattern")
		}
	}

	if rules.MinWidth != nil || rules.MaxWidth != nil || rules.MinHeight != nil || rules.MaxHeight != nil {
		totalKeys++
		ok := true
		if rules.MinWidth != nil && sig.Width < *rules.MinWidth {
			ok = false
		}
		if rules.MaxWidth != nil && sig.Width > *rules.MaxWidth {
			ok = false
		}
		if rules.MinHeight != nil && sig.Height < *rules.MinHeight {
			ok = false
		}
		if rules.MaxHeight != nil && sig.Height > *rules.MaxHeight {
			ok = false
		}
		if ok {
			matchedKeys++
			matched = append(matched, "resolution")
			specificity += 2.0
		} else {
			failed = append(failed, "resolution")
		}
	}

	if len(rules.FrameRate) > 0 {
		totalKeys++
		ok := false
		if sig.FPS > 0 {
			for _, r := range rules.FrameRate {
				if abs(sig.FPS-r) <= 0.5 {
					ok = true
				}
			}
		}
		if ok {
			matchedKeys++
			matched = append(matched, "frameRate")
			specificity += 1.0
		} else {
			failed = append(failed, "frameRate")
		}
	}

	if totalKeys == 0 {
		return 0, matched, failed
	}
	if matchedKeys == totalKeys {
		return specificity, matched, failed
	}
	return 0, matched, failed
}

func containsSubstringCI(candidates []string, value string) bool {
	lower := strings.ToLower(value)
	for _, c := range candidates {
		if strings.Contains(lower, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

func containsExactCI(candidates []string, value string) bool {
	for _, c := range candidates {
		if strings.EqualFold(c, value) {
			return true
		}
	}
	return false
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// bestCandidate finds the highest-scoring non-rejected candidate at or
// above threshold; equal scores go to the lexicographically smaller
// ref. Profile version is not compared.
func bestCandidate(candidates []Candidate) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range candidates {
		if c.Rejected || c.Score < matchScoreThreshold {
			continue
		}
		if !found {
			best = c
			found = true
			continue
		}
		if c.Score > best.Score || (c.Score == best.Score && c.Ref < best.Ref) {
			best = c
		}
	}
	return best, found
}
