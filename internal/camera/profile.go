// Package camera implements camera profiles, registered devices, and
// the matcher rules engine described in spec §4.5.
package camera

// ProfileType tags which store a camera profile reference resolves
// against. Clip refs and matcher output both use this tagged pair
// instead of raw integer foreign keys, since those do not survive
// library moves (see spec §9 "Polymorphic profiles").
type ProfileType string

const (
	ProfileTypeBundled ProfileType = "bundled"
	ProfileTypeUser    ProfileType = "user"
	ProfileTypeNone    ProfileType = "none"
)

// GenericFallbackSlug is the sentinel bundled profile assigned when no
// rule wins, guaranteeing every clip has a stable camera reference.
const GenericFallbackSlug = "generic-fallback"

// MatchRules is data, not code: the engine must refuse to interpret
// unknown keys as success, so unknown keys are ignored for scoring and
// never read reflectively.
type MatchRules struct {
	RejectCodec     []string `json:"rejectCodec,omitempty"`
	RejectContainer []string `json:"rejectContainer,omitempty"`
	RejectModel     []string `json:"rejectModel,omitempty"`

	Make            []string `json:"make,omitempty"`
	Model           []string `json:"model,omitempty"`
	Codec           []string `json:"codec,omitempty"`
	Container       []string `json:"container,omitempty"`
	FolderPattern   string   `json:"folderPattern,omitempty"`
	MinWidth        *int     `json:"minWidth,omitempty"`
	MaxWidth        *int     `json:"maxWidth,omitempty"`
	MinHeight       *int     `json:"minHeight,omitempty"`
	MaxHeight       *int     `json:"maxHeight,omitempty"`
	FrameRate       []float64 `json:"frameRate,omitempty"`
}

// TransformRules holds the profile's default render transform
// overrides (crop, rotation, ...); opaque to the matcher.
type TransformRules map[string]any

// BundledProfile is synced full-replace from an embedded JSON array on
// startup (spec §6).
type BundledProfile struct {
	Slug           string         `json:"slug"`
	Name           string         `json:"name"`
	Version        int            `json:"version"`
	MatchRules     MatchRules     `json:"matchRules"`
	TransformRules TransformRules `json:"transformRules,omitempty"`
	IsSystem       bool           `json:"isSystem"`
	Deletable      bool           `json:"deletable"`
	Category       string         `json:"category,omitempty"`
}

// UserProfile is authored via the staged-profile flow and survives
// library deletion (it lives in the app store).
type UserProfile struct {
	UUID           string
	Name           string
	Version        int
	MatchRules     MatchRules
	TransformRules TransformRules
}

// StagedProfile is the write-then-validate-then-publish draft of a user
// profile, discardable before publish.
type StagedProfile struct {
	SourceType     string // "user" | "new"
	SourceRef      string // UUID being edited, empty if new
	Name           string
	MatchRules     MatchRules
	TransformRules TransformRules
}
