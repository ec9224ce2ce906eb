// Package bundled embeds the shipped camera-profile catalog synced
// into the app store on every daemon startup (spec §6, "Camera
// profile (bundled)": "synced from bundled JSON on startup (full
// replace)").
package bundled

import (
	"embed"
	"encoding/json"
	"fmt"

	"dadcam.systems/core/internal/camera"
)

//go:embed profiles.json
var profilesFS embed.FS

// Load decodes the embedded profile catalog.
func Load() ([]camera.BundledProfile, error) {
	data, err := profilesFS.ReadFile("profiles.json")
	if err != nil {
		return nil, fmt.Errorf("read embedded bundled profiles: %w", err)
	}
	var profiles []camera.BundledProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("unmarshal embedded bundled profiles: %w", err)
	}
	return profiles, nil
}
