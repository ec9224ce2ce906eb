// Package licensing validates offline license keys and exposes the
// boolean gate the recipe engine consumes when deciding whether to
// apply a watermark + 720p cap. Grounded on
// original_source/licensing/mod.rs's key grammar and checksum scheme.
package licensing

import (
	"encoding/hex"
	"strings"

	"lukechampine.com/blake3"
)

// License types, matching the key prefix set.
const (
	TypeTrial     = "trial"
	TypePurchased = "purchased"
	TypeRental    = "rental"
	TypeDev       = "dev"
)

const (
	prefixPurchased = "DCAM-P-"
	prefixRental    = "DCAM-R-"
	prefixDev       = "DCAM-D-"
)

// validationSecret keys the checksum hash; a fixed key is sufficient
// for offline key validation, not DRM.
var validationSecret = [32]byte{
	0xd4, 0xa1, 0xdc, 0x4a, 0x6d, 0x0e, 0x83, 0x9f,
	0x7b, 0x21, 0x55, 0xc8, 0xe3, 0x47, 0x91, 0x0c,
	0xf6, 0x38, 0xba, 0x2d, 0x69, 0x14, 0xa7, 0xe5,
	0x3c, 0x80, 0xfb, 0x52, 0x06, 0xcd, 0x9e, 0x73,
}

// ValidateKey checks a key's prefix and checksum, returning its
// license type if valid.
func ValidateKey(key string) (licenseType string, ok bool) {
	key = strings.TrimSpace(key)

	var prefixLen int
	switch {
	case strings.HasPrefix(key, prefixDev):
		licenseType, prefixLen = TypeDev, len(prefixDev)
	case strings.HasPrefix(key, prefixPurchased):
		licenseType, prefixLen = TypePurchased, len(prefixPurchased)
	case strings.HasPrefix(key, prefixRental):
		licenseType, prefixLen = TypeRental, len(prefixRental)
	default:
		return "", false
	}

	lastDash := strings.LastIndex(key, "-")
	if lastDash <= prefixLen {
		return "", false
	}

	body, checksum := key[:lastDash], key[lastDash+1:]
	if len(checksum) != 8 {
		return "", false
	}
	if computeChecksum(body) != checksum {
		return "", false
	}
	return licenseType, true
}

func computeChecksum(body string) string {
	h := blake3.New(32, validationSecret[:])
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// Gate reports whether the active license grants full-quality renders.
// The recipe engine only consumes this boolean (spec §4.9); it does
// not know how licenses are stored or checked.
type Gate interface {
	IsActive() bool
}

// KeyGate is a Gate backed by a single validated key (or none, in
// which case it is never active). No trial-period bookkeeping is
// done; the daemon uses KeyGate directly.
type KeyGate struct {
	LicenseType string
}

// IsActive reports whether the stored key validated to a non-trial,
// paid license type.
func (g KeyGate) IsActive() bool {
	switch g.LicenseType {
	case TypePurchased, TypeRental, TypeDev:
		return true
	default:
		return false
	}
}

// ShouldWatermark reports whether rendered exports need the
// watermark + 720p cap (spec §4.9): true whenever the gate is
// inactive.
func ShouldWatermark(g Gate) bool {
	return g == nil || !g.IsActive()
}
