package camera

import (
	"encoding/json"
	"time"
)

// RegisteredDeviceRecord is the app-store persisted form of a
// RegisteredDevice: a known physical camera, identified by USB
// fingerprint(s) and/or serial number, optionally bound to a profile.
// Grounded on original_source's camera/devices.rs CameraDevice.
type RegisteredDeviceRecord struct {
	UUID            string
	Name            string
	USBFingerprints []string
	SerialNumber    string
	ProfileType     ProfileType
	ProfileRef      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRegisteredDevice builds a device record with no profile assigned
// yet; profile resolution falls through to the rules engine until one
// is set via AssignProfile.
func NewRegisteredDevice(uuid, name string, usbFingerprints []string, serial string) RegisteredDeviceRecord {
	now := time.Now()
	return RegisteredDeviceRecord{
		UUID:            uuid,
		Name:            name,
		USBFingerprints: usbFingerprints,
		SerialNumber:    serial,
		ProfileType:     ProfileTypeNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AssignProfile binds a device to a profile reference, making future
// matches for this device resolve at confidence 1.0/0.95 instead of
// falling through to the rules engine.
func (d *RegisteredDeviceRecord) AssignProfile(ptype ProfileType, ref string) {
	d.ProfileType = ptype
	d.ProfileRef = ref
	d.UpdatedAt = time.Now()
}

// ToMatcherDevice projects the persisted record into the matcher's
// lookup shape.
func (d RegisteredDeviceRecord) ToMatcherDevice() RegisteredDevice {
	return RegisteredDevice{
		UUID:            d.UUID,
		ProfileType:     d.ProfileType,
		ProfileRef:      d.ProfileRef,
		SerialNumber:    d.SerialNumber,
		USBFingerprints: d.USBFingerprints,
	}
}

// EncodeUSBFingerprints stores the fingerprint list the way the app
// store persists it: a JSON array column rather than a joined child
// table.
func EncodeUSBFingerprints(fingerprints []string) (string, error) {
	b, err := json.Marshal(fingerprints)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeUSBFingerprints reverses EncodeUSBFingerprints.
func DecodeUSBFingerprints(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindByUSBFingerprint returns the first device whose fingerprint list
// contains fp as an exact string match, scanning devices in order.
func FindByUSBFingerprint(devices []RegisteredDeviceRecord, fp string) (RegisteredDeviceRecord, bool) {
	for _, d := range devices {
		for _, df := range d.USBFingerprints {
			if df == fp {
				return d, true
			}
		}
	}
	return RegisteredDeviceRecord{}, false
}
