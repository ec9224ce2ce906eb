package appstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dadcam.systems/core/internal/camera"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "app.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetLibrary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateLibrary(ctx, "lib-1", "/mnt/library", "copy"))

	lib, err := s.GetLibrary(ctx, "lib-1")
	require.NoError(t, err)
	require.Equal(t, "/mnt/library", lib.RootPath)
	require.Equal(t, "copy", lib.IngestMode)
}

func TestRegisterDeviceAndAssignProfile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RegisterDevice(ctx, "dev-1", "Sony A1", []string{"vid:1-pid:2"}, "SN123"))
	require.NoError(t, s.AssignDeviceProfile(ctx, "dev-1", camera.ProfileTypeBundled, "sony-avchd"))

	devices, err := s.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, camera.ProfileTypeBundled, devices[0].ProfileType)
	require.Equal(t, "sony-avchd", devices[0].ProfileRef)
	require.Equal(t, []string{"vid:1-pid:2"}, devices[0].USBFingerprints)
}

func TestUserProfileVersionBumpsOnEdit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	uuid, err := s.CreateUserProfile(ctx, camera.StagedProfile{Name: "My Cam", SourceType: "new"})
	require.NoError(t, err)

	err = s.UpdateUserProfile(ctx, uuid, camera.StagedProfile{Name: "My Cam v2", SourceType: "user", SourceRef: uuid})
	require.NoError(t, err)

	profiles, err := s.ListUserProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	require.Equal(t, 2, profiles[0].Version)
	require.Equal(t, "My Cam v2", profiles[0].Name)
}

func TestSyncBundledProfilesFullReplace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SyncBundledProfiles(ctx, []camera.BundledProfile{
		{Slug: "sony-avchd", Name: "Sony AVCHD", Version: 1},
		{Slug: "gopro-hero", Name: "GoPro Hero", Version: 1},
	}))
	profiles, err := s.ListBundledProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	// Re-sync with one profile dropped: it must be deleted, not just unreferenced.
	require.NoError(t, s.SyncBundledProfiles(ctx, []camera.BundledProfile{
		{Slug: "sony-avchd", Name: "Sony AVCHD", Version: 2},
	}))
	profiles, err = s.ListBundledProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	require.Equal(t, "sony-avchd", profiles[0].Slug)
	require.Equal(t, 2, profiles[0].Version)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, "license_key")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "license_key", "purchased-ABC123-DEADBEEF"))
	v, ok, err := s.GetSetting(ctx, "license_key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "purchased-ABC123-DEADBEEF", v)
}
