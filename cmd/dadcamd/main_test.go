package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dadcam.systems/core/internal/appstore"
	"dadcam.systems/core/internal/licensing"
)

func openTestAppStore(t *testing.T) *appstore.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := appstore.Open(filepath.Join(dir, "app.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureConfiguredLibrary_RegistersOnFirstRun(t *testing.T) {
	app := openTestAppStore(t)
	ctx := context.Background()

	libs, err := ensureConfiguredLibrary(ctx, app, "/media/library-a")
	require.NoError(t, err)
	require.Len(t, libs, 1)
	assert.Equal(t, "/media/library-a", libs[0].RootPath)
}

func TestEnsureConfiguredLibrary_DoesNotDuplicateExisting(t *testing.T) {
	app := openTestAppStore(t)
	ctx := context.Background()

	_, err := ensureConfiguredLibrary(ctx, app, "/media/library-a")
	require.NoError(t, err)

	libs, err := ensureConfiguredLibrary(ctx, app, "/media/library-a")
	require.NoError(t, err)
	assert.Len(t, libs, 1)
}

func TestLicenseGate_InvalidKeyIsInactive(t *testing.T) {
	gate := licenseGate("not-a-real-key")
	assert.False(t, gate.IsActive())
	assert.True(t, licensing.ShouldWatermark(gate))
}
