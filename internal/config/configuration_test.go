package config

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Success_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("LIBRARY_ROOT", "/tmp/library")
	t.Setenv("APP_DATA_DIR", "/tmp/app")

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, "/tmp/library", cfg.LibraryRoot)
	require.Equal(t, 2, cfg.WorkerCount)
	require.Equal(t, 5, cfg.JobMaxAttempts)
}

func TestLoadConfig_ValidationError(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("LIBRARY_ROOT", "/tmp/library")
	// Missing APP_DATA_DIR

	cfg, err := LoadConfig(context.Background())
	require.Error(t, err)
	require.Nil(t, cfg)
}

func TestLoadConfig_OverrideWorkerCount(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("LIBRARY_ROOT", "/tmp/library")
	t.Setenv("APP_DATA_DIR", "/tmp/app")
	t.Setenv("WORKER_COUNT", "6")

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, 6, cfg.WorkerCount)
}
