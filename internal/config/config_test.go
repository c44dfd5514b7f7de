package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper undoes the global state Load mutates, since viper is a package
// singleton and these tests run in the same process.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoad_RequiresHardwareID(t *testing.T) {
	resetViper(t)
	os.Unsetenv("AKLITE_DEVICE_HARDWARE_ID")
	os.Setenv("AKLITE_PACMAN_APPS_ROOT", t.TempDir())
	os.Setenv("AKLITE_PACMAN_RESET_APPS_ROOT", t.TempDir())
	os.Setenv("AKLITE_PACMAN_IMAGES_DATA_ROOT", t.TempDir())
	defer os.Unsetenv("AKLITE_PACMAN_APPS_ROOT")
	defer os.Unsetenv("AKLITE_PACMAN_RESET_APPS_ROOT")
	defer os.Unsetenv("AKLITE_PACMAN_IMAGES_DATA_ROOT")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device.hardware_id")
}

func TestLoad_AppliesDefaultsAndEnvOverrides(t *testing.T) {
	resetViper(t)
	appsRoot := t.TempDir()
	os.Setenv("AKLITE_DEVICE_HARDWARE_ID", "raspberrypi4-64")
	os.Setenv("AKLITE_PACMAN_APPS_ROOT", appsRoot)
	os.Setenv("AKLITE_PACMAN_RESET_APPS_ROOT", t.TempDir())
	os.Setenv("AKLITE_PACMAN_IMAGES_DATA_ROOT", t.TempDir())
	os.Setenv("AKLITE_OSTREE_OS", "myos")
	defer os.Unsetenv("AKLITE_DEVICE_HARDWARE_ID")
	defer os.Unsetenv("AKLITE_PACMAN_APPS_ROOT")
	defer os.Unsetenv("AKLITE_PACMAN_RESET_APPS_ROOT")
	defer os.Unsetenv("AKLITE_PACMAN_IMAGES_DATA_ROOT")
	defer os.Unsetenv("AKLITE_OSTREE_OS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "raspberrypi4-64", cfg.Device.HardwareID)
	assert.Equal(t, appsRoot, cfg.Pacman.AppsRoot)
	assert.Equal(t, "myos", cfg.Ostree.OS)

	// Defaults not overridden by env.
	assert.Equal(t, "/ostree", cfg.Ostree.SysrootDir)
	assert.Equal(t, "booted", cfg.Device.BootedRef)
	assert.Equal(t, "skopeo", cfg.Pacman.SkopeoBin)
	assert.Equal(t, "docker-compose", cfg.Pacman.ComposeBin)
}

func TestLoad_RequiresPacmanRoots(t *testing.T) {
	resetViper(t)
	os.Setenv("AKLITE_DEVICE_HARDWARE_ID", "raspberrypi4-64")
	defer os.Unsetenv("AKLITE_DEVICE_HARDWARE_ID")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pacman.")
}

func TestDefaultDockerHost_HonorsEnv(t *testing.T) {
	os.Setenv("DOCKER_HOST", "tcp://1.2.3.4:2375")
	defer os.Unsetenv("DOCKER_HOST")
	assert.Equal(t, "tcp://1.2.3.4:2375", defaultDockerHost())
}

func TestDefaultDockerHost_FallsBackToLocalSocket(t *testing.T) {
	os.Unsetenv("DOCKER_HOST")
	assert.Equal(t, "unix:///var/run/docker.sock", defaultDockerHost())
}
