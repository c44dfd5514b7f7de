// Package config loads the configuration for the offline update driver.
//
// It replaces a process-wide DOCKER_HOST environment variable and a
// hardcoded default socket path with an explicit struct populated once at
// startup.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the runtime configuration for the install/run driver.
type Config struct {
	Pacman PacmanConfig `mapstructure:"pacman"`
	Docker DockerConfig `mapstructure:"docker"`
	Ostree OstreeConfig `mapstructure:"ostree"`
	Device DeviceConfig `mapstructure:"device"`
}

// OstreeConfig configures the sysroot the installer deploys commits into.
type OstreeConfig struct {
	SysrootDir string `mapstructure:"sysroot_dir"`
	OS         string `mapstructure:"os"`
}

// DeviceConfig identifies this device for target selection and deployment
// status resolution.
type DeviceConfig struct {
	HardwareID string `mapstructure:"hardware_id"`
	BootedRef  string `mapstructure:"booted_ref"`
}

// PacmanConfig configures the compose app manager: where restored
// apps/images land on disk and which subprocess binaries materialize them.
type PacmanConfig struct {
	ResetAppsRoot  string `mapstructure:"reset_apps_root"`
	AppsRoot       string `mapstructure:"apps_root"`
	ImagesDataRoot string `mapstructure:"images_data_root"`
	SkopeoBin      string `mapstructure:"skopeo_bin"`
	ComposeBin     string `mapstructure:"compose_bin"`
}

// DockerConfig configures how the driver talks to the container runtime
// daemon whose repositories index the registrar edits.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// Load reads configuration via viper (env vars prefixed AKLITE_, and an
// optional config file set by the caller with viper.SetConfigFile before
// calling Load), with defaulting precedence: explicit value, then
// environment, then a platform-appropriate default.
func Load() (*Config, error) {
	viper.SetEnvPrefix("aklite")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("pacman.reset_apps_root", "/var/sota/reset-apps")
	viper.SetDefault("pacman.apps_root", "/var/sota/compose-apps")
	viper.SetDefault("pacman.images_data_root", "/var/sota/images")
	viper.SetDefault("pacman.skopeo_bin", "skopeo")
	viper.SetDefault("pacman.compose_bin", "docker-compose")
	viper.SetDefault("docker.host", defaultDockerHost())
	viper.SetDefault("ostree.sysroot_dir", "/ostree")
	viper.SetDefault("ostree.os", "default")
	viper.SetDefault("device.booted_ref", "booted")

	// device.hardware_id has no default since it's required; AutomaticEnv
	// only resolves keys viper already knows of, so without an explicit bind
	// Unmarshal would never look up its environment variable.
	if err := viper.BindEnv("device.hardware_id"); err != nil {
		return nil, err
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
	}

	// Unmarshal (unlike UnmarshalKey on a section) resolves every known key
	// individually, so environment values override defaults per field.
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.Docker.Host == "" {
		cfg.Docker.Host = defaultDockerHost()
	}

	if cfg.Device.HardwareID == "" {
		return nil, fmt.Errorf("device.hardware_id is required")
	}

	for name, dir := range map[string]string{
		"reset_apps_root":  cfg.Pacman.ResetAppsRoot,
		"apps_root":        cfg.Pacman.AppsRoot,
		"images_data_root": cfg.Pacman.ImagesDataRoot,
	} {
		if dir == "" {
			return nil, fmt.Errorf("pacman.%s is required", name)
		}
	}

	log.Debug().
		Str("docker_host", cfg.Docker.Host).
		Str("apps_root", cfg.Pacman.AppsRoot).
		Msg("configuration loaded")

	return &cfg, nil
}

// defaultDockerHost honors DOCKER_HOST when set, falling back to the
// conventional local socket.
func defaultDockerHost() string {
	if h := os.Getenv("DOCKER_HOST"); h != "" {
		return h
	}
	return "unix:///var/run/docker.sock"
}
