package cmd

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "aklite",
	Short: "Offline OSTree + compose-apps update driver",
	Long: `aklite installs and runs updates from a locally mounted bundle: an
OSTree commit plus its compose apps, selected and verified entirely offline
against the bundle's own signed TUF metadata.`,
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (AKLITE_ env vars take precedence over its values)")
}

// initConfig points viper at an explicit --config file, if given, before
// config.Load runs. With no flag, config.Load falls back entirely to
// AKLITE_-prefixed environment variables and its own defaults.
func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	log.Debug().Str("config_file", cfgFile).Msg("using explicit config file")
}
