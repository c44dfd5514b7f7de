package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/facchinm/aktualizr-lite/internal/config"
	"github.com/facchinm/aktualizr-lite/internal/domain"
	"github.com/facchinm/aktualizr-lite/internal/liteclient"
	"github.com/facchinm/aktualizr-lite/internal/ostree"
)

var (
	installBundleDir string
	installTarget    string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Pull, verify and register a target's apps, staging an OSTree deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		installer := ostree.NewCLIInstaller(cfg.Ostree.SysrootDir, domain.NewBundleLayout(installBundleDir).OstreeDir(), cfg.Ostree.OS)
		lc, err := liteclient.New(cfg, liteclient.UpdateSource{BundleDir: installBundleDir, TargetName: installTarget}, cfg.Device.HardwareID, cfg.Device.BootedRef, installer)
		if err != nil {
			return err
		}

		result, err := lc.Install(cmd.Context(), liteclient.UpdateSource{BundleDir: installBundleDir, TargetName: installTarget})
		if err != nil {
			return err
		}

		log.Info().Str("result", result.String()).Msg("install complete")
		return nil
	},
}

func init() {
	installCmd.Flags().StringVar(&installBundleDir, "bundle", "", "path to the update bundle directory")
	installCmd.Flags().StringVar(&installTarget, "target", "", "target filename to install (default: select automatically)")
	_ = installCmd.MarkFlagRequired("bundle")
	rootCmd.AddCommand(installCmd)
}
