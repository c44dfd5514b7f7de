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
	runBundleDir string
	runTarget    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Finalize a staged OSTree deployment and bring its apps online after reboot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		installer := ostree.NewCLIInstaller(cfg.Ostree.SysrootDir, domain.NewBundleLayout(runBundleDir).OstreeDir(), cfg.Ostree.OS)
		lc, err := liteclient.New(cfg, liteclient.UpdateSource{BundleDir: runBundleDir, TargetName: runTarget}, cfg.Device.HardwareID, cfg.Device.BootedRef, installer)
		if err != nil {
			return err
		}

		if err := lc.Run(cmd.Context(), liteclient.UpdateSource{BundleDir: runBundleDir, TargetName: runTarget}); err != nil {
			return err
		}

		log.Info().Msg("run complete, target active")
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runBundleDir, "bundle", "", "path to the update bundle directory")
	runCmd.Flags().StringVar(&runTarget, "target", "", "target filename to run (default: select automatically)")
	_ = runCmd.MarkFlagRequired("bundle")
	rootCmd.AddCommand(runCmd)
}
