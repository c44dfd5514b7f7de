package ostree

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// CLIInstaller drives the ostree(1) binary directly: the production
// Installer, for hosts where the real tool is present. No Go binding for
// OSTree deploy exists in the wider ecosystem this core draws from, so this
// shells out the same way the skopeo/compose invocations in
// internal/appengine do.
type CLIInstaller struct {
	SysrootDir string
	RepoDir    string
	OS         string
}

// NewCLIInstaller returns an Installer targeting osName (e.g. "default")
// within sysrootDir, deploying commits pulled from the bare repo at
// repoDir.
func NewCLIInstaller(sysrootDir, repoDir, osName string) *CLIInstaller {
	return &CLIInstaller{SysrootDir: sysrootDir, RepoDir: repoDir, OS: osName}
}

// Install stages commitHex as a new deployment. A successful exit always
// means the deployment needs a reboot to take effect.
func (c *CLIInstaller) Install(ctx context.Context, commitHex string) (string, error) {
	if err := c.run(ctx, "admin", "deploy",
		"--sysroot="+c.SysrootDir, "--os="+c.OS, "file://"+c.RepoDir, commitHex); err != nil {
		return "", err
	}
	return ResultNeedCompletion, nil
}

// FinalizeInstall completes a deployment staged by a prior Install call,
// run once the device has rebooted into it.
func (c *CLIInstaller) FinalizeInstall(ctx context.Context) (string, error) {
	if err := c.run(ctx, "admin", "cleanup", "--sysroot="+c.SysrootDir); err != nil {
		return "", err
	}
	return ResultNeedCompletion, nil
}

func (c *CLIInstaller) run(ctx context.Context, args ...string) error {
	// #nosec G204 - args are built entirely from configured directories and
	// a pinned commit hex, not untrusted input.
	cmd := exec.CommandContext(ctx, "ostree", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ostree %v: %w: %s", args, err, stderr.String())
	}
	return nil
}
