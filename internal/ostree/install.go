package ostree

import (
	"context"
)

// ResultNeedCompletion is the only success result code install() expects
// back from an Installer.
const ResultNeedCompletion = "NeedCompletion"

// Installer performs the actual on-disk OSTree deployment swap: staging a
// new deployment for commitHex (Install, run at install time) and
// completing a previously staged deployment after reboot (FinalizeInstall,
// run at run() time). Kept as an interface, mirroring how a storage contract
// elsewhere in this codebase is split from its concrete backend, because the
// underlying deploy mechanism needs real OSTree bindings not available here.
type Installer interface {
	Install(ctx context.Context, commitHex string) (resultCode string, err error)
	FinalizeInstall(ctx context.Context) (resultCode string, err error)
}
