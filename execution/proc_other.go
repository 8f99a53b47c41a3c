//go:build !unix

package execution

import (
	"os/exec"
	"time"
)

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = 2 * time.Second
}

func signalOf(*exec.ExitError) (string, bool) { return "", false }
