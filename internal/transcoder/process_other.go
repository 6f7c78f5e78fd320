//go:build !unix

package transcoder

import (
	"os/exec"
	"time"
)

const processWaitDelay = 5 * time.Second

// configureProcessGroup falls back to killing the direct child only.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = processWaitDelay
}
