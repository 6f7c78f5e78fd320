//go:build unix

package transcoder

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// processWaitDelay bounds how long Wait blocks on pipes after the process is killed.
const processWaitDelay = 5 * time.Second

// configureProcessGroup starts cmd in its own process group so that cancelling
// the command's context kills ffmpeg together with anything it spawned.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = processWaitDelay
}
