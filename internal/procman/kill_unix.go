//go:build unix

package procman

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so a kill reaches
// any workers the server forks.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) {
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
