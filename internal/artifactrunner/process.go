package artifactrunner

import (
	"os/exec"
	"syscall"
	"time"
)

// setProcessGroup configures cmd to start in a new process group so the
// whole tree (dev server + any child it spawns) can be torn down together.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends TERM to the process group, waits 500ms, and
// escalates to KILL if anything is still alive.
func killProcessGroup(pid int) {
	syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(500 * time.Millisecond)
	if processAlive(pid) {
		syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
