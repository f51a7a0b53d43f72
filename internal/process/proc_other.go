//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func terminateGroup(p *os.Process) error {
	return p.Kill()
}

func killGroup(pgid int) {}

func signalOf(state *os.ProcessState) (string, bool) {
	return "", false
}
