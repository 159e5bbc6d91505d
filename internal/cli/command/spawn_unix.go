//go:build unix

package command

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"

	"github.com/layerkv/layerkv/internal/server/config"
)

// spawnRelay starts "layerkv relay" in its own session, serving on a copy
// of ln. The caller still owns ln.
func spawnRelay(ln net.Listener, cfg config.RelaySection, configFile string) error {
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		return errSpawnUnsupported
	}
	f, err := tl.File()
	if err != nil {
		return fmt.Errorf("dup listener: %w", err)
	}
	defer f.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	var args []string
	if configFile != "" {
		args = append(args, "--config", configFile)
	}
	// ExtraFiles[0] becomes fd 3 in the child.
	args = append(args, "relay", "--listen-fd", "3", "--listen", cfg.Addr)
	if cfg.Linger {
		args = append(args, "--linger")
	}

	cmd := exec.Command(exe, args...)
	cmd.ExtraFiles = []*os.File{f}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", exe, err)
	}
	return cmd.Process.Release()
}
