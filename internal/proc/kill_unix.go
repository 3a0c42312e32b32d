//go:build !windows

package proc

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func killAll(root int, tree []int) error {
	// Shells started on a pty lead their own process group; signalling the
	// group catches children forked after the snapshot. Only a group the
	// root leads is signalled.
	if pgid, err := unix.Getpgid(root); err == nil && pgid == root && pgid != unix.Getpgrp() {
		_ = unix.Kill(-root, unix.SIGKILL)
	}

	if err := unix.Kill(root, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("proc: kill %d: %w", root, err)
	}
	var errs []error
	for _, pid := range tree {
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, fmt.Errorf("proc: kill %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}
