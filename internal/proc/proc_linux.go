//go:build linux

package proc

import (
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/procfs"
)

func parentTable() (map[int]int, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, err
	}
	parents := make(map[int]int, len(procs))
	for _, p := range procs {
		stat, err := p.Stat()
		if err != nil {
			// Exited between listing and reading.
			continue
		}
		parents[p.PID] = stat.PPID
	}
	return parents, nil
}

func processCwd(pid int) (string, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return "", err
	}
	p, err := fs.Proc(pid)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("proc: open %d: %w", pid, err)
	}
	cwd, err := p.Cwd()
	if err != nil {
		return "", fmt.Errorf("proc: cwd of %d: %w", pid, err)
	}
	return cwd, nil
}
