package proc

import (
	"github.com/prometheus/procfs"
)

// running reports whether pid exists and is not a zombie.
func running(pid int) bool {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return false
	}
	stat, err := p.Stat()
	if err != nil {
		return false
	}
	return stat.State != "Z" && stat.State != "X"
}
