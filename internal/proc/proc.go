// Package proc inspects and signals OS processes by pid: the working
// directory of a process and the tree of processes rooted at it.
package proc

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
)

// ErrNotFound is returned when no process with the given pid exists.
var ErrNotFound = errors.New("proc: process not found")

// ErrProtected is returned by KillTree for init, for the calling process and
// for any of its ancestors.
var ErrProtected = errors.New("proc: refusing to kill protected process")

// Inspector looks up and terminates processes on the host.
type Inspector struct {
	table func() (map[int]int, error)
	self  int
}

// New returns an Inspector backed by the host's process table.
func New() *Inspector {
	return &Inspector{table: parentTable, self: os.Getpid()}
}

// Descendants returns the pids of every process below pid, closest first.
func (in *Inspector) Descendants(pid int) ([]int, error) {
	parents, err := in.table()
	if err != nil {
		return nil, fmt.Errorf("proc: read process table: %w", err)
	}
	return descendants(parents, pid), nil
}

// KillTree sends SIGKILL (or the platform equivalent) to pid and to every
// process below it. A target that is already gone is not an error.
func (in *Inspector) KillTree(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("proc: invalid pid %d", pid)
	}
	if pid == 1 || pid == in.self {
		return fmt.Errorf("%w %d", ErrProtected, pid)
	}
	// Snapshot the tree first: once the root dies its children get
	// reparented and can no longer be found through it.
	tree, err := in.Descendants(pid)
	if err != nil && !errors.Is(err, errors.ErrUnsupported) {
		return err
	}
	if in.self > 0 && slices.Contains(tree, in.self) {
		return fmt.Errorf("%w %d: ancestor of pid %d", ErrProtected, pid, in.self)
	}
	return killAll(pid, tree)
}

// Cwd returns the current working directory of pid.
func (in *Inspector) Cwd(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("proc: invalid pid %d", pid)
	}
	return processCwd(pid)
}

// descendants walks a child->parent table breadth-first from root.
func descendants(parents map[int]int, root int) []int {
	children := make(map[int][]int, len(parents))
	for pid, ppid := range parents {
		if pid == ppid {
			continue
		}
		children[ppid] = append(children[ppid], pid)
	}
	for _, c := range children {
		sort.Ints(c)
	}

	var out []int
	seen := map[int]bool{root: true}
	queue := []int{root}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, c := range children[next] {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}
