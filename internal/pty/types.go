package pty

import (
	"io"
	"time"
)

// Handle identifies a session. It is the OS process id of the session's
// shell, assigned at spawn time.
type Handle int

const (
	DefaultCols uint16 = 200
	DefaultRows uint16 = 100

	// ReadBufferSize bounds a single ReadFromSession call.
	ReadBufferSize = 1024
)

// Size is a terminal size in character cells.
type Size struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// CreateOptions are the per-call overrides for CreateSession. Zero values
// mean "not given": nil Args or Env fall back to the configured shell
// defaults, zero Cols/Rows to the default size, an empty Cwd and a zero
// ReferringHandle to the inherited working directory.
type CreateOptions struct {
	Args            []string
	Cols            uint16
	Rows            uint16
	Cwd             string
	Env             map[string]string
	ReferringHandle Handle
}

// ExitStatus is the result of a non-blocking exit poll.
type ExitStatus struct {
	HasExited bool `json:"hasExited"`
	ExitCode  *int `json:"exitCode"`
}

// SessionInfo is a read-only snapshot of a table entry.
type SessionInfo struct {
	Handle    Handle    `json:"handle"`
	Program   string    `json:"program"`
	Args      []string  `json:"args"`
	Cwd       string    `json:"cwd,omitempty"`
	Cols      uint16    `json:"cols"`
	Rows      uint16    `json:"rows"`
	CreatedAt time.Time `json:"createdAt"`
	Exited    bool      `json:"exited"`
	ExitCode  *int      `json:"exitCode,omitempty"`
}

// Command describes the process spawned on the slave side of a PTY.
// Env is overlaid on the backend's own environment.
type Command struct {
	Program string
	Args    []string
	Dir     string
	Env     map[string]string
}

// System opens pseudo-terminals. It is the seam to the OS.
type System interface {
	OpenPTY(size Size) (Master, Slave, error)
}

// Master is the controlling side of a PTY.
type Master interface {
	Resize(size Size) error
	// TakeWriter and CloneReader return handles that can be used
	// independently of the master and of each other.
	TakeWriter() (io.WriteCloser, error)
	CloneReader() (io.ReadCloser, error)
	Close() error
}

// Slave is the terminal side of a PTY that the child process is attached to.
type Slave interface {
	Spawn(cmd Command) (Child, error)
	Close() error
}

// Child is a process spawned on a slave. Wait may be called concurrently
// with TryWait and Kill. Done is closed once the process has exited and
// been reaped, after which Wait returns immediately.
type Child interface {
	PID() (int, bool)
	Done() <-chan struct{}
	Wait() (int, error)
	TryWait() (code int, exited bool, err error)
	Kill() error
}

// ProcessInspector answers questions about arbitrary processes by pid.
type ProcessInspector interface {
	Cwd(pid int) (string, error)
	KillTree(pid int) error
}
