//go:build !windows

package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	creackpty "github.com/creack/pty"
	"golang.org/x/sys/unix"
)

type nativeSystem struct{}

// NativeSystem returns the System backed by the host's pseudo-terminals.
func NativeSystem() System { return nativeSystem{} }

func (nativeSystem) OpenPTY(size Size) (Master, Slave, error) {
	ptmx, tty, err := creackpty.Open()
	if err != nil {
		return nil, nil, err
	}
	if err := creackpty.Setsize(ptmx, &creackpty.Winsize{Cols: size.Cols, Rows: size.Rows}); err != nil {
		_ = ptmx.Close()
		_ = tty.Close()
		return nil, nil, err
	}
	return &nativeMaster{ptmx: ptmx}, &nativeSlave{tty: tty}, nil
}

type nativeMaster struct {
	ptmx *os.File
}

func (m *nativeMaster) Resize(size Size) error {
	return creackpty.Setsize(m.ptmx, &creackpty.Winsize{Cols: size.Cols, Rows: size.Rows})
}

func (m *nativeMaster) TakeWriter() (io.WriteCloser, error) {
	f, err := m.dup("ptmx-writer")
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (m *nativeMaster) CloneReader() (io.ReadCloser, error) {
	f, err := m.dup("ptmx-reader")
	if err != nil {
		return nil, err
	}
	return &masterReader{f: f}, nil
}

func (m *nativeMaster) Close() error { return m.ptmx.Close() }

func (m *nativeMaster) dup(name string) (*os.File, error) {
	raw, err := m.ptmx.SyscallConn()
	if err != nil {
		return nil, err
	}
	var (
		fd     int
		dupErr error
	)
	if err := raw.Control(func(orig uintptr) {
		fd, dupErr = unix.Dup(int(orig))
	}); err != nil {
		return nil, err
	}
	if dupErr != nil {
		return nil, fmt.Errorf("dup %s: %w", name, dupErr)
	}
	unix.CloseOnExec(fd)
	return os.NewFile(uintptr(fd), name), nil
}

// masterReader reports the hang-up of the slave side as end of stream.
// Linux signals it with EIO once the last slave descriptor is closed.
type masterReader struct {
	f *os.File
}

func (r *masterReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if err != nil && errors.Is(err, syscall.EIO) {
		err = io.EOF
	}
	return n, err
}

func (r *masterReader) Close() error { return r.f.Close() }

type nativeSlave struct {
	tty *os.File
}

func (s *nativeSlave) Spawn(c Command) (Child, error) {
	cmd := exec.Command(c.Program, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = overlayEnv(os.Environ(), c.Env)
	cmd.Stdin = s.tty
	cmd.Stdout = s.tty
	cmd.Stderr = s.tty
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	wait := func() (int, error) {
		err := cmd.Wait()
		return exitCode(cmd.ProcessState, err)
	}
	return newReapedChild(cmd.Process.Pid, wait, cmd.Process.Kill), nil
}

func (s *nativeSlave) Close() error { return s.tty.Close() }

// exitCode maps a finished process to a shell-style exit code: the status
// for a normal exit, 128+signal for a signalled one.
func exitCode(state *os.ProcessState, waitErr error) (int, error) {
	if state == nil {
		return 0, waitErr
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return state.ExitCode(), nil
}

func defaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}
