//go:build windows

package pty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/UserExistsError/conpty"
	"golang.org/x/sys/windows"
)

var errConsoleNotStarted = errors.New("pty: pseudo console not started")

type nativeSystem struct{}

// NativeSystem returns the System backed by Windows pseudo consoles.
func NativeSystem() System { return nativeSystem{} }

// OpenPTY reserves a pseudo console. ConPTY creates the console together with
// the process attached to it, so until Spawn the master only tracks the size
// and the handles taken from it wait for the console to exist.
func (nativeSystem) OpenPTY(size Size) (Master, Slave, error) {
	if !conpty.IsConPtyAvailable() {
		return nil, nil, fmt.Errorf("pty: ConPTY not available: %w", errors.ErrUnsupported)
	}
	c := &console{size: size}
	return &consoleMaster{c: c}, &consoleSlave{c: c}, nil
}

// console is shared by the master, the slave and the reader and writer.
type console struct {
	mu     sync.Mutex
	size   Size
	cpty   *conpty.ConPty
	closed bool
}

func (c *console) get() (*conpty.ConPty, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, os.ErrClosed
	}
	if c.cpty == nil {
		return nil, errConsoleNotStarted
	}
	return c.cpty, nil
}

func (c *console) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type consoleMaster struct {
	c *console
}

func (m *consoleMaster) Resize(size Size) error {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if m.c.cpty != nil {
		if err := m.c.cpty.Resize(int(size.Cols), int(size.Rows)); err != nil {
			return err
		}
	}
	m.c.size = size
	return nil
}

func (m *consoleMaster) TakeWriter() (io.WriteCloser, error) {
	return &consoleWriter{c: m.c}, nil
}

func (m *consoleMaster) CloneReader() (io.ReadCloser, error) {
	return &consoleReader{c: m.c}, nil
}

// Close tears down the pseudo console, which also ends its attached process.
func (m *consoleMaster) Close() error {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if m.c.closed {
		return nil
	}
	m.c.closed = true
	if m.c.cpty == nil {
		return nil
	}
	return m.c.cpty.Close()
}

type consoleWriter struct {
	c *console
}

func (w *consoleWriter) Write(p []byte) (int, error) {
	cpty, err := w.c.get()
	if err != nil {
		return 0, err
	}
	return cpty.Write(p)
}

// Close is a no-op; the console's pipes are closed with the master.
func (w *consoleWriter) Close() error { return nil }

type consoleReader struct {
	c *console
}

// Read reports a broken output pipe, or a console closed under it, as end
// of stream.
func (r *consoleReader) Read(p []byte) (int, error) {
	cpty, err := r.c.get()
	if errors.Is(err, os.ErrClosed) {
		return 0, io.EOF
	}
	if err != nil {
		return 0, err
	}
	n, err := cpty.Read(p)
	if err != nil && (errors.Is(err, windows.ERROR_BROKEN_PIPE) || r.c.isClosed()) {
		err = io.EOF
	}
	return n, err
}

func (r *consoleReader) Close() error { return nil }

type consoleSlave struct {
	c *console
}

func (s *consoleSlave) Spawn(cmd Command) (Child, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.c.closed {
		return nil, os.ErrClosed
	}
	if s.c.cpty != nil {
		return nil, errors.New("pty: pseudo console already has a process")
	}

	opts := []conpty.ConPtyOption{
		conpty.ConPtyDimensions(int(s.c.size.Cols), int(s.c.size.Rows)),
		conpty.ConPtyEnv(overlayEnv(os.Environ(), cmd.Env)),
	}
	if cmd.Dir != "" {
		opts = append(opts, conpty.ConPtyWorkDir(cmd.Dir))
	}
	cpty, err := conpty.Start(windows.ComposeCommandLine(append([]string{cmd.Program}, cmd.Args...)), opts...)
	if err != nil {
		return nil, err
	}
	s.c.cpty = cpty

	pid := cpty.Pid()
	wait := func() (int, error) {
		code, err := cpty.Wait(context.Background())
		return int(code), err
	}
	kill := func() error {
		p, err := os.FindProcess(pid)
		if err != nil {
			return err
		}
		return p.Kill()
	}
	return newReapedChild(pid, wait, kill), nil
}

// Close is a no-op: the pseudo console owns the terminal side.
func (s *consoleSlave) Close() error { return nil }

func defaultShell() string {
	if comspec := os.Getenv("ComSpec"); comspec != "" {
		return comspec
	}
	return "powershell.exe"
}
