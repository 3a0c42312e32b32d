package pty

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
)

// fakeSystem is an in-memory PTY layer. Everything written to a session's
// terminal is echoed back on its output, like a terminal in cooked mode.
type fakeSystem struct {
	mu      sync.Mutex
	nextPID int
	fixPID  int
	noPID   bool

	openErr   error
	writerErr error
	readerErr error
	spawnErr  error

	masters  []*fakeMaster
	commands []Command
	children []*fakeChild
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{nextPID: 1000}
}

func (f *fakeSystem) OpenPTY(size Size) (Master, Slave, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, nil, f.openErr
	}
	m := &fakeMaster{sys: f, term: newEcho(), sizes: []Size{size}}
	f.masters = append(f.masters, m)
	return m, &fakeSlave{sys: f}, nil
}

func (f *fakeSystem) lastMaster() *fakeMaster {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.masters[len(f.masters)-1]
}

func (f *fakeSystem) lastCommand() Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commands[len(f.commands)-1]
}

func (f *fakeSystem) child(h Handle) *fakeChild {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.children {
		if c.pid == int(h) {
			return c
		}
	}
	return nil
}

type fakeMaster struct {
	sys  *fakeSystem
	term *echo

	mu     sync.Mutex
	sizes  []Size
	closed bool
}

func (m *fakeMaster) Resize(size Size) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return os.ErrClosed
	}
	m.sizes = append(m.sizes, size)
	return nil
}

func (m *fakeMaster) TakeWriter() (io.WriteCloser, error) {
	if m.sys.writerErr != nil {
		return nil, m.sys.writerErr
	}
	return nopWriteCloser{m.term}, nil
}

func (m *fakeMaster) CloneReader() (io.ReadCloser, error) {
	if m.sys.readerErr != nil {
		return nil, m.sys.readerErr
	}
	return m.term, nil
}

func (m *fakeMaster) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.term.Close()
}

func (m *fakeMaster) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *fakeMaster) lastSize() Size {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sizes[len(m.sizes)-1]
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type fakeSlave struct {
	sys *fakeSystem
}

func (s *fakeSlave) Spawn(cmd Command) (Child, error) {
	f := s.sys
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	f.commands = append(f.commands, cmd)
	pid := f.nextPID
	f.nextPID++
	if f.fixPID != 0 {
		pid = f.fixPID
	}
	c := &fakeChild{pid: pid, hasPID: !f.noPID, done: make(chan struct{})}
	f.children = append(f.children, c)
	return c, nil
}

func (s *fakeSlave) Close() error { return nil }

type fakeChild struct {
	pid    int
	hasPID bool
	done   chan struct{}

	mu     sync.Mutex
	code   int
	killed bool
	waits  int
	once   sync.Once

	waitCalls int
}

func (c *fakeChild) PID() (int, bool) { return c.pid, c.hasPID }

func (c *fakeChild) Done() <-chan struct{} { return c.done }

func (c *fakeChild) Wait() (int, error) {
	c.mu.Lock()
	c.waitCalls++
	c.mu.Unlock()
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits++
	return c.code, nil
}

func (c *fakeChild) TryWait() (int, bool, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.code, true, nil
	default:
		return 0, false, nil
	}
}

func (c *fakeChild) Kill() error {
	c.mu.Lock()
	c.killed = true
	c.mu.Unlock()
	c.exit(137)
	return nil
}

func (c *fakeChild) exit(code int) {
	c.once.Do(func() {
		c.mu.Lock()
		c.code = code
		c.mu.Unlock()
		close(c.done)
	})
}

// echo is a blocking byte queue: Read waits for data or Close.
type echo struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newEcho() *echo {
	e := &echo{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *echo) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, os.ErrClosed
	}
	e.buf = append(e.buf, p...)
	e.cond.Broadcast()
	return len(p), nil
}

func (e *echo) Read(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.buf) == 0 && !e.closed {
		e.cond.Wait()
	}
	if len(e.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, e.buf)
	e.buf = e.buf[n:]
	return n, nil
}

func (e *echo) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.cond.Broadcast()
	return nil
}

type fakeInspector struct {
	mu      sync.Mutex
	cwds    map[int]string
	killed  []int
	killErr error
}

func (in *fakeInspector) Cwd(pid int) (string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	dir, ok := in.cwds[pid]
	if !ok {
		return "", errors.New("no such process")
	}
	return dir, nil
}

func (in *fakeInspector) KillTree(pid int) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.killErr != nil {
		return in.killErr
	}
	in.killed = append(in.killed, pid)
	return nil
}

func (in *fakeInspector) killedPIDs() []int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]int(nil), in.killed...)
}

type memJournal struct {
	mu     sync.Mutex
	events []LifecycleEvent
	err    error
}

func (j *memJournal) RecordSessionEvent(_ context.Context, ev LifecycleEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.events = append(j.events, ev)
	return nil
}

func (j *memJournal) kinds() []EventKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	kinds := make([]EventKind, 0, len(j.events))
	for _, ev := range j.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}
