package pty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/user/alphacentauri/internal/config"
	"github.com/user/alphacentauri/internal/notify"
	"github.com/user/alphacentauri/internal/proc"
)

const msgRelease = "There was an error releasing the shell session."

// Manager owns the session table. Entries are added by CreateSession and
// removed only by ReleaseSession: neither EndSession nor the shell exiting
// removes anything, so callers are expected to release what they create.
type Manager struct {
	mu       sync.RWMutex
	sessions map[Handle]*Session

	system    System
	inspector ProcessInspector
	config    *config.Store
	notifier  notify.Sink
	journal   Journal
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithSystem replaces the OS pseudo-terminal layer.
func WithSystem(sys System) Option { return func(m *Manager) { m.system = sys } }

// WithInspector replaces the process inspector used for cwd lookup and tree kill.
func WithInspector(in ProcessInspector) Option { return func(m *Manager) { m.inspector = in } }

// WithConfig sets the configuration the shell launch defaults are read from.
func WithConfig(store *config.Store) Option { return func(m *Manager) { m.config = store } }

// WithNotifier sets where failure notifications go.
func WithNotifier(sink notify.Sink) Option { return func(m *Manager) { m.notifier = sink } }

// WithJournal sets the lifecycle journal.
func WithJournal(j Journal) Option { return func(m *Manager) { m.journal = j } }

// WithLogger sets the logger for session lifecycle and failures.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// NewManager creates a Manager with an empty table.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:  make(map[Handle]*Session),
		system:    NativeSystem(),
		inspector: proc.New(),
		config:    config.NewStore(nil),
		notifier:  notify.Discard,
		journal:   nopJournal{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession opens a PTY, spawns the configured shell on it and registers
// the session under the shell's pid. Nothing is registered unless every step
// succeeds.
func (m *Manager) CreateSession(ctx context.Context, opts CreateOptions) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, m.fail("context", msgCreate, err)
	}

	shell := m.config.Shell()
	args := shell.Args
	if opts.Args != nil {
		args = opts.Args
	}
	env := shell.Env
	if opts.Env != nil {
		env = opts.Env
	}
	size := Size{Cols: DefaultCols, Rows: DefaultRows}
	if opts.Cols != 0 {
		size.Cols = opts.Cols
	}
	if opts.Rows != 0 {
		size.Rows = opts.Rows
	}
	cwd := m.resolveCwd(opts)
	program, args := resolveProgram(shell.Program, args)

	master, slave, err := m.system.OpenPTY(size)
	if err != nil {
		return 0, m.fail("openpty", msgCreate, fmt.Errorf("pty: open: %w", err))
	}
	writer, err := master.TakeWriter()
	if err != nil {
		_ = slave.Close()
		_ = master.Close()
		return 0, m.fail("take_writer", msgCreate, fmt.Errorf("pty: take writer: %w", err))
	}
	reader, err := master.CloneReader()
	if err != nil {
		_ = writer.Close()
		_ = slave.Close()
		_ = master.Close()
		return 0, m.fail("clone_reader", msgCreate, fmt.Errorf("pty: clone reader: %w", err))
	}

	s := &Session{
		program:   program,
		args:      append([]string(nil), args...),
		cwd:       cwd,
		createdAt: m.now().UTC(),
		master:    master,
		size:      size,
		writer:    writer,
		reader:    reader,
	}

	child, err := slave.Spawn(Command{Program: program, Args: args, Dir: cwd, Env: env})
	if err != nil {
		_ = slave.Close()
		_ = s.close()
		return 0, m.fail("spawn", msgCreate, fmt.Errorf("pty: spawn %s: %w", program, err))
	}
	// The child holds its own copy of the terminal.
	if err := slave.Close(); err != nil {
		m.logger.Debug("close slave", "error", err)
	}

	pid, ok := child.PID()
	if !ok || pid <= 0 {
		_ = child.Kill()
		_ = s.close()
		return 0, m.fail("process_id", msgNoPID, ErrNoProcessID)
	}
	s.handle = Handle(pid)
	s.child = child

	m.mu.Lock()
	stale := m.sessions[s.handle]
	m.sessions[s.handle] = s
	m.mu.Unlock()

	if stale != nil {
		m.logger.Warn("replacing stale session with reused pid", "handle", s.handle)
		_ = stale.close()
	}

	m.logger.Info("session created", "handle", s.handle, "program", program,
		"cols", size.Cols, "rows", size.Rows, "cwd", cwd)
	m.record(s, EventCreated, nil)
	return s.handle, nil
}

// WriteToSession writes all of data to the session's terminal.
func (m *Manager) WriteToSession(h Handle, data []byte) error {
	s, err := m.lookup(h, msgWrite)
	if err != nil {
		return err
	}
	if err := s.write(data); err != nil {
		return m.fail("write", msgWrite, fmt.Errorf("pty: write %d: %w", h, err))
	}
	return nil
}

// ReadFromSession performs one read of at most ReadBufferSize bytes. It
// blocks until output is available. An empty result with a nil error means
// nothing was read; it does not mean the session is over.
func (m *Manager) ReadFromSession(h Handle) ([]byte, error) {
	s, err := m.lookup(h, msgRead)
	if err != nil {
		return nil, err
	}
	data, err := s.read()
	if err != nil {
		return nil, m.fail("read", msgRead, fmt.Errorf("pty: read %d: %w", h, err))
	}
	return data, nil
}

// Resize changes the terminal size in cells. Pixel dimensions are always zero.
func (m *Manager) Resize(h Handle, cols, rows uint16) error {
	s, err := m.lookup(h, msgResize)
	if err != nil {
		return err
	}
	if err := s.resize(Size{Cols: cols, Rows: rows}); err != nil {
		return m.fail("resize", msgResize, fmt.Errorf("pty: resize %d: %w", h, err))
	}
	m.logger.Debug("session resized", "handle", h, "cols", cols, "rows", rows)
	return nil
}

// EndSession kills the process tree rooted at h. The table is not consulted
// and the entry, if any, stays until it is released.
func (m *Manager) EndSession(h Handle) error {
	if err := m.inspector.KillTree(int(h)); err != nil {
		return m.fail("kill_tree", msgEnd, fmt.Errorf("pty: end %d: %w", h, err))
	}
	m.logger.Info("session ended", "handle", h)
	m.recordHandle(h, EventEnded)
	return nil
}

// WaitForExit blocks until the session's shell exits and returns its exit
// code. Cancelling ctx stops the wait but not the shell, and is not reported
// as a failure.
func (m *Manager) WaitForExit(ctx context.Context, h Handle) (int, error) {
	s, err := m.lookup(h, msgWait)
	if err != nil {
		return 0, err
	}
	child := s.childHandle()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-child.Done():
	}
	code, err := child.Wait()
	if err != nil {
		return 0, m.fail("wait", msgWait, fmt.Errorf("pty: wait %d: %w", h, err))
	}
	m.observeExit(s, code)
	return code, nil
}

// CheckExitStatus polls the shell without blocking.
func (m *Manager) CheckExitStatus(h Handle) (ExitStatus, error) {
	s, err := m.lookup(h, msgStatus)
	if err != nil {
		return ExitStatus{}, err
	}
	code, exited, err := s.tryWait()
	if err != nil {
		return ExitStatus{}, m.fail("try_wait", msgStatus, fmt.Errorf("pty: try wait %d: %w", h, err))
	}
	if !exited {
		return ExitStatus{}, nil
	}
	m.observeExit(s, code)
	return ExitStatus{HasExited: true, ExitCode: &code}, nil
}

// ReleaseSession removes h from the table and closes its terminal handles.
// It does not signal the process.
func (m *Manager) ReleaseSession(h Handle) error {
	m.mu.Lock()
	s, ok := m.sessions[h]
	delete(m.sessions, h)
	m.mu.Unlock()

	if !ok {
		return m.fail("lookup", msgRelease, unavailable(h))
	}
	if err := s.close(); err != nil {
		m.logger.Debug("close session handles", "handle", h, "error", err)
	}
	m.logger.Info("session released", "handle", h)
	m.record(s, EventReleased, nil)
	return nil
}

// ListSessions returns a snapshot of the table ordered by handle.
func (m *Manager) ListSessions() []SessionInfo {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].handle < sessions[j].handle })
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.info())
	}
	return infos
}

// Close empties the table and closes every session's terminal handles.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[Handle]*Session)
	m.mu.Unlock()

	for h, s := range sessions {
		if err := s.close(); err != nil {
			m.logger.Debug("close session handles", "handle", h, "error", err)
		}
	}
}

func (m *Manager) lookup(h Handle, message string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[h]
	m.mu.RUnlock()
	if !ok {
		return nil, m.fail("lookup", message, unavailable(h))
	}
	return s, nil
}

func unavailable(h Handle) error {
	return fmt.Errorf("%w %d", ErrUnavailableHandle, h)
}

// fail logs err and emits the single error notification for it.
func (m *Manager) fail(stage, message string, err error) error {
	details := stage + ": " + err.Error()
	if errors.Is(err, ErrUnavailableHandle) {
		m.logger.Warn("session lookup failed", "error", err)
	} else {
		m.logger.Error("session operation failed", "stage", stage, "error", err)
	}
	m.notifier.Notify(notify.Event{Level: notify.LevelError, Message: message, Details: details})
	return err
}

func (m *Manager) observeExit(s *Session, code int) {
	if !s.markExited(code) {
		return
	}
	m.logger.Info("session exited", "handle", s.handle, "code", code)
	m.record(s, EventExited, &code)
}

func (m *Manager) resolveCwd(opts CreateOptions) string {
	if opts.Cwd != "" {
		if isDir(opts.Cwd) {
			return opts.Cwd
		}
		m.logger.Debug("requested cwd unavailable", "cwd", opts.Cwd)
	}
	if opts.ReferringHandle > 0 {
		dir, err := m.inspector.Cwd(int(opts.ReferringHandle))
		if err == nil && isDir(dir) {
			return dir
		}
		m.logger.Debug("referring session cwd unavailable", "handle", opts.ReferringHandle, "error", err)
	}
	return ""
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// resolveProgram picks the platform shell for an empty program and splits a
// program that is really a command line, such as "bash --login".
func resolveProgram(program string, args []string) (string, []string) {
	if program == "" {
		return defaultShell(), args
	}
	if !strings.ContainsAny(program, " \t") {
		return program, args
	}
	if _, err := os.Stat(program); err == nil {
		return program, args
	}
	words, err := shellquote.Split(program)
	if err != nil || len(words) == 0 {
		return program, args
	}
	return words[0], append(words[1:], args...)
}
