package pty

import (
	"context"
	"time"

	"github.com/kballard/go-shellquote"
)

// EventKind names a point in a session's life.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventEnded    EventKind = "ended"
	EventExited   EventKind = "exited"
	EventReleased EventKind = "released"
)

// LifecycleEvent is what the manager hands to a Journal.
type LifecycleEvent struct {
	Handle      Handle
	Kind        EventKind
	CommandLine string
	Cwd         string
	ExitCode    *int
	At          time.Time
}

// Journal records session lifecycle events. A failing journal never fails
// the session operation that produced the event.
type Journal interface {
	RecordSessionEvent(ctx context.Context, ev LifecycleEvent) error
}

type nopJournal struct{}

func (nopJournal) RecordSessionEvent(context.Context, LifecycleEvent) error { return nil }

// CommandLine renders program and args the way a shell would read them.
func CommandLine(program string, args []string) string {
	return shellquote.Join(append([]string{program}, args...)...)
}

func (m *Manager) record(s *Session, kind EventKind, code *int) {
	var cmdline string
	if s.program != "" {
		cmdline = CommandLine(s.program, s.args)
	}
	ev := LifecycleEvent{
		Handle:      s.handle,
		Kind:        kind,
		CommandLine: cmdline,
		Cwd:         s.cwd,
		ExitCode:    code,
		At:          m.now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.journal.RecordSessionEvent(ctx, ev); err != nil {
		m.logger.Warn("journal write failed", "handle", s.handle, "kind", kind, "error", err)
	}
}

// recordHandle records an event for a process the table may not hold.
func (m *Manager) recordHandle(h Handle, kind EventKind) {
	m.record(&Session{handle: h}, kind, nil)
}
