package pty

import (
	"errors"
	"io"
	"sync"
	"time"
)

// Session is one live PTY with the shell attached to it. The four OS
// resources are locked independently so that a blocked read or wait never
// holds up a write, a resize or an exit poll on the same session.
type Session struct {
	handle    Handle
	program   string
	args      []string
	cwd       string
	createdAt time.Time

	masterMu sync.Mutex
	master   Master
	size     Size

	childMu sync.Mutex
	child   Child

	writerMu sync.Mutex
	writer   io.WriteCloser

	readerMu sync.Mutex
	reader   io.ReadCloser

	stateMu  sync.Mutex
	exited   bool
	exitCode int

	closeOnce sync.Once
	closeErr  error
}

func (s *Session) write(data []byte) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	// io.Writer already reports short writes as errors; loop for writers
	// that return n < len without one.
	for len(data) > 0 {
		n, err := s.writer.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}

func (s *Session) read() ([]byte, error) {
	s.readerMu.Lock()
	defer s.readerMu.Unlock()

	buf := make([]byte, ReadBufferSize)
	n, err := s.reader.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:0], nil
}

func (s *Session) resize(size Size) error {
	s.masterMu.Lock()
	defer s.masterMu.Unlock()

	if err := s.master.Resize(size); err != nil {
		return err
	}
	s.size = size
	return nil
}

func (s *Session) currentSize() Size {
	s.masterMu.Lock()
	defer s.masterMu.Unlock()
	return s.size
}

// childHandle returns the child without keeping its lock, so the caller may
// block on it while TryWait stays available to others.
func (s *Session) childHandle() Child {
	s.childMu.Lock()
	defer s.childMu.Unlock()
	return s.child
}

func (s *Session) tryWait() (int, bool, error) {
	s.childMu.Lock()
	defer s.childMu.Unlock()
	return s.child.TryWait()
}

// markExited stores the exit code and reports whether this call was the
// first to observe the exit.
func (s *Session) markExited(code int) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.exited {
		return false
	}
	s.exited = true
	s.exitCode = code
	return true
}

func (s *Session) exitState() (bool, int) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.exited, s.exitCode
}

func (s *Session) info() SessionInfo {
	size := s.currentSize()
	info := SessionInfo{
		Handle:    s.handle,
		Program:   s.program,
		Args:      append([]string(nil), s.args...),
		Cwd:       s.cwd,
		Cols:      size.Cols,
		Rows:      size.Rows,
		CreatedAt: s.createdAt,
	}
	if exited, code := s.exitState(); exited {
		info.Exited = true
		info.ExitCode = &code
	}
	return info
}

// close releases the OS handles. The process itself is left alone.
func (s *Session) close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.writer != nil {
			errs = append(errs, s.writer.Close())
		}
		if s.reader != nil {
			errs = append(errs, s.reader.Close())
		}
		if s.master != nil {
			errs = append(errs, s.master.Close())
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
