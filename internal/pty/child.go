package pty

import (
	"errors"
	"os"
	"sync"
)

// reapedChild waits for its process in the background so that TryWait never
// blocks and Wait can be called from any number of goroutines.
type reapedChild struct {
	pid  int
	kill func() error
	done chan struct{}

	mu      sync.Mutex
	code    int
	waitErr error
}

func newReapedChild(pid int, wait func() (int, error), kill func() error) *reapedChild {
	c := &reapedChild{pid: pid, kill: kill, done: make(chan struct{})}
	go func() {
		code, err := wait()
		c.mu.Lock()
		c.code, c.waitErr = code, err
		c.mu.Unlock()
		close(c.done)
	}()
	return c
}

func (c *reapedChild) PID() (int, bool) {
	return c.pid, c.pid > 0
}

func (c *reapedChild) Wait() (int, error) {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code, c.waitErr
}

func (c *reapedChild) Done() <-chan struct{} { return c.done }

func (c *reapedChild) TryWait() (int, bool, error) {
	select {
	case <-c.done:
		code, err := c.Wait()
		return code, true, err
	default:
		return 0, false, nil
	}
}

func (c *reapedChild) Kill() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	if err := c.kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
