package pty

import (
	"strings"
	"testing"
	"time"
)

// readUntil polls ReadFromSession until the accumulated output contains want.
func readUntil(t *testing.T, m *Manager, h Handle, want string) string {
	t.Helper()
	out := make(chan string, 1)
	go func() {
		var sb strings.Builder
		for {
			data, err := m.ReadFromSession(h)
			if err != nil {
				break
			}
			sb.Write(data)
			if strings.Contains(sb.String(), want) {
				break
			}
			if len(data) == 0 {
				time.Sleep(10 * time.Millisecond)
			}
		}
		out <- sb.String()
	}()
	select {
	case got := <-out:
		if !strings.Contains(got, want) {
			t.Fatalf("output %q does not contain %q", got, want)
		}
		return got
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
		return ""
	}
}
