package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionEvent is one row of the session journal.
type SessionEvent struct {
	ID          string    `json:"id"`
	Handle      int       `json:"handle"`
	Kind        string    `json:"kind"`
	CommandLine string    `json:"commandLine,omitempty"`
	Cwd         string    `json:"cwd,omitempty"`
	ExitCode    *int      `json:"exitCode,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func NewID() string {
	return uuid.NewString()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// timestampLayout is fixed width so that stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = nowUTC()
	}
	return ts.UTC().Format(timestampLayout)
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	return ts, nil
}
