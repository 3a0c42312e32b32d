package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/alphacentauri/internal/pty"
)

func TestSessionEventRepoCreateAndList(t *testing.T) {
	database, _ := openTestDB(t)
	repo := NewSessionEventRepo(database.SQL())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code := 0
	events := []*SessionEvent{
		{Handle: 100, Kind: "created", CommandLine: "/bin/zsh -l", Cwd: "/home/u", CreatedAt: base},
		{Handle: 200, Kind: "created", CommandLine: "/bin/sh", CreatedAt: base.Add(time.Second)},
		{Handle: 100, Kind: "exited", ExitCode: &code, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, ev := range events {
		require.NoError(t, repo.Create(ctx, ev))
		assert.NotEmpty(t, ev.ID)
	}

	all, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "exited", all[0].Kind, "newest first")
	require.NotNil(t, all[0].ExitCode)
	assert.Equal(t, 0, *all[0].ExitCode)
	assert.Nil(t, all[1].ExitCode)
	assert.True(t, all[2].CreatedAt.Equal(base))
	assert.Equal(t, "/home/u", all[2].Cwd)

	only100, err := repo.List(ctx, ListFilter{Handle: 100})
	require.NoError(t, err)
	require.Len(t, only100, 2)
	for _, ev := range only100 {
		assert.Equal(t, 100, ev.Handle)
	}

	limited, err := repo.List(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSessionEventRepoRequiresKind(t *testing.T) {
	database, _ := openTestDB(t)
	repo := NewSessionEventRepo(database.SQL())

	assert.Error(t, repo.Create(context.Background(), &SessionEvent{Handle: 1}))
	assert.Error(t, repo.Create(context.Background(), nil))
}

func TestSessionEventRepoSameSecondKeepsOrder(t *testing.T) {
	database, _ := openTestDB(t)
	repo := NewSessionEventRepo(database.SQL())
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, kind := range []string{"created", "ended", "released"} {
		require.NoError(t, repo.Create(ctx, &SessionEvent{
			Handle:    7,
			Kind:      kind,
			CreatedAt: at.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	got, err := repo.List(ctx, ListFilter{Handle: 7})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"released", "ended", "created"}, []string{got[0].Kind, got[1].Kind, got[2].Kind})
}

func TestSessionEventRepoRecordsLifecycleEvents(t *testing.T) {
	database, _ := openTestDB(t)
	repo := NewSessionEventRepo(database.SQL())
	ctx := context.Background()

	var journal pty.Journal = repo
	code := 137
	require.NoError(t, journal.RecordSessionEvent(ctx, pty.LifecycleEvent{
		Handle:      4242,
		Kind:        pty.EventExited,
		CommandLine: pty.CommandLine("/bin/bash", []string{"-c", "sleep 1"}),
		ExitCode:    &code,
		At:          time.Now(),
	}))

	got, err := repo.List(ctx, ListFilter{Handle: 4242})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, string(pty.EventExited), got[0].Kind)
	require.NotNil(t, got[0].ExitCode)
	assert.Equal(t, 137, *got[0].ExitCode)
	assert.Contains(t, got[0].CommandLine, "/bin/bash")
}

func TestSessionEventRepoPrune(t *testing.T) {
	database, _ := openTestDB(t)
	repo := NewSessionEventRepo(database.SQL())
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Create(ctx, &SessionEvent{Handle: 1, Kind: "created", CreatedAt: old}))
	require.NoError(t, repo.Create(ctx, &SessionEvent{Handle: 2, Kind: "created"}))

	n, err := repo.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	left, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, 2, left[0].Handle)
}
