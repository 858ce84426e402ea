package backup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p4portal/internal/store"
)

func newTestScheduler(t *testing.T, retain int) (*Scheduler, string) {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	backupDir := filepath.Join(dir, "backups")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	sched, err := NewScheduler(s.DB(), backupDir, time.Hour, retain, logger, nil)
	require.NoError(t, err)
	return sched, backupDir
}

func TestScheduler_RunOnce(t *testing.T) {
	sched, backupDir := newTestScheduler(t, 7)

	path, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, backupDir, filepath.Dir(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0), "snapshot must not be empty")
}

func TestScheduler_Prune(t *testing.T) {
	sched, backupDir := newTestScheduler(t, 2)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		offset := time.Duration(i) * time.Minute
		sched.now = func() time.Time { return base.Add(offset) }
		_, err := sched.RunOnce(context.Background())
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(filepath.Join(backupDir, "portal-*.db"))
	require.NoError(t, err)
	assert.Len(t, matches, 2, "only the newest snapshots survive pruning")
}

func TestScheduler_StartStop(t *testing.T) {
	sched, _ := newTestScheduler(t, 1)

	ctx := context.Background()
	sched.Start(ctx)
	sched.Start(ctx) // idempotent

	done := make(chan struct{})
	go func() {
		sched.Stop()
		sched.Stop() // idempotent
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestNewScheduler_Invalid(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "portal.db"))
	require.NoError(t, err)
	defer s.Close()
	logger := slog.Default()

	_, err = NewScheduler(nil, dir, time.Hour, 1, logger, nil)
	assert.Error(t, err)

	_, err = NewScheduler(s.DB(), dir, 0, 1, logger, nil)
	assert.Error(t, err)
}
