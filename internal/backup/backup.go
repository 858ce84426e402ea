// Package backup takes periodic snapshots of the portal database using
// SQLite's VACUUM INTO, which produces a consistent copy without blocking
// writers for the duration of the copy.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"p4portal/internal/audit"
)

const backupTimeFormat = "20060102-150405"

// Scheduler runs database backups on a fixed interval and prunes old
// snapshot files beyond the retention count.
type Scheduler struct {
	db       *sql.DB
	dir      string
	interval time.Duration
	retain   int
	logger   *slog.Logger
	audit    audit.Sink
	now      func() time.Time

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// NewScheduler builds a Scheduler. retain <= 0 disables pruning.
func NewScheduler(db *sql.DB, dir string, interval time.Duration, retain int, logger *slog.Logger, sink audit.Sink) (*Scheduler, error) {
	if db == nil {
		return nil, fmt.Errorf("backup scheduler requires a database handle")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("backup interval must be positive, got %s", interval)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", dir, err)
	}
	return &Scheduler{
		db:       db,
		dir:      dir,
		interval: interval,
		retain:   retain,
		logger:   logger,
		audit:    sink,
		now:      time.Now,
	}, nil
}

// Start launches the backup loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopChan != nil {
		return
	}
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(ctx, s.stopChan, s.done)
	s.logger.InfoContext(ctx, "Backup scheduler started",
		slog.String("component", "backup_scheduler"),
		slog.Duration("interval", s.interval),
		slog.String("dir", s.dir))
}

// Stop halts the loop and waits for an in-flight backup to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopChan, done := s.stopChan, s.done
	s.stopChan, s.done = nil, nil
	s.mu.Unlock()

	if stopChan == nil {
		return
	}
	close(stopChan)
	<-done
}

func (s *Scheduler) run(ctx context.Context, stopChan, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Scheduled backup failed",
					slog.String("component", "backup_scheduler"),
					slog.String("error", err.Error()))
			}
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce takes a single backup snapshot and prunes old ones. It returns the
// path of the snapshot file.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	target := filepath.Join(s.dir, fmt.Sprintf("portal-%s.db", s.now().UTC().Format(backupTimeFormat)))

	// VACUUM INTO does not accept bound parameters for the file name.
	quoted := strings.ReplaceAll(target, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		s.recordAudit(ctx, target, fmt.Sprintf("backup failed: %v", err), true)
		return "", fmt.Errorf("vacuum into %s: %w", target, err)
	}

	s.logger.InfoContext(ctx, "Backup snapshot written",
		slog.String("component", "backup_scheduler"),
		slog.String("path", target))
	s.recordAudit(ctx, target, "backup snapshot written", false)

	if err := s.prune(); err != nil {
		s.logger.WarnContext(ctx, "Backup pruning failed",
			slog.String("component", "backup_scheduler"),
			slog.String("error", err.Error()))
	}
	return target, nil
}

// prune removes the oldest snapshots beyond the retention count.
func (s *Scheduler) prune() error {
	if s.retain <= 0 {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "portal-*.db"))
	if err != nil {
		return err
	}
	if len(matches) <= s.retain {
		return nil
	}
	// Timestamped names sort chronologically.
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-s.retain] {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) recordAudit(ctx context.Context, subject, message string, isError bool) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, "backup_scheduler", "backup", subject, message, isError)
}
