// Package poll watches the moderation log and reposts Source Corner removals.
package poll

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"source-corner-reposter/pkg/sourcecorner"
)

// ModLogReader reads a subreddit's moderation log, newest first.
type ModLogReader interface {
	ModLog(ctx context.Context, subreddit string) iter.Seq2[*sourcecorner.ModAction, error]
}

// SubmissionReader fetches a submission with its top-level comments.
type SubmissionReader interface {
	Submission(ctx context.Context, id string) (*sourcecorner.Submission, error)
}

// ThreadReader fetches comments and what they reply to.
type ThreadReader interface {
	SubmissionReader
	Comment(ctx context.Context, permalink string) (*sourcecorner.Comment, error)
	Parent(ctx context.Context, comment *sourcecorner.Comment) (sourcecorner.Parent, error)
}

// Replier posts replies.
type Replier interface {
	Reply(ctx context.Context, target *sourcecorner.Comment, text string) (*sourcecorner.Comment, error)
}

// RemovalScanner finds removed comments newer than a watermark.
type RemovalScanner interface {
	SCRemovals(ctx context.Context, watermark time.Time) ([]*sourcecorner.Comment, error)
}

// CommentReposter reposts a single removed comment.
type CommentReposter interface {
	Repost(ctx context.Context, comment *sourcecorner.Comment) (*sourcecorner.Comment, error)
}

// DeadLetterStore keeps reposts that failed.
type DeadLetterStore interface {
	Save(ctx context.Context, dl *sourcecorner.DeadLetter) error
}

// Monitor drives periodic modlog scans.
type Monitor struct {
	scanner     RemovalScanner
	reposter    CommentReposter
	deadLetters DeadLetterStore
	logger      *slog.Logger
	now         func() time.Time
	interval    time.Duration
}

// New creates a new poll monitor. deadLetters may be nil.
func New(scanner RemovalScanner, reposter CommentReposter, deadLetters DeadLetterStore, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		scanner:     scanner,
		reposter:    reposter,
		deadLetters: deadLetters,
		logger:      logger,
		now:         time.Now,
		interval:    interval,
	}
}

// Run sleeps, scans and repeats until ctx is cancelled or a scan fails.
// Only entries logged after Run starts are considered.
func (m *Monitor) Run(ctx context.Context) error {
	watermark := m.now()
	m.logger.Info("Starting modlog monitor", "interval", m.interval.String(), "watermark", watermark.Format(time.RFC3339))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Context cancelled, stopping monitor", "error", ctx.Err())
			return nil
		case <-time.After(m.interval):
		}

		if _, err := m.ScanOnce(ctx, watermark); err != nil {
			if ctx.Err() != nil {
				m.logger.Info("Context cancelled during scan, stopping monitor", "error", err)
				return nil
			}
			return fmt.Errorf("scan modlog: %w", err)
		}

		// Advances past failed reposts too; those are only kept as dead letters.
		watermark = m.now()
	}
}

// ScanOnce reposts every Source Corner removal logged since watermark.
// It reports whether any removal was found, whether or not reposting it succeeded.
func (m *Monitor) ScanOnce(ctx context.Context, watermark time.Time) (bool, error) {
	m.logger.Info("Scanning modlog", "watermark", watermark.Format(time.RFC3339))

	removals, err := m.scanner.SCRemovals(ctx, watermark)
	if err != nil {
		return false, err
	}

	var failed int
	for _, comment := range removals {
		if err := m.repost(ctx, comment); err != nil {
			failed++
			m.logger.Error("Could not repost comment",
				"comment_id", comment.ID,
				"error_kind", errorKind(err),
				"error", err,
				"permalink", comment.URL())
			m.deadLetter(ctx, comment, err)
		}
	}

	m.logger.Info("Modlog scan completed", "removals", len(removals), "failed", failed)
	return len(removals) > 0, nil
}

// repost isolates one item: errors and panics are returned instead of propagating.
func (m *Monitor) repost(ctx context.Context, comment *sourcecorner.Comment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	_, err = m.reposter.Repost(ctx, comment)
	return err
}

func (m *Monitor) deadLetter(ctx context.Context, comment *sourcecorner.Comment, cause error) {
	if m.deadLetters == nil {
		return
	}
	dl := &sourcecorner.DeadLetter{
		FailedAt:  m.now().UTC(),
		CommentID: comment.ID,
		Permalink: comment.URL(),
		Author:    comment.Author,
		Body:      comment.Body,
		ErrorKind: errorKind(cause),
		Error:     cause.Error(),
	}
	if err := m.deadLetters.Save(ctx, dl); err != nil {
		m.logger.Warn("Failed to record dead letter", "comment_id", comment.ID, "error", err)
	}
}

// PanicError wraps a panic recovered while reposting.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// errorKind names the type of the innermost wrapped error.
func errorKind(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
