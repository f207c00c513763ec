package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"source-corner-reposter/pkg/sourcecorner"
)

// ErrLogOutOfOrder means the modlog was not newest-first, so stopping at the
// watermark could have skipped entries.
var ErrLogOutOfOrder = errors.New("moderation log out of order")

// Scanner collects Source Corner removals from the moderation log.
type Scanner struct {
	modlog     ModLogReader
	reader     ThreadReader
	classifier *Classifier
	subreddit  string
	logger     *slog.Logger
}

// NewScanner creates a new modlog scanner for one subreddit.
func NewScanner(modlog ModLogReader, reader ThreadReader, classifier *Classifier, subreddit string, logger *slog.Logger) *Scanner {
	return &Scanner{
		modlog:     modlog,
		reader:     reader,
		classifier: classifier,
		subreddit:  subreddit,
		logger:     logger,
	}
}

// SCRemovals walks the modlog from the newest entry back to the watermark and
// returns the removed comments, newest action first. Entries created before
// the watermark are never considered.
func (s *Scanner) SCRemovals(ctx context.Context, watermark time.Time) ([]*sourcecorner.Comment, error) {
	var (
		removals []*sourcecorner.Comment
		prev     *sourcecorner.ModAction
		scanned  int
	)

	for action, err := range s.modlog.ModLog(ctx, s.subreddit) {
		if err != nil {
			return nil, fmt.Errorf("read modlog: %w", err)
		}
		if prev != nil && action.CreatedUTC.After(prev.CreatedUTC) {
			return nil, fmt.Errorf("%w: %s (%s) listed after %s (%s)", ErrLogOutOfOrder,
				action.ID, action.CreatedUTC.Format(time.RFC3339),
				prev.ID, prev.CreatedUTC.Format(time.RFC3339))
		}
		prev = action

		if action.CreatedUTC.Before(watermark) {
			break
		}
		scanned++

		annotation, ok, err := s.classifier.Classify(ctx, action)
		if err != nil {
			return nil, fmt.Errorf("classify action %s: %w", action.ID, err)
		}
		if !ok {
			continue
		}

		// The distinguished comment is the removal reason; the removed comment is its parent.
		parent, err := s.reader.Parent(ctx, annotation)
		if err != nil {
			return nil, fmt.Errorf("fetch removed comment for action %s: %w", action.ID, err)
		}
		switch p := parent.(type) {
		case *sourcecorner.CommentParent:
			removals = append(removals, p.Comment)
		case *sourcecorner.SubmissionParent:
			s.logger.Warn("Removal reason is a top-level comment, nothing to repost",
				"action_id", action.ID,
				"permalink", annotation.URL())
		}
	}

	s.logger.Info("Collected source corner removals", "count", len(removals), "scanned", scanned)
	return removals, nil
}
