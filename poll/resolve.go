package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"source-corner-reposter/pkg/sourcecorner"
)

// ErrNoSourceCorner is returned when a thread has no usable Source Corner.
var ErrNoSourceCorner = errors.New("no source corner")

// Resolver finds the Source Corner comment a repost should reply to.
type Resolver struct {
	reader   SubmissionReader
	accounts Accounts
	logger   *slog.Logger
}

// NewResolver creates a new resolver.
func NewResolver(reader SubmissionReader, accounts Accounts, logger *slog.Logger) *Resolver {
	return &Resolver{
		reader:   reader,
		accounts: accounts,
		logger:   logger,
	}
}

// SelectSourceCorner returns the stickied top comment of the comment's thread
// when the thread is an episode discussion and the top comment is the Source Corner.
// Otherwise the error wraps ErrNoSourceCorner.
func (r *Resolver) SelectSourceCorner(ctx context.Context, comment *sourcecorner.Comment) (*sourcecorner.Comment, error) {
	r.logger.Info("Selecting the Source Corner", "submission_id", comment.SubmissionID)

	sub, err := r.reader.Submission(ctx, comment.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("fetch submission: %w", err)
	}

	if sub.Author != r.accounts.EpisodeBot {
		return nil, r.notFound(sub, "unexpected submission author", "author", sub.Author)
	}
	if len(sub.Comments) == 0 {
		return nil, r.notFound(sub, "submission has no comments")
	}

	top := sub.Comments[0]
	if !top.Stickied {
		return nil, r.notFound(sub, "top comment is not stickied", "comment_id", top.ID)
	}
	if top.Author != r.accounts.SourceCornerBot {
		return nil, r.notFound(sub, "unexpected top comment author", "comment_id", top.ID, "author", top.Author)
	}

	return top, nil
}

func (r *Resolver) notFound(sub *sourcecorner.Submission, reason string, attrs ...any) error {
	r.logger.Info("Source Corner not found", append([]any{"submission_id", sub.ID, "reason", reason}, attrs...)...)
	return fmt.Errorf("%w: %s", ErrNoSourceCorner, reason)
}
