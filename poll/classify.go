package poll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"source-corner-reposter/pkg/sourcecorner"
)

// Phrases in a removal reason. Matching is case-insensitive.
var (
	sourceCornerPhrases = []string{"source corner", "source material"}
	spoilerPhrase       = "spoiler"
)

// Accounts names the bots whose posts anchor the repost flow.
type Accounts struct {
	EpisodeBot      string // Author of episode discussion submissions
	SourceCornerBot string // Author of the pinned Source Corner comment
}

// Classifier decides whether a modlog entry is a Source Corner removal.
type Classifier struct {
	reader   ThreadReader
	accounts Accounts
	logger   *slog.Logger
}

// NewClassifier creates a new classifier.
func NewClassifier(reader ThreadReader, accounts Accounts, logger *slog.Logger) *Classifier {
	return &Classifier{
		reader:   reader,
		accounts: accounts,
		logger:   logger,
	}
}

// IsSCRemoval reports whether the action is a Source Corner removal.
// A false result is not an error; errors only come from fetching the acted-upon comment.
func (c *Classifier) IsSCRemoval(ctx context.Context, action *sourcecorner.ModAction) (bool, error) {
	_, ok, err := c.Classify(ctx, action)
	return ok, err
}

// Classify is IsSCRemoval that also returns the acted-upon comment (the removal
// reason) when the action qualifies.
func (c *Classifier) Classify(ctx context.Context, action *sourcecorner.ModAction) (*sourcecorner.Comment, bool, error) {
	if action.Action != sourcecorner.ActionDistinguish {
		return nil, false, nil
	}

	// The Source Corner bot distinguishes its own pinned comment.
	if action.Moderator == c.accounts.SourceCornerBot {
		c.logger.Debug("Skipping action by Source Corner bot", "action_id", action.ID)
		return nil, false, nil
	}

	body := strings.ToLower(action.TargetBody)
	if !containsAny(body, sourceCornerPhrases) {
		return nil, false, nil
	}
	if strings.Contains(body, spoilerPhrase) {
		c.logger.Info("Skipping spoiler removal", "action_id", action.ID, "moderator", action.Moderator, "permalink", action.TargetPermalink)
		return nil, false, nil
	}

	annotation, err := c.reader.Comment(ctx, action.TargetPermalink)
	if err != nil {
		return nil, false, fmt.Errorf("fetch acted-upon comment: %w", err)
	}
	sub, err := c.reader.Submission(ctx, annotation.SubmissionID)
	if err != nil {
		return nil, false, fmt.Errorf("fetch submission: %w", err)
	}
	if sub.Author != c.accounts.EpisodeBot {
		c.logger.Info("Skipping removal outside an episode discussion",
			"action_id", action.ID,
			"submission_id", sub.ID,
			"submission_author", sub.Author)
		return nil, false, nil
	}

	c.logger.Info("Source Corner removal matched",
		"action_id", action.ID,
		"moderator", action.Moderator,
		"created_utc", action.CreatedUTC,
		"permalink", action.TargetPermalink)
	return annotation, true, nil
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
