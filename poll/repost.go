package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"source-corner-reposter/pkg/sourcecorner"
)

// Templates shape the repost message.
// Placeholders are written {name}; {{ and }} produce literal braces.
type Templates struct {
	Repost     string // {user}, {parent}, {body}
	ParentLink string // {link}; used when the removed comment replied to a comment
	ParentNone string // used verbatim when the removed comment was top-level
}

// Reposter posts removed comments under the Source Corner.
type Reposter struct {
	resolver  *Resolver
	reader    ThreadReader
	replier   Replier
	templates Templates
	logger    *slog.Logger
}

// NewReposter creates a new reposter.
func NewReposter(resolver *Resolver, reader ThreadReader, replier Replier, templates Templates, logger *slog.Logger) *Reposter {
	return &Reposter{
		resolver:  resolver,
		reader:    reader,
		replier:   replier,
		templates: templates,
		logger:    logger,
	}
}

// Repost replies to the thread's Source Corner with a copy of comment.
// It returns nil without posting when the thread has no Source Corner.
// Posting is attempted once.
func (r *Reposter) Repost(ctx context.Context, comment *sourcecorner.Comment) (*sourcecorner.Comment, error) {
	target, err := r.resolver.SelectSourceCorner(ctx, comment)
	if errors.Is(err, ErrNoSourceCorner) {
		r.logger.Warn("Could not find Source Corner for comment", "comment_id", comment.ID, "permalink", comment.URL(), "reason", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select source corner: %w", err)
	}

	parent, err := r.reader.Parent(ctx, comment)
	if err != nil {
		return nil, fmt.Errorf("fetch parent: %w", err)
	}

	message := r.Message(comment, parent)

	r.logger.Info("Reposting comment",
		"comment_id", comment.ID,
		"source_corner_id", target.ID,
		"message", message)

	reply, err := r.replier.Reply(ctx, target, message)
	if err != nil {
		return nil, fmt.Errorf("reply to source corner %s: %w", target.ID, err)
	}

	r.logger.Info("Comment reposted", "comment_id", comment.ID, "reply_id", reply.ID, "reply_permalink", reply.URL())
	return reply, nil
}

// Message renders the repost text for comment.
func (r *Reposter) Message(comment *sourcecorner.Comment, parent sourcecorner.Parent) string {
	var parentText string
	switch p := parent.(type) {
	case *sourcecorner.CommentParent:
		parentText = render(r.templates.ParentLink, "link", p.Comment.Permalink)
	case *sourcecorner.SubmissionParent:
		parentText = r.templates.ParentNone
	}

	return render(r.templates.Repost,
		"user", "/u/"+comment.Author,
		"parent", parentText,
		"body", comment.Body)
}

// render substitutes {name} placeholders in a single pass, so substituted
// values are never expanded again.
func render(tmpl string, pairs ...string) string {
	args := []string{"{{", "{", "}}", "}"}
	for i := 0; i+1 < len(pairs); i += 2 {
		args = append(args, "{"+pairs[i]+"}", pairs[i+1])
	}
	return strings.NewReplacer(args...).Replace(tmpl)
}
