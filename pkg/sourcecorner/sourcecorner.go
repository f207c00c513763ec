// Package sourcecorner contains the core domain types for the Source Corner reposter.
package sourcecorner

import (
	"strings"
	"time"
)

// BaseURL is prepended to relative permalinks for display.
const BaseURL = "https://www.reddit.com"

// ActionDistinguish is the modlog action that carries removal reasons.
const ActionDistinguish = "distinguish"

// ModAction is a single moderation log entry.
type ModAction struct {
	CreatedUTC      time.Time
	ID              string
	Action          string
	Moderator       string
	TargetPermalink string // Comment the action was applied to
	TargetBody      string // Snapshot of that comment's text
}

// Comment is a snapshot of a comment.
type Comment struct {
	ID           string
	Author       string
	Body         string
	Permalink    string // Relative, e.g. /r/sub/comments/abc/title/def/
	ParentID     string // Fullname: t1_ for a comment, t3_ for the submission
	SubmissionID string
	Stickied     bool
}

// URL returns the absolute link to the comment.
func (c *Comment) URL() string {
	return AbsoluteURL(c.Permalink)
}

// Submission is a discussion thread with its top-level comments in display order.
type Submission struct {
	ID       string
	Author   string
	Comments []*Comment
}

// Parent is what a comment replies to: a *CommentParent or a *SubmissionParent.
type Parent interface {
	isParent()
}

// CommentParent is a comment's parent when it is a reply to another comment.
type CommentParent struct {
	Comment *Comment
}

// SubmissionParent is a comment's parent when it is a top-level comment.
type SubmissionParent struct {
	Submission *Submission
}

func (*CommentParent) isParent()    {}
func (*SubmissionParent) isParent() {}

// DeadLetter records a repost that failed and was not retried.
type DeadLetter struct {
	FailedAt  time.Time `json:"failed_at"`
	CommentID string    `json:"comment_id"`
	Permalink string    `json:"permalink"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	ErrorKind string    `json:"error_kind"`
	Error     string    `json:"error"`
}

// AbsoluteURL turns a relative permalink into a full reddit.com URL.
func AbsoluteURL(permalink string) string {
	if strings.HasPrefix(permalink, "http://") || strings.HasPrefix(permalink, "https://") {
		return permalink
	}
	return BaseURL + permalink
}
