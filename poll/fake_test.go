package poll

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"source-corner-reposter/pkg/sourcecorner"
)

const (
	episodeBot = "episode-bot"
	scBot      = "sc-bot"
)

var testAccounts = Accounts{EpisodeBot: episodeBot, SourceCornerBot: scBot}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type reply struct {
	target *sourcecorner.Comment
	text   string
}

// fakeClient is an in-memory Reddit.
type fakeClient struct {
	actions     []*sourcecorner.ModAction
	modlogErr   error // yielded after all actions
	byPermalink map[string]*sourcecorner.Comment
	byFullname  map[string]*sourcecorner.Comment
	submissions map[string]*sourcecorner.Submission
	replyErr    error

	consumed int // modlog entries handed out
	fetches  int // Comment and Submission calls
	replies  []reply
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		byPermalink: map[string]*sourcecorner.Comment{},
		byFullname:  map[string]*sourcecorner.Comment{},
		submissions: map[string]*sourcecorner.Submission{},
	}
}

func (f *fakeClient) addComment(c *sourcecorner.Comment) *sourcecorner.Comment {
	f.byPermalink[c.Permalink] = c
	f.byFullname["t1_"+c.ID] = c
	return c
}

func (f *fakeClient) ModLog(_ context.Context, _ string) iter.Seq2[*sourcecorner.ModAction, error] {
	return func(yield func(*sourcecorner.ModAction, error) bool) {
		for _, a := range f.actions {
			f.consumed++
			if !yield(a, nil) {
				return
			}
		}
		if f.modlogErr != nil {
			yield(nil, f.modlogErr)
		}
	}
}

func (f *fakeClient) Comment(_ context.Context, permalink string) (*sourcecorner.Comment, error) {
	f.fetches++
	c, ok := f.byPermalink[permalink]
	if !ok {
		return nil, fmt.Errorf("comment %s: HTTP 404", permalink)
	}
	return c, nil
}

func (f *fakeClient) Submission(_ context.Context, id string) (*sourcecorner.Submission, error) {
	f.fetches++
	s, ok := f.submissions[id]
	if !ok {
		return nil, fmt.Errorf("submission %s: HTTP 404", id)
	}
	return s, nil
}

func (f *fakeClient) Parent(ctx context.Context, c *sourcecorner.Comment) (sourcecorner.Parent, error) {
	if id, ok := strings.CutPrefix(c.ParentID, "t3_"); ok {
		sub, err := f.Submission(ctx, id)
		if err != nil {
			return nil, err
		}
		return &sourcecorner.SubmissionParent{Submission: sub}, nil
	}
	p, ok := f.byFullname[c.ParentID]
	if !ok {
		return nil, fmt.Errorf("parent %s: HTTP 404", c.ParentID)
	}
	return &sourcecorner.CommentParent{Comment: p}, nil
}

func (f *fakeClient) Reply(_ context.Context, target *sourcecorner.Comment, text string) (*sourcecorner.Comment, error) {
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	f.replies = append(f.replies, reply{target: target, text: text})
	return &sourcecorner.Comment{
		ID:           fmt.Sprintf("reply%d", len(f.replies)),
		Permalink:    fmt.Sprintf("%sreply%d/", target.Permalink, len(f.replies)),
		ParentID:     "t1_" + target.ID,
		SubmissionID: target.SubmissionID,
	}, nil
}

// thread is an episode discussion with a Source Corner, a removed reply and
// the removal reason distinguished under it.
type thread struct {
	client       *fakeClient
	submission   *sourcecorner.Submission
	sourceCorner *sourcecorner.Comment
	parent       *sourcecorner.Comment // comment the removed comment replied to
	removed      *sourcecorner.Comment
	annotation   *sourcecorner.Comment
}

func newThread() *thread {
	f := newFakeClient()
	sc := f.addComment(&sourcecorner.Comment{
		ID:           "sc1",
		Author:       scBot,
		Body:         "Source Corner: discuss the source material here.",
		Permalink:    "/r/anime/comments/sub1/episode_3/sc1/",
		ParentID:     "t3_sub1",
		SubmissionID: "sub1",
		Stickied:     true,
	})
	parent := f.addComment(&sourcecorner.Comment{
		ID:           "par1",
		Author:       "bob",
		Body:         "What a cliffhanger",
		Permalink:    "/r/anime/comments/sub1/episode_3/par1/",
		ParentID:     "t3_sub1",
		SubmissionID: "sub1",
	})
	removed := f.addComment(&sourcecorner.Comment{
		ID:           "rem1",
		Author:       "alice",
		Body:         "In the manga this arc runs much longer.",
		Permalink:    "/r/anime/comments/sub1/episode_3/rem1/",
		ParentID:     "t1_par1",
		SubmissionID: "sub1",
	})
	annotation := f.addComment(&sourcecorner.Comment{
		ID:           "ann1",
		Author:       "modA",
		Body:         "Removed — violates Source Corner rule",
		Permalink:    "/r/anime/comments/sub1/episode_3/ann1/",
		ParentID:     "t1_rem1",
		SubmissionID: "sub1",
	})
	sub := &sourcecorner.Submission{
		ID:       "sub1",
		Author:   episodeBot,
		Comments: []*sourcecorner.Comment{sc, parent},
	}
	f.submissions[sub.ID] = sub

	return &thread{
		client:       f,
		submission:   sub,
		sourceCorner: sc,
		parent:       parent,
		removed:      removed,
		annotation:   annotation,
	}
}

// action returns a qualifying distinguish action on the annotation.
func (th *thread) action(id string, at time.Time) *sourcecorner.ModAction {
	return &sourcecorner.ModAction{
		CreatedUTC:      at,
		ID:              id,
		Action:          sourcecorner.ActionDistinguish,
		Moderator:       "modA",
		TargetPermalink: th.annotation.Permalink,
		TargetBody:      th.annotation.Body,
	}
}
