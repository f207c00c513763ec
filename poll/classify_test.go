package poll

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"source-corner-reposter/pkg/sourcecorner"
)

func TestIsSCRemoval(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(th *thread, a *sourcecorner.ModAction)
		want      bool
		wantFetch bool // whether the acted-upon comment had to be read
	}{
		{
			name:      "all conditions hold",
			modify:    func(*thread, *sourcecorner.ModAction) {},
			want:      true,
			wantFetch: true,
		},
		{
			name: "source material phrase",
			modify: func(_ *thread, a *sourcecorner.ModAction) {
				a.TargetBody = "Please keep source material talk in the pinned comment."
			},
			want:      true,
			wantFetch: true,
		},
		{
			name: "phrase matched case-insensitively",
			modify: func(_ *thread, a *sourcecorner.ModAction) {
				a.TargetBody = "REMOVED: SOURCE CORNER ONLY"
			},
			want:      true,
			wantFetch: true,
		},
		{
			name: "not a distinguish action",
			modify: func(_ *thread, a *sourcecorner.ModAction) {
				a.Action = "removecomment"
			},
		},
		{
			name: "distinguished by the source corner bot",
			modify: func(_ *thread, a *sourcecorner.ModAction) {
				a.Moderator = scBot
			},
		},
		{
			name: "no source corner phrase",
			modify: func(_ *thread, a *sourcecorner.ModAction) {
				a.TargetBody = "Removed for incivility."
			},
		},
		{
			name: "spoiler removal",
			modify: func(_ *thread, a *sourcecorner.ModAction) {
				a.TargetBody = "Removed — violates Source Corner rule, use a spoiler tag"
			},
		},
		{
			name: "spoiler matched case-insensitively",
			modify: func(_ *thread, a *sourcecorner.ModAction) {
				a.TargetBody = "Source corner SPOILERS are not allowed"
			},
		},
		{
			name: "not an episode discussion",
			modify: func(th *thread, _ *sourcecorner.ModAction) {
				th.submission.Author = "someone-else"
			},
			wantFetch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newThread()
			action := th.action("a1", time.Now())
			tt.modify(th, action)

			c := NewClassifier(th.client, testAccounts, discardLogger())
			got, err := c.IsSCRemoval(context.Background(), action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantFetch, th.client.fetches > 0, "fetches = %d", th.client.fetches)
		})
	}
}

func TestIsSCRemovalModeratorFlip(t *testing.T) {
	th := newThread()
	c := NewClassifier(th.client, testAccounts, discardLogger())
	action := th.action("a1", time.Now())

	got, err := c.IsSCRemoval(context.Background(), action)
	require.NoError(t, err)
	assert.True(t, got)

	action.Moderator = scBot
	got, err = c.IsSCRemoval(context.Background(), action)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestClassifyReturnsActedUponComment(t *testing.T) {
	th := newThread()
	c := NewClassifier(th.client, testAccounts, discardLogger())

	annotation, ok, err := c.Classify(context.Background(), th.action("a1", time.Now()))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, th.annotation.ID, annotation.ID)
}

func TestClassifyFetchError(t *testing.T) {
	th := newThread()
	c := NewClassifier(th.client, testAccounts, discardLogger())
	action := th.action("a1", time.Now())
	action.TargetPermalink = "/r/anime/comments/sub1/episode_3/gone/"

	ok, err := c.IsSCRemoval(context.Background(), action)
	require.Error(t, err)
	assert.False(t, ok)
}
