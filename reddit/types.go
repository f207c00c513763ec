package reddit

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"source-corner-reposter/pkg/sourcecorner"
)

// Fullname prefixes.
const (
	kindComment = "t1"
	kindLink    = "t3"
)

type listing struct {
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type commentData struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	Permalink string `json:"permalink"`
	ParentID  string `json:"parent_id"`
	LinkID    string `json:"link_id"`
	Stickied  bool   `json:"stickied"`
}

func (d *commentData) comment() *sourcecorner.Comment {
	return &sourcecorner.Comment{
		ID:           d.ID,
		Author:       d.Author,
		Body:         d.Body,
		Permalink:    d.Permalink,
		ParentID:     d.ParentID,
		SubmissionID: strings.TrimPrefix(d.LinkID, kindLink+"_"),
		Stickied:     d.Stickied,
	}
}

type linkData struct {
	ID     string `json:"id"`
	Author string `json:"author"`
}

type modActionData struct {
	ID              string  `json:"id"`
	Action          string  `json:"action"`
	Mod             string  `json:"mod"`
	CreatedUTC      float64 `json:"created_utc"`
	TargetPermalink string  `json:"target_permalink"`
	TargetBody      string  `json:"target_body"`
}

func (d *modActionData) modAction() *sourcecorner.ModAction {
	return &sourcecorner.ModAction{
		CreatedUTC:      unixTime(d.CreatedUTC),
		ID:              d.ID,
		Action:          d.Action,
		Moderator:       d.Mod,
		TargetPermalink: d.TargetPermalink,
		TargetBody:      d.TargetBody,
	}
}

type replyResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Things []thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// parseComments decodes the t1 children of a listing; "more" placeholders are skipped.
func parseComments(l listing) ([]*sourcecorner.Comment, error) {
	var out []*sourcecorner.Comment
	for _, t := range l.Data.Children {
		if t.Kind != kindComment {
			continue
		}
		var d commentData
		if err := json.Unmarshal(t.Data, &d); err != nil {
			return nil, fmt.Errorf("decode comment: %w", err)
		}
		out = append(out, d.comment())
	}
	return out, nil
}

// unixTime converts Reddit's fractional epoch seconds.
func unixTime(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}
