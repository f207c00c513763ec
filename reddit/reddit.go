// Package reddit is a small client for the parts of the Reddit API the reposter needs.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"source-corner-reposter/pkg/sourcecorner"
)

// OAuthBaseURL is the API host for OAuth-authenticated requests.
const OAuthBaseURL = "https://oauth.reddit.com"

const (
	modLogPageSize  = 100
	submissionLimit = 25 // top-level comments fetched per submission
)

// HTTPError indicates a non-200 response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsHTTPError reports whether err is an HTTPError with the given status code.
func IsHTTPError(err error, code int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == code
}

// permanent reports whether a failed read should not be retried.
// 4xx responses are permanent except 408 and 429.
func permanent(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	switch {
	case he.StatusCode == http.StatusRequestTimeout, he.StatusCode == http.StatusTooManyRequests:
		return false
	case he.StatusCode >= 400 && he.StatusCode < 500:
		return true
	}
	return false
}

// APIError carries the error triples Reddit returns inside a 200 response.
type APIError struct {
	Errors [][]any
}

func (e *APIError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, triple := range e.Errors {
		s := make([]string, 0, len(triple))
		for _, v := range triple {
			if v != nil {
				s = append(s, fmt.Sprint(v))
			}
		}
		parts = append(parts, strings.Join(s, ": "))
	}
	return "reddit api: " + strings.Join(parts, "; ")
}

// Client talks to the Reddit API.
type Client struct {
	client    *http.Client
	logger    *slog.Logger
	baseURL   string
	userAgent string
}

// New creates a new client. The http.Client is expected to add authentication,
// see NewHTTPClient.
func New(client *http.Client, baseURL, userAgent string, logger *slog.Logger) *Client {
	return &Client{
		client:    client,
		logger:    logger,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
	}
}

// ModLog returns the subreddit's moderation log, newest first.
// Pages are fetched lazily as the sequence is consumed.
func (c *Client) ModLog(ctx context.Context, subreddit string) iter.Seq2[*sourcecorner.ModAction, error] {
	return func(yield func(*sourcecorner.ModAction, error) bool) {
		path := "/r/" + url.PathEscape(subreddit) + "/about/log"
		after := ""
		for page := 1; ; page++ {
			q := url.Values{
				"limit":    {strconv.Itoa(modLogPageSize)},
				"raw_json": {"1"},
			}
			if after != "" {
				q.Set("after", after)
			}

			var l listing
			if err := c.get(ctx, path, q, &l, "fetch_modlog"); err != nil {
				yield(nil, fmt.Errorf("fetch modlog page %d: %w", page, err))
				return
			}

			for _, t := range l.Data.Children {
				var d modActionData
				if err := json.Unmarshal(t.Data, &d); err != nil {
					yield(nil, fmt.Errorf("decode modlog entry: %w", err))
					return
				}
				if !yield(d.modAction(), nil) {
					return
				}
			}

			if l.Data.After == "" || len(l.Data.Children) == 0 {
				return
			}
			after = l.Data.After
		}
	}
}

// Comment fetches a comment by permalink. Absolute URLs are accepted.
func (c *Client) Comment(ctx context.Context, permalink string) (*sourcecorner.Comment, error) {
	path := permalink
	if u, err := url.Parse(permalink); err == nil && u.Host != "" {
		path = u.Path
	}

	q := url.Values{
		"raw_json": {"1"},
		"limit":    {"1"},
		"depth":    {"1"},
	}
	var pair []listing
	if err := c.get(ctx, path, q, &pair, "fetch_comment"); err != nil {
		return nil, fmt.Errorf("fetch comment %s: %w", permalink, err)
	}
	if len(pair) != 2 {
		return nil, fmt.Errorf("fetch comment %s: expected 2 listings, got %d", permalink, len(pair))
	}

	found, err := parseComments(pair[1])
	if err != nil {
		return nil, fmt.Errorf("fetch comment %s: %w", permalink, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("fetch comment %s: not found", permalink)
	}
	return found[0], nil
}

// Submission fetches a submission and its top-level comments in display order.
// Stickied comments are listed first by Reddit.
func (c *Client) Submission(ctx context.Context, id string) (*sourcecorner.Submission, error) {
	q := url.Values{
		"raw_json": {"1"},
		"depth":    {"1"},
		"limit":    {strconv.Itoa(submissionLimit)},
	}
	var pair []listing
	if err := c.get(ctx, "/comments/"+url.PathEscape(id), q, &pair, "fetch_submission"); err != nil {
		return nil, fmt.Errorf("fetch submission %s: %w", id, err)
	}
	if len(pair) != 2 {
		return nil, fmt.Errorf("fetch submission %s: expected 2 listings, got %d", id, len(pair))
	}

	var sub *sourcecorner.Submission
	for _, t := range pair[0].Data.Children {
		if t.Kind != kindLink {
			continue
		}
		var d linkData
		if err := json.Unmarshal(t.Data, &d); err != nil {
			return nil, fmt.Errorf("decode submission %s: %w", id, err)
		}
		sub = &sourcecorner.Submission{ID: d.ID, Author: d.Author}
		break
	}
	if sub == nil {
		return nil, fmt.Errorf("fetch submission %s: not found", id)
	}

	top, err := parseComments(pair[1])
	if err != nil {
		return nil, fmt.Errorf("fetch submission %s: %w", id, err)
	}
	sub.Comments = top
	return sub, nil
}

// Parent fetches what the comment replies to.
func (c *Client) Parent(ctx context.Context, comment *sourcecorner.Comment) (sourcecorner.Parent, error) {
	kind, id, ok := strings.Cut(comment.ParentID, "_")
	if !ok {
		return nil, fmt.Errorf("comment %s: malformed parent id %q", comment.ID, comment.ParentID)
	}

	switch kind {
	case kindLink:
		sub, err := c.Submission(ctx, id)
		if err != nil {
			return nil, err
		}
		return &sourcecorner.SubmissionParent{Submission: sub}, nil
	case kindComment:
		parent, err := c.commentByFullname(ctx, comment.ParentID)
		if err != nil {
			return nil, err
		}
		return &sourcecorner.CommentParent{Comment: parent}, nil
	default:
		return nil, fmt.Errorf("comment %s: unexpected parent kind %q", comment.ID, kind)
	}
}

func (c *Client) commentByFullname(ctx context.Context, fullname string) (*sourcecorner.Comment, error) {
	q := url.Values{
		"id":       {fullname},
		"raw_json": {"1"},
	}
	var l listing
	if err := c.get(ctx, "/api/info", q, &l, "fetch_info"); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", fullname, err)
	}
	found, err := parseComments(l)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", fullname, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("fetch %s: not found", fullname)
	}
	return found[0], nil
}

// Reply posts text as a reply to target and returns the new comment.
// It is never retried: a failed post may still have been created.
func (c *Client) Reply(ctx context.Context, target *sourcecorner.Comment, text string) (*sourcecorner.Comment, error) {
	form := url.Values{
		"api_type": {"json"},
		"raw_json": {"1"},
		"thing_id": {kindComment + "_" + target.ID},
		"text":     {text},
	}
	endpoint := c.baseURL + "/api/comment"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Info("HTTP request starting", "method", http.MethodPost, "url", endpoint, "purpose", "post_reply", "thing_id", form.Get("thing_id"))
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post reply: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()
	c.logger.Info("HTTP request completed", "url", endpoint, "status_code", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{URL: endpoint, StatusCode: resp.StatusCode}
	}

	var r replyResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode reply response: %w", err)
	}
	if len(r.JSON.Errors) > 0 {
		return nil, &APIError{Errors: r.JSON.Errors}
	}
	for _, t := range r.JSON.Data.Things {
		if t.Kind != kindComment {
			continue
		}
		var d commentData
		if err := json.Unmarshal(t.Data, &d); err != nil {
			return nil, fmt.Errorf("decode reply: %w", err)
		}
		return d.comment(), nil
	}
	return nil, errors.New("reply response contained no comment")
}

// get performs a GET with retries for transient failures and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any, purpose string) error {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	err := retry.Do(
		func() error {
			c.logger.Debug("HTTP request starting",
				"method", http.MethodGet,
				"url", endpoint,
				"purpose", purpose)

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", c.userAgent)
			req.Header.Set("Accept", "application/json")

			start := time.Now()
			resp, err := c.client.Do(req)
			duration := time.Since(start)
			if err != nil {
				c.logger.Warn("HTTP request failed, will retry",
					"url", endpoint,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			c.logger.Debug("HTTP request completed",
				"url", endpoint,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds())

			if resp.StatusCode != http.StatusOK {
				// Drain so the connection can be reused.
				_, _ = io.Copy(io.Discard, resp.Body)
				return &HTTPError{URL: endpoint, StatusCode: resp.StatusCode}
			}

			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
			}
			return nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying fetch after error", "attempt", n, "purpose", purpose, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			return !permanent(err)
		}),
	)
	if err != nil {
		return fmt.Errorf("after retries: %w", err)
	}
	return nil
}
