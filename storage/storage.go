// Package storage handles persistence of dead letters for reposts that failed.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"source-corner-reposter/pkg/sourcecorner"
)

const keyPrefix = "dl-"

// ErrNotFound is returned by Load when no dead letter has the key.
var ErrNotFound = errors.New("storage: object doesn't exist")

// Store handles dead letter persistence in a local directory or a GCS bucket.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a new storage handler. When localPath is set the bucket is ignored.
func New(client *storage.Client, bucket string, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// NewGCSClient creates a Cloud Storage client. Explicit credentials JSON takes
// precedence over Application Default Credentials.
func NewGCSClient(ctx context.Context, credentialsJSON string) (*storage.Client, error) {
	if credentialsJSON != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	return storage.NewClient(ctx)
}

// DeadLetterKey generates a stable object name for a dead letter.
// Returns "" if the comment ID is not a base36 Reddit ID.
func DeadLetterKey(commentID string, failedAt time.Time) string {
	if commentID == "" {
		return ""
	}
	for _, c := range commentID {
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return ""
		}
	}
	return fmt.Sprintf("%s%s-%d.json", keyPrefix, commentID, failedAt.Unix())
}

// Save saves a dead letter.
func (s *Store) Save(ctx context.Context, dl *sourcecorner.DeadLetter) error {
	key := DeadLetterKey(dl.CommentID, dl.FailedAt)
	if key == "" {
		return fmt.Errorf("invalid comment id %q", dl.CommentID)
	}
	s.logger.Debug("Saving dead letter", "key", key, "comment_id", dl.CommentID)

	data, err := json.MarshalIndent(dl, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, key)
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}

		s.logger.Info("Dead letter saved to local storage", "path", filePath, "comment_id", dl.CommentID)
		return nil
	}

	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Info("Dead letter saved", "bucket", s.bucket, "key", key, "comment_id", dl.CommentID)
	return nil
}

// Load loads a dead letter by key.
func (s *Store) Load(ctx context.Context, key string) (*sourcecorner.DeadLetter, error) {
	if !isDeadLetterKey(key) || strings.ContainsAny(key, `/\`) {
		return nil, errors.New("invalid key format")
	}

	var data []byte
	if s.localPath != "" {
		var err error
		data, err = os.ReadFile(filepath.Join(s.localPath, key))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
	} else {
		err := retry.Do(
			func() error {
				r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
				if openErr != nil {
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						return retry.Unrecoverable(ErrNotFound)
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						s.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				data, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.MaxDelay(2*time.Minute),
			retry.MaxJitter(10*time.Second),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, retryErr error) {
				s.logger.Info("Retrying load operation after error", "attempt", n, "key", key, "error", retryErr)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("load after retries: %w", err)
		}
	}

	var dl sourcecorner.DeadLetter
	if err := json.Unmarshal(data, &dl); err != nil {
		return nil, fmt.Errorf("unmarshal dead letter: %w", err)
	}
	return &dl, nil
}

// List lists all dead letters. Unreadable entries are logged and skipped.
func (s *Store) List(ctx context.Context) ([]*sourcecorner.DeadLetter, error) {
	var keys []string

	if s.localPath != "" {
		entries, err := os.ReadDir(s.localPath)
		if err != nil {
			return nil, fmt.Errorf("read local storage directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !isDeadLetterKey(entry.Name()) {
				continue
			}
			keys = append(keys, entry.Name())
		}
	} else {
		it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: keyPrefix})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("iterate storage: %w", err)
			}
			if isDeadLetterKey(attrs.Name) {
				keys = append(keys, attrs.Name)
			}
		}
	}

	var out []*sourcecorner.DeadLetter
	for _, key := range keys {
		dl, err := s.Load(ctx, key)
		if err != nil {
			s.logger.Warn("Failed to load dead letter", "key", key, "error", err)
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

// IsNotFound checks if an error indicates a dead letter was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func isDeadLetterKey(name string) bool {
	return strings.HasPrefix(name, keyPrefix) && strings.HasSuffix(name, ".json")
}
