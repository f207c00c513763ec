// Package config loads the reposter's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is used when REPOSTER_CONFIG is unset.
const DefaultPath = "config.toml"

var (
	// ErrConfigFileNotFound is returned when the config file cannot be read.
	ErrConfigFileNotFound = errors.New("config file not found")
	// ErrMissingOption is returned when a required option is empty.
	ErrMissingOption = errors.New("missing required option")
	// ErrInvalidOption is returned when an option has an unusable value.
	ErrInvalidOption = errors.New("invalid option")
)

// Config is the whole configuration file.
type Config struct {
	Reddit     Reddit     `koanf:"reddit"`
	Options    Options    `koanf:"options"`
	DeadLetter DeadLetter `koanf:"dead_letter"`
	Log        Log        `koanf:"log"`
}

// Reddit holds the script application credentials.
type Reddit struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	Username     string `koanf:"username"`
	Password     string `koanf:"password"`
	UserAgent    string `koanf:"user_agent"`
	BaseURL      string `koanf:"base_url"` // Defaults to the OAuth API host
}

// Options controls what is watched and how reposts look.
type Options struct {
	Subreddit          string `koanf:"subreddit"`
	EpisodeBotAccount  string `koanf:"episode_bot_account"`
	SCBotAccount       string `koanf:"sc_bot_account"`
	SleepTime          int    `koanf:"sleep_time"` // Seconds between scans
	RepostTemplate     string `koanf:"repost_template"`
	ParentLinkTemplate string `koanf:"parent_link_template"`
	ParentNoneTemplate string `koanf:"parent_none_template"`
}

// Interval returns SleepTime as a duration.
func (o Options) Interval() time.Duration {
	return time.Duration(o.SleepTime) * time.Second
}

// DeadLetter selects where failed reposts are recorded.
// Bucket wins over LocalPath; with neither set, dead letters are not kept.
type DeadLetter struct {
	LocalPath string `koanf:"local_path"`
	Bucket    string `koanf:"bucket"`
}

// Log configures the logger.
type Log struct {
	Level string `koanf:"level"`
}

// SlogLevel parses Level, defaulting to info.
func (l Log) SlogLevel() (slog.Level, error) {
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalidOption, l.Level)
	}
	return level, nil
}

// Path returns the config file path from REPOSTER_CONFIG, or DefaultPath.
func Path() string {
	if p := os.Getenv("REPOSTER_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every required option is present.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"reddit.client_id", c.Reddit.ClientID},
		{"reddit.client_secret", c.Reddit.ClientSecret},
		{"reddit.username", c.Reddit.Username},
		{"reddit.password", c.Reddit.Password},
		{"reddit.user_agent", c.Reddit.UserAgent},
		{"options.subreddit", c.Options.Subreddit},
		{"options.episode_bot_account", c.Options.EpisodeBotAccount},
		{"options.sc_bot_account", c.Options.SCBotAccount},
		{"options.repost_template", c.Options.RepostTemplate},
		{"options.parent_link_template", c.Options.ParentLinkTemplate},
		{"options.parent_none_template", c.Options.ParentNoneTemplate},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s", ErrMissingOption, r.key)
		}
	}

	if c.Options.SleepTime <= 0 {
		return fmt.Errorf("%w: options.sleep_time must be positive, got %d", ErrInvalidOption, c.Options.SleepTime)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}
