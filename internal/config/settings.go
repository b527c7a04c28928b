// Package config resolves the per-run configuration: scalar settings from
// command-line flags and environment variables, destination credentials and
// subscriptions from YAML files. Everything is resolved once at startup
// into immutable values; nothing here is re-read during a run.
package config

import (
	"errors"
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Settings holds the scalar per-run settings. Precedence is
// flag > environment > default, in go-flags' documented order.
type Settings struct {
	DatabasePath      string `long:"db" env:"DATABASE_PATH" default:"./data/feedrelay.db" description:"Path to the SQLite database"`
	ConfigPath        string `long:"config" env:"CONFIG_PATH" default:"./config/main.yml" description:"Path to the destinations configuration file"`
	SubscriptionsPath string `long:"subscriptions" env:"RSS_PATH" default:"./config/rss.yml" description:"Path to the subscriptions file"`
	ExpireTime        string `long:"expire-time" env:"EXPIRE_TIME" default:"30d" description:"Item record retention (e.g. 1y, 3m, 30d, 12h)"`
	UserAgent         string `long:"user-agent" env:"USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.212 Safari/537.36" description:"User agent for feed and article requests"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of parallel subscription workers"`
	FailureThreshold  int    `long:"failure-threshold" env:"FAILURE_THRESHOLD" default:"20" description:"Consecutive failed fetches before a feed is declared dead"`
	LogLevel          string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level (debug, info, warn, error)"`
}

// LoadSettings parses flags and environment variables into Settings.
// Returns (nil, nil) when help was requested.
func LoadSettings(args []string) (*Settings, error) {
	var s Settings
	parser := flags.NewParser(&s, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	if s.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be positive, got %d", s.WorkerCount)
	}
	if s.FailureThreshold < 1 {
		return nil, fmt.Errorf("failure threshold must be positive, got %d", s.FailureThreshold)
	}
	if _, err := ParseExpiry(s.ExpireTime); err != nil {
		return nil, err
	}

	return &s, nil
}
