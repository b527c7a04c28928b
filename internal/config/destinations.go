package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TelegramDestination is one configured Telegram chat target.
type TelegramDestination struct {
	Name                  string `yaml:"name"`
	Token                 string `yaml:"token"`
	ChatID                int64  `yaml:"chat_id"`
	ParseMode             string `yaml:"parse_mode"`
	DisableNotification   bool   `yaml:"disable_notification"`
	DisableWebPagePreview bool   `yaml:"disable_web_page_preview"`
}

// MastodonDestination is one configured Mastodon posting account.
type MastodonDestination struct {
	Name         string `yaml:"name"`
	Server       string `yaml:"server"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccessToken  string `yaml:"access_token"`
	Sensitive    bool   `yaml:"sensitive"`
}

// OperatorConfig names the Telegram chat that receives dead-feed and
// purge-summary alerts. Per-item errors never go here.
type OperatorConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// MirrorConfig holds the Telegraph publishing credentials.
type MirrorConfig struct {
	AccessToken string `yaml:"access_token"`
}

// Destinations is the destination side of the run configuration.
type Destinations struct {
	Telegram []TelegramDestination `yaml:"telegram"`
	Mastodon []MastodonDestination `yaml:"mastodon"`
	Operator OperatorConfig        `yaml:"operator"`
	Mirror   MirrorConfig          `yaml:"mirror"`
}

// LoadDestinations reads the destinations file and applies environment
// overrides: TG_TOKEN and TG_CHAT_ID override the first Telegram
// destination, MASTODON_ACCESS_TOKEN the first Mastodon one, and
// TELEGRAPH_ACCESS_TOKEN the mirror token. Environment wins over file.
func LoadDestinations(path string) (*Destinations, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read destinations config: %w", err)
	}

	var d Destinations
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse destinations config: %w", err)
	}

	applyEnvOverrides(&d)

	for i := range d.Telegram {
		t := &d.Telegram[i]
		if t.Name == "" {
			return nil, fmt.Errorf("telegram destination %d: name is required", i)
		}
		if t.Token == "" || t.ChatID == 0 {
			return nil, fmt.Errorf("telegram destination %q: token and chat_id are required", t.Name)
		}
		if t.ParseMode == "" {
			t.ParseMode = "MarkdownV2"
		}
	}
	for i := range d.Mastodon {
		m := &d.Mastodon[i]
		if m.Name == "" {
			return nil, fmt.Errorf("mastodon destination %d: name is required", i)
		}
		if m.Server == "" || m.AccessToken == "" {
			return nil, fmt.Errorf("mastodon destination %q: server and access_token are required", m.Name)
		}
	}

	if err := checkUniqueNames(&d); err != nil {
		return nil, err
	}

	return &d, nil
}

func applyEnvOverrides(d *Destinations) {
	if v := os.Getenv("TG_TOKEN"); v != "" && len(d.Telegram) > 0 {
		d.Telegram[0].Token = v
	}
	if v := os.Getenv("TG_CHAT_ID"); v != "" && len(d.Telegram) > 0 {
		var id int64
		if _, err := fmt.Sscanf(v, "%d", &id); err == nil {
			d.Telegram[0].ChatID = id
		}
	}
	if v := os.Getenv("MASTODON_ACCESS_TOKEN"); v != "" && len(d.Mastodon) > 0 {
		d.Mastodon[0].AccessToken = v
	}
	if v := os.Getenv("TELEGRAPH_ACCESS_TOKEN"); v != "" {
		d.Mirror.AccessToken = v
	}
}

func checkUniqueNames(d *Destinations) error {
	seen := make(map[string]bool)
	for _, t := range d.Telegram {
		if seen[t.Name] {
			return fmt.Errorf("duplicate destination name %q", t.Name)
		}
		seen[t.Name] = true
	}
	for _, m := range d.Mastodon {
		if seen[m.Name] {
			return fmt.Errorf("duplicate destination name %q", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}
