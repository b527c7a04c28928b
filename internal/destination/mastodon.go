package destination

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mattn/go-mastodon"

	"feedrelay/internal/config"
	"feedrelay/internal/model"
)

type mastodonAPI interface {
	PostStatus(ctx context.Context, toot *mastodon.Toot) (*mastodon.Status, error)
}

// Mastodon delivers messages to one Mastodon posting account. Statuses
// cannot be edited once posted; Edit reports success without a network
// call so the state machine treats the destination as up to date.
type Mastodon struct {
	api       mastodonAPI
	cfg       config.MastodonDestination
	sensitive bool
	cooldown  time.Duration
	log       *slog.Logger
}

// NewMastodon creates a Mastodon adapter for the given destination config.
// Posts carry an Idempotency-Key derived from the status body, so a
// retried request cannot double-post.
func NewMastodon(cfg config.MastodonDestination, log *slog.Logger) *Mastodon {
	client := mastodon.NewClient(&mastodon.Config{
		Server:       cfg.Server,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AccessToken:  cfg.AccessToken,
	})
	client.Transport = &idempotencyTransport{base: http.DefaultTransport}

	return &Mastodon{
		api:       client,
		cfg:       cfg,
		sensitive: cfg.Sensitive,
		cooldown:  rateLimitCooldown,
		log:       log,
	}
}

// Name returns the configured destination name.
func (m *Mastodon) Name() string { return m.cfg.Name }

// Render renders the template as plain text; Mastodon statuses carry no
// markup, so nothing is escaped.
func (m *Mastodon) Render(tmpl string, args map[string]any) (string, error) {
	return renderText(tmpl, args, "plain")
}

// Override returns a copy of the adapter with subscription tweaks applied.
func (m *Mastodon) Override(o model.DestinationOverride) Adapter {
	out := *m
	if o.Sensitive != nil {
		out.sensitive = *o.Sensitive
	}
	return &out
}

// Send posts a status and returns its id as the ref.
func (m *Mastodon) Send(ctx context.Context, text string) (string, error) {
	status, err := m.api.PostStatus(ctx, &mastodon.Toot{
		Status:    text,
		Sensitive: m.sensitive,
	})
	if err != nil {
		if strings.Contains(err.Error(), "429") {
			m.log.Warn("mastodon rate limited, cooling down", "destination", m.cfg.Name, "cooldown", m.cooldown)
			if serr := sleepCtx(ctx, m.cooldown); serr != nil {
				return "", serr
			}
			return m.Send(ctx, text)
		}
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return string(status.ID), nil
}

// Edit is not supported by the backend; the original post stands.
func (m *Mastodon) Edit(_ context.Context, ref, _ string) (EditOutcome, error) {
	m.log.Debug("mastodon does not support edits, keeping original status", "destination", m.cfg.Name, "ref", ref)
	return EditOK, nil
}

// idempotencyTransport stamps status posts with an Idempotency-Key
// derived from the request body.
type idempotencyTransport struct {
	base http.RoundTripper
}

func (t *idempotencyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, "/api/v1/statuses") && req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
		req.Body = io.NopCloser(strings.NewReader(string(body)))
		req.Header.Set("Idempotency-Key", fmt.Sprintf("%x", sha256.Sum256(body)))
	}
	return t.base.RoundTrip(req)
}
