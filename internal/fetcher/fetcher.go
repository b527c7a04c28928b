// Package fetcher retrieves and parses feeds and converts their items
// into the generic entry maps the extraction engine addresses.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/sethvargo/go-retry"

	"feedrelay/internal/model"
)

// ErrFeedEmpty is returned when a feed parses but yields no entries.
// Both it and fetch failures feed the health tracker.
var ErrFeedEmpty = errors.New("feed has no entries")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	client    HTTPClient
	userAgent string
	timeout   time.Duration
}

// New creates a Fetcher with the given HTTP client and user agent.
func New(client HTTPClient, userAgent string) *Fetcher {
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		timeout:   30 * time.Second,
	}
}

// Fetch downloads and parses the feed at url, returning its entries in
// feed order. When fulltext is set, each entry's content is replaced with
// the fetched article page (best-effort; the feed-provided content is
// kept when the page cannot be retrieved).
func (f *Fetcher) Fetch(ctx context.Context, url string, fulltext bool) ([]model.Entry, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	if len(feed.Items) == 0 {
		return nil, ErrFeedEmpty
	}

	entries := make([]model.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entry := entryFromItem(item)
		if fulltext && item.Link != "" {
			if page, err := f.get(ctx, item.Link); err == nil {
				entry["content"] = extractArticle(page)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// get performs a GET with bounded retries on transient failures.
func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	var body string

	backoff := retry.WithMaxRetries(4, retry.NewFibonacci(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
		if err != nil {
			return retry.RetryableError(err)
		}
		body = string(data)
		return nil
	})
	return body, err
}

// entryFromItem flattens a parsed feed item into the generic tree that
// rules address by path. String values are whitespace-trimmed.
func entryFromItem(item *gofeed.Item) model.Entry {
	entry := model.Entry{
		"title":       strings.TrimSpace(item.Title),
		"link":        strings.TrimSpace(item.Link),
		"guid":        strings.TrimSpace(item.GUID),
		"description": strings.TrimSpace(item.Description),
		"summary":     strings.TrimSpace(item.Description),
		"published":   strings.TrimSpace(item.Published),
		"updated":     strings.TrimSpace(item.Updated),
	}

	if item.GUID != "" {
		entry["id"] = strings.TrimSpace(item.GUID)
	}

	content := strings.TrimSpace(item.Content)
	if content == "" {
		content = strings.TrimSpace(item.Description)
	}
	entry["content"] = content

	if item.Author != nil {
		entry["author"] = strings.TrimSpace(item.Author.Name)
	} else {
		entry["author"] = ""
	}

	categories := make([]any, len(item.Categories))
	for i, c := range item.Categories {
		categories[i] = strings.TrimSpace(c)
	}
	entry["categories"] = categories

	enclosures := make([]any, len(item.Enclosures))
	for i, e := range item.Enclosures {
		enclosures[i] = map[string]any{"url": e.URL, "type": e.Type}
	}
	entry["enclosures"] = enclosures

	for k, v := range item.Custom {
		if _, taken := entry[k]; !taken {
			entry[k] = strings.TrimSpace(v)
		}
	}

	return entry
}

// extractArticle pulls the main content block out of an article page,
// preferring an <article> element and falling back to the whole body.
func extractArticle(page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return page
	}
	if article := doc.Find("article"); article.Length() > 0 {
		if html, err := article.First().Html(); err == nil {
			return strings.TrimSpace(html)
		}
	}
	if html, err := doc.Find("body").Html(); err == nil && html != "" {
		return strings.TrimSpace(html)
	}
	return page
}
