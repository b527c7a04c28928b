// Package mirror publishes long-form item content to Telegraph and
// verifies the published copy against the source before trusting its URL.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"feedrelay/internal/rules"
)

const (
	apiBase    = "https://api.telegra.ph"
	uploadBase = "https://telegra.ph"

	// tooBigFallback replaces the page body when Telegraph rejects the
	// content for size; the item still gets a mirror link.
	tooBigFallback = "Failed to mirror the full content: too big. Please visit the original link."
)

// ErrFloodLimited means Telegraph refused the publish for quota reasons;
// the caller degrades to "no mirror" for this item.
var ErrFloodLimited = errors.New("telegraph flood limited")

// ErrSaveFailed covers any other publish failure.
var ErrSaveFailed = errors.New("telegraph save failed")

// Publisher publishes pages through the Telegraph API.
type Publisher struct {
	client      *http.Client
	accessToken string
	maxJitter   time.Duration
	log         *slog.Logger
}

// New creates a Publisher. Publishes are preceded by a random delay of up
// to maxJitter to avoid bursting the API from parallel workers.
func New(client *http.Client, accessToken string, maxJitter time.Duration, log *slog.Logger) *Publisher {
	return &Publisher{client: client, accessToken: accessToken, maxJitter: maxJitter, log: log}
}

// Publish uploads embedded images, converts the HTML content to Telegraph
// nodes, and creates the page. The published copy is fetched back and
// checked for a sampled line of the source text; on a mismatch the page
// is republished once with non-text characters stripped. Content the API
// rejects as too big is replaced with a fixed fallback notice.
func (p *Publisher) Publish(ctx context.Context, title, author, content string) (string, error) {
	if p.maxJitter > 0 {
		jitter := time.Duration(rand.Int63n(int64(p.maxJitter))) //nolint:gosec // jitter, not crypto
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(jitter):
		}
	}

	content = p.uploadImages(ctx, content)

	pageURL, err := p.createPage(ctx, title, author, content)
	if errors.Is(err, errTooBig) {
		p.log.Warn("telegraph content too big, publishing fallback notice", "title", title)
		return p.createPage(ctx, title, author, tooBigFallback)
	}
	if err != nil {
		return "", err
	}

	if p.verify(ctx, pageURL, content) {
		return pageURL, nil
	}

	p.log.Warn("published page failed verification, republishing without non-text characters", "title", title, "url", pageURL)
	return p.createPage(ctx, title, author, rules.StripNonText(content))
}

var errTooBig = errors.New("telegraph content too big")

type createPageResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Result struct {
		URL string `json:"url"`
	} `json:"result"`
}

func (p *Publisher) createPage(ctx context.Context, title, author, content string) (string, error) {
	nodes, err := htmlToNodes(content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	form := url.Values{
		"access_token": {p.accessToken},
		"title":        {title},
		"author_name":  {author},
		"content":      {string(nodesJSON)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+"/createPage", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed createPageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrSaveFailed, err)
	}

	if !parsed.OK {
		switch {
		case strings.Contains(parsed.Error, "CONTENT_TOO_BIG"):
			return "", errTooBig
		case strings.Contains(parsed.Error, "FLOOD_WAIT"):
			return "", fmt.Errorf("%w: %s", ErrFloodLimited, parsed.Error)
		default:
			return "", fmt.Errorf("%w: %s", ErrSaveFailed, parsed.Error)
		}
	}
	return parsed.Result.URL, nil
}

// verify fetches the published page and checks it contains a randomly
// sampled line of the source text.
func (p *Publisher) verify(ctx context.Context, pageURL, content string) bool {
	sample := sampleLine(content)
	if sample == "" {
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	page, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return false
	}
	return strings.Contains(string(page), sample)
}

// sampleLine picks a random substantial text line from the content.
func sampleLine(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	text := content
	if err == nil {
		text = doc.Text()
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len([]rune(line)) > 10 {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return lines[rand.Intn(len(lines))] //nolint:gosec // sampling, not crypto
}

// uploadImages re-hosts embedded images on Telegraph so pages do not
// depend on hotlinking. Failures keep the original src.
func (p *Publisher) uploadImages(ctx context.Context, content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || !strings.HasPrefix(src, "http") {
			return
		}
		hosted, err := p.uploadImage(ctx, src)
		if err != nil {
			p.log.Debug("image upload failed, keeping original src", "src", src, "error", err)
			return
		}
		img.SetAttr("src", hosted)
	})

	html, err := doc.Find("body").Html()
	if err != nil {
		return content
	}
	return html
}

func (p *Publisher) uploadImage(ctx context.Context, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "image")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, io.LimitReader(resp.Body, 5*1024*1024)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	upReq, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadBase+"/upload", &buf)
	if err != nil {
		return "", err
	}
	upReq.Header.Set("Content-Type", writer.FormDataContentType())

	upResp, err := p.client.Do(upReq)
	if err != nil {
		return "", err
	}
	defer func() { _ = upResp.Body.Close() }()

	var result []struct {
		Src string `json:"src"`
	}
	if err := json.NewDecoder(upResp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result) == 0 || result[0].Src == "" {
		return "", errors.New("upload returned no file")
	}
	return uploadBase + result[0].Src, nil
}
