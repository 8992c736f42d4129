package shortener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
)

// Client wraps a link-shortener (ad/quiz gateway) API addressed by a URL
// template containing a {url} placeholder.
type Client struct {
	template string
	client   *http.Client
}

type shortenResponse struct {
	Status       string `json:"status"`
	ShortenedURL string `json:"shortenedUrl"`
	Message      string `json:"message"`
}

func New(template string, timeout time.Duration) *Client {
	return &Client{template: template, client: &http.Client{Timeout: timeout}}
}

// Shorten returns the short form of longURL. Errors never carry longURL,
// which holds a live verification code.
func (c *Client) Shorten(ctx context.Context, longURL string) (string, error) {
	escaped := url.QueryEscape(longURL)
	target := strings.ReplaceAll(c.template, "{url}", escaped)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("shortener: %w: build request", appErr.ErrInvalid)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", fmt.Errorf("shortener: %w: %s", appErr.ErrExternal, scrub(err.Error(), longURL, escaped))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("shortener: %w: %s: %s", appErr.ErrExternal, resp.Status, scrub(strings.TrimSpace(string(body)), longURL, escaped))
	}
	var out shortenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("shortener: %w: decode response: %v", appErr.ErrExternal, err)
	}
	if out.Status != "" && !strings.EqualFold(out.Status, "success") {
		return "", fmt.Errorf("shortener: %w: status %s: %s", appErr.ErrExternal, out.Status, scrub(out.Message, longURL, escaped))
	}
	if out.ShortenedURL == "" {
		return "", fmt.Errorf("shortener: %w: empty url", appErr.ErrExternal)
	}
	return out.ShortenedURL, nil
}

// scrub removes the link (plain or query-escaped) from upstream text.
func scrub(text string, links ...string) string {
	for _, link := range links {
		if link != "" {
			text = strings.ReplaceAll(text, link, "<link>")
		}
	}
	return text
}
