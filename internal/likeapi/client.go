package likeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
)

// LikeResult is the subset of the like API response the relay consumes.
// LikesAdded == 0 is the upstream signal for a failed or limited request.
type LikeResult struct {
	LikesBefore    int64  `json:"LikesbeforeCommand"`
	LikesAfter     int64  `json:"LikesafterCommand"`
	LikesAdded     int64  `json:"LikesGivenByAPI"`
	PlayerNickname string `json:"PlayerNickname"`
}

type playerInfoResponse struct {
	Name string `json:"name"`
}

type Client struct {
	likeURL   string
	playerURL string
	likes     *http.Client
	players   *http.Client
}

func NewClient(likeURL string, likeTimeout time.Duration, playerURL string, playerTimeout time.Duration) *Client {
	return &Client{
		likeURL:   likeURL,
		playerURL: playerURL,
		likes:     &http.Client{Timeout: likeTimeout},
		players:   &http.Client{Timeout: playerTimeout},
	}
}

func (c *Client) SendLike(ctx context.Context, region, uid string) (*LikeResult, error) {
	var out LikeResult
	if err := getJSON(ctx, c.likes, expand(c.likeURL, region, uid), &out); err != nil {
		return nil, fmt.Errorf("like api: %w", err)
	}
	return &out, nil
}

func (c *Client) PlayerName(ctx context.Context, region, uid string) (string, error) {
	if c.playerURL == "" {
		return "", fmt.Errorf("player info api: %w: not configured", appErr.ErrExternal)
	}
	var out playerInfoResponse
	if err := getJSON(ctx, c.players, expand(c.playerURL, region, uid), &out); err != nil {
		return "", fmt.Errorf("player info api: %w", err)
	}
	name := strings.TrimSpace(out.Name)
	if name == "" {
		return "", fmt.Errorf("player info api: %w: empty name", appErr.ErrExternal)
	}
	return name, nil
}

func expand(template, region, uid string) string {
	return strings.NewReplacer(
		"{uid}", url.QueryEscape(uid),
		"{region}", url.QueryEscape(region),
	).Replace(template)
}

func getJSON(ctx context.Context, client *http.Client, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrExternal, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: %s", appErr.ErrExternal, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", appErr.ErrExternal, err)
	}
	return nil
}
