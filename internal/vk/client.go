// Package vk is a minimal client for the VK API methods the bot consumes.
package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rent_bot/internal/model"
)

const apiBaseURL = "https://api.vk.com/method/"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is an error envelope returned by the VK API.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// Client calls VK API methods over HTTP. Wall reads use the user token,
// message sends use the bot token.
type Client struct {
	httpc   HTTPClient
	wallTok string
	botTok  string
	version string
	baseURL string
}

// New creates a Client with the default HTTP client and a bounded timeout.
func New(wallToken, botToken string) *Client {
	return NewWithHTTPClient(&http.Client{Timeout: 30 * time.Second}, wallToken, botToken)
}

// NewWithHTTPClient creates a Client with a custom HTTP client (useful for testing).
func NewWithHTTPClient(httpc HTTPClient, wallToken, botToken string) *Client {
	return &Client{
		httpc:   httpc,
		wallTok: wallToken,
		botTok:  botToken,
		version: "5.199",
		baseURL: apiBaseURL,
	}
}

// SetVersion overrides the default API version.
func (c *Client) SetVersion(v string) {
	c.version = v
}

type wallGetResponse struct {
	Items []struct {
		ID   int64  `json:"id"`
		Text string `json:"text"`
		Date int64  `json:"date"`
	} `json:"items"`
}

// WallGet fetches the most recent count posts of the community wall, newest
// first, as VK returns them.
func (c *Client) WallGet(ctx context.Context, ownerID int64, count int) ([]model.Post, error) {
	params := url.Values{}
	params.Set("owner_id", strconv.FormatInt(ownerID, 10))
	params.Set("count", strconv.Itoa(count))
	params.Set("offset", "0")

	var resp wallGetResponse
	if err := c.call(ctx, "wall.get", params, c.wallTok, &resp); err != nil {
		return nil, err
	}

	posts := make([]model.Post, 0, len(resp.Items))
	for _, item := range resp.Items {
		posts = append(posts, model.Post{ID: item.ID, Text: item.Text, Date: item.Date})
	}
	return posts, nil
}

// SendMessage sends a personal message from the community to the user.
// attachment and keyboard are optional.
func (c *Client) SendMessage(ctx context.Context, userID int64, text, attachment, keyboard string) error {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userID, 10))
	params.Set("random_id", strconv.FormatInt(randomID(), 10))
	params.Set("message", text)
	if attachment != "" {
		params.Set("attachment", attachment)
	}
	if keyboard != "" {
		params.Set("keyboard", keyboard)
	}

	return c.call(ctx, "messages.send", params, c.botTok, nil)
}

// IsGroupMember reports whether the user is a member of the community.
func (c *Client) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(groupID, 10))
	params.Set("user_id", strconv.FormatInt(userID, 10))

	var member int
	if err := c.call(ctx, "groups.isMember", params, c.botTok, &member); err != nil {
		return false, err
	}
	return member == 1, nil
}

func (c *Client) call(ctx context.Context, method string, params url.Values, token string, out any) error {
	params.Set("access_token", token)
	params.Set("v", c.version)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+method,
		strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", method, err)
	}

	var envelope struct {
		Response json.RawMessage `json:"response"`
		Error    *APIError       `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%s: %w", method, envelope.Error)
	}

	if out == nil || envelope.Response == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Response, out); err != nil {
		return fmt.Errorf("%s: decode payload: %w", method, err)
	}
	return nil
}

func randomID() int64 {
	return int64(rand.Int31()) //nolint:gosec // message dedup token, not a secret
}
