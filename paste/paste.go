// Package paste uploads long changelogs to an external paste service.
package paste

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a pastebin-style form API. One Upload is one POST; the
// session engine owns the retry policy.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func New(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Upload creates an unlisted, never-expiring paste and returns its URL.
func (c *Client) Upload(ctx context.Context, text, title string) (string, error) {
	form := url.Values{
		"api_dev_key":           {c.apiKey},
		"api_option":            {"paste"},
		"api_paste_code":        {text},
		"api_paste_private":     {"1"},
		"api_paste_name":        {title},
		"api_paste_expire_date": {"N"},
		"api_paste_format":      {"text"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("paste upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("paste response: %w", err)
	}
	result := strings.TrimSpace(string(body))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paste service returned %d: %s", resp.StatusCode, result)
	}
	// The API reports errors as a plain-text body, success as the paste URL.
	if !strings.HasPrefix(result, "http://") && !strings.HasPrefix(result, "https://") {
		return "", fmt.Errorf("paste service error: %s", result)
	}
	return result, nil
}
