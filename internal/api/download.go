package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/zb-pm/zb/internal/logger"
)

// OpenBottle issues a GET against url and returns the response body
// stream, authenticating against GitHub Container Registry when the URL
// targets ghcr.io. Callers are responsible for closing the returned
// io.ReadCloser. Used by internal/blobcache to stream bottle archives
// straight into the download-and-hash pipeline without buffering them
// in memory first.
func (c *Client) OpenBottle(url string) (io.ReadCloser, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	if strings.Contains(url, "ghcr.io") {
		if err := c.addGHCRAuth(req); err != nil {
			logger.Debug("GHCR authentication failed, continuing unauthenticated: %v", err)
		}
	}

	resp, err := c.downloadWithRetry(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status %d for %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}

// addGHCRAuth attaches a bearer token for the GitHub Container Registry's
// Docker Registry v2 anonymous-pull flow, or a personal token from
// $GITHUB_TOKEN when set.
func (c *Client) addGHCRAuth(req *http.Request) error {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}

	repository := "homebrew/core"
	if parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/"); len(parts) >= 2 {
		repository = strings.Join(parts[:2], "/")
	}
	scope := fmt.Sprintf("repository:%s:pull", repository)
	tokenURL := fmt.Sprintf("https://ghcr.io/token?service=ghcr.io&scope=%s", scope)

	tokenReq, err := http.NewRequest(http.MethodGet, tokenURL, nil)
	if err != nil {
		return fmt.Errorf("create token request: %w", err)
	}
	tokenReq.Header.Set("User-Agent", c.userAgent)
	tokenReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(tokenReq)
	if err != nil {
		return fmt.Errorf("fetch ghcr token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ghcr token request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read ghcr token response: %w", err)
	}
	var tokenResponse struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResponse); err != nil {
		return fmt.Errorf("parse ghcr token response: %w", err)
	}
	token := tokenResponse.Token
	if token == "" {
		token = tokenResponse.AccessToken
	}
	if token == "" {
		return fmt.Errorf("ghcr token response carried no token")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// downloadWithRetry retries once on a 401/403 against ghcr.io, refreshing
// the auth token before the second attempt.
func (c *Client) downloadWithRetry(req *http.Request) (*http.Response, error) {
	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		clone := req.Clone(req.Context())
		resp, err := c.httpClient.Do(clone)
		if err != nil {
			lastErr = err
			continue
		}
		if (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) &&
			strings.Contains(req.URL.Host, "ghcr.io") && attempt < maxAttempts-1 {
			resp.Body.Close()
			req.Header.Del("Authorization")
			if err := c.addGHCRAuth(req); err != nil {
				logger.Debug("failed to refresh ghcr auth: %v", err)
			}
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("download failed after %d attempts: %w", maxAttempts, lastErr)
}
