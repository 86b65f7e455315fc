// Package bgremove calls an external matting service: it posts source
// image bytes and receives an alpha-matted PNG back. The service is
// optional; sessions work fully without it.
package bgremove

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Easel-Signature"
	HeaderTimestamp = "X-Easel-Timestamp"
)

var (
	// ErrNotConfigured marks a removal request against an instance
	// with no endpoint set.
	ErrNotConfigured = errors.New("background removal endpoint not configured")

	// ErrRemovalFailed marks a definitive service failure. The caller
	// reports it and keeps the session untouched.
	ErrRemovalFailed = errors.New("background removal failed")
)

type Config struct {
	Endpoint       string
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	endpoint       string
	signingSecret  string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 1 * time.Second
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff < initialBackoff {
		maxBackoff = initialBackoff
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		endpoint:       strings.TrimSpace(cfg.Endpoint),
		signingSecret:  cfg.SigningSecret,
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool {
	return c.endpoint != ""
}

// Remove posts the image to the matting service and returns the
// alpha-matted PNG. Transport errors and 5xx responses are retried
// with exponential backoff; 4xx responses fail immediately.
func (c *Client) Remove(ctx context.Context, image []byte) ([]byte, error) {
	if c.endpoint == "" {
		return nil, ErrNotConfigured
	}

	timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	signature := c.sign(timestamp, image)

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
		if err != nil {
			return nil, fmt.Errorf("build removal request: %w", err)
		}

		req.Header.Set("Content-Type", "image/png")
		req.Header.Set("Accept", "image/png")
		req.Header.Set(HeaderTimestamp, timestamp)
		req.Header.Set(HeaderSignature, signature)

		result, retry, err := c.do(req)
		if err == nil {
			return result, nil
		}
		if !retry {
			return nil, err
		}

		lastErr = err
		if attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff = minDuration(backoff*2, c.maxBackoff)
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRemovalFailed, c.maxAttempts, lastErr)
}

func (c *Client) do(req *http.Request) (result []byte, retry bool, err error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if readErr != nil {
			return nil, true, fmt.Errorf("read removal response: %w", readErr)
		}
		if len(data) == 0 {
			return nil, false, fmt.Errorf("%w: endpoint returned an empty image", ErrRemovalFailed)
		}
		return data, false, nil
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("endpoint returned status=%d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("%w: endpoint returned status=%d", ErrRemovalFailed, resp.StatusCode)
	}
}

func (c *Client) sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.signingSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
