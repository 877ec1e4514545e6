package remittance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	sc "github.com/dmitrijs2005/paykeeper/internal/server/config"
)

// MaxErrorLength caps the error text stored on a period.
const MaxErrorLength = 1000

// maxBodyRead bounds how much of an error response is kept.
const maxBodyRead = 4096

// RetryableError is returned for every failed delivery: network errors, 5xx
// and any 4xx other than 409. The retry schedule decides whether to try again.
type RetryableError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remittance request failed: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("remittance rejected with status %d", e.StatusCode)
	}
	return fmt.Sprintf("remittance rejected with status %d: %s", e.StatusCode, e.Body)
}

func (e *RetryableError) Unwrap() error { return e.Err }

func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

// Truncate shortens s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

type Client struct {
	endpoint     string
	token        string
	sharedSecret string
	source       string
	timeout      time.Duration
	httpClient   *http.Client
}

func NewClient(cfg *sc.Config) *Client {
	return &Client{
		endpoint:     cfg.SyncEndpoint,
		token:        cfg.SyncToken,
		sharedSecret: cfg.SyncSharedSecret,
		source:       cfg.SyncSource,
		timeout:      cfg.SyncTimeout,
		httpClient:   &http.Client{Timeout: cfg.SyncTimeout},
	}
}

func (c *Client) Configured() bool {
	return c.endpoint != ""
}

func (c *Client) Source() string {
	return c.source
}

// Send posts body once. It returns nil for 2xx and for 409, which the
// authority uses to report an already accepted key. The request is detached
// from ctx cancellation and runs until the configured timeout.
func (c *Client) Send(ctx context.Context, key string, body []byte) (int, error) {
	if !c.Configured() {
		return 0, common.NewConfigurationError(common.ErrSyncEndpointNotConfigured, "")
	}

	reqCtx := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, common.NewConfigurationError(common.ErrSyncEndpointNotConfigured, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.IdempotencyKeyHeaderName, key)
	req.Header.Set(common.SourceHeaderName, c.source)
	if c.token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+c.token)
	}
	if c.sharedSecret != "" {
		req.Header.Set(common.SharedSecretHeaderName, c.sharedSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &RetryableError{Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusConflict:
		return resp.StatusCode, nil
	default:
		return resp.StatusCode, &RetryableError{
			StatusCode: resp.StatusCode,
			Body:       Truncate(string(bytes.TrimSpace(respBody)), MaxErrorLength),
		}
	}
}
