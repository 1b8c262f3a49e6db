// Package httpclient builds the retrying HTTP client shared by provider
// adapters and tools.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/soyeahso/dealflow/internal/logging"
	"github.com/soyeahso/dealflow/internal/version"
)

const maxErrorBody = 2048

// Options tunes a client.
type Options struct {
	Timeout  time.Duration // per attempt; 0 means 30s
	RetryMax int           // retries after the first attempt
	WaitMin  time.Duration
	WaitMax  time.Duration
}

// New returns a retrying client that logs through log. Exhausted retries
// return the last response instead of an error so callers can read the
// provider's status and body.
func New(log *logging.Logger, opts Options) *retryablehttp.Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	c := retryablehttp.NewClient()
	c.HTTPClient.Timeout = opts.Timeout
	c.RetryMax = opts.RetryMax
	if opts.WaitMin > 0 {
		c.RetryWaitMin = opts.WaitMin
	}
	if opts.WaitMax > 0 {
		c.RetryWaitMax = opts.WaitMax
	}
	c.Logger = leveledLogger{log: log}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// DoJSON sends a request with an optional JSON body and decodes a JSON
// response into out. Non-2xx statuses become *StatusError.
func DoJSON(ctx context.Context, c *retryablehttp.Client, method, url string, headers map[string]string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// leveledLogger adapts logging.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log *logging.Logger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.log.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.log.Warn().Fields(kv).Msg(msg) }
