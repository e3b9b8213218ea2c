package sqlgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/flipdesk/flipquery/internal/query"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxTries = 3
	maxErrorBody    = 4 << 10
)

// ClientOptions configures the HTTP client.
type ClientOptions struct {
	Timeout         time.Duration
	MaxTries        uint
	InitialInterval time.Duration
	APIKey          string
	HTTPClient      *http.Client
}

// Client calls a remote SQL-generation endpoint. Transport failures are
// retried with exponential backoff; any non-2xx reply is final.
type Client struct {
	endpoint string
	opts     ClientOptions
	http     *http.Client
}

// NewClient returns a client for endpoint (the full URL of generate-sql).
func NewClient(endpoint string, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = defaultMaxTries
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{endpoint: endpoint, opts: opts, http: hc}
}

// Generate posts req and returns the generated SQL.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal generate-sql request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	if c.opts.InitialInterval > 0 {
		bo.InitialInterval = c.opts.InitialInterval
	}

	attempt := 0
	sql, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		return c.post(ctx, body)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.opts.MaxTries))
	if err != nil {
		var ee *query.EndpointError
		if errors.As(err, &ee) {
			return "", ee
		}
		return "", &query.EndpointError{Endpoint: c.endpoint, Cause: err}
	}

	log.Debug().
		Str("path", req.Path()).
		Int("attempts", attempt).
		Int("sql_len", len(sql)).
		Msg("sql generated")
	return sql, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(&query.EndpointError{Endpoint: c.endpoint, Cause: err})
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		httpReq.Header.Set("X-API-Key", c.opts.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(&query.EndpointError{Endpoint: c.endpoint, Cause: ctx.Err()})
		}
		log.Warn().Err(err).Str("endpoint", c.endpoint).Msg("generate-sql transport error, retrying")
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read generate-sql response: %w", err)
	}

	var out Response
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", backoff.Permanent(&query.EndpointError{
			Endpoint:   c.endpoint,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(out.Error),
		})
	}
	if decodeErr != nil {
		return "", backoff.Permanent(&query.EndpointError{
			Endpoint:   c.endpoint,
			StatusCode: resp.StatusCode,
			Message:    "malformed response: " + truncate(string(raw), maxErrorBody),
			Cause:      decodeErr,
		})
	}
	if strings.TrimSpace(out.SQL) == "" {
		return "", backoff.Permanent(&query.EndpointError{
			Endpoint:   c.endpoint,
			StatusCode: resp.StatusCode,
			Message:    "response contained no sql",
		})
	}
	return out.SQL, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
