// Package api is the HTTP client for the remote commerce backend.
package api

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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storefront/metrics"
)

const maxBodyBytes = 1 << 20

// Client talks to the commerce backend. It holds no session state: the
// bearer token travels on the request context (see WithAccessToken).
type Client struct {
	baseURL    string
	gatewayURL string
	httpClient *http.Client
	log        logrus.FieldLogger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	// GatewayURL is the form action used when the backend returns a
	// legacy payment form without one.
	GatewayURL string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// New creates a backend client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		gatewayURL: cfg.GatewayURL,
		httpClient: httpClient,
		log:        log.WithField("component", "api"),
	}, nil
}

type accessTokenKey struct{}

// WithAccessToken returns a context whose requests carry token as a
// bearer credential.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

func accessToken(ctx context.Context) string {
	tok, _ := ctx.Value(accessTokenKey{}).(string)
	return tok
}

// do issues one request. endpoint is the stable metrics/log label for the
// route; path is relative to the base URL.
func (c *Client) do(ctx context.Context, endpoint, method, path string, body, out any) error {
	raw, err := c.doRaw(ctx, endpoint, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindNetwork, Message: "unexpected response from the store", Cause: fmt.Errorf("decode %s: %w", endpoint, err)}
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, endpoint, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimPrefix(path, "/"), reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := accessToken(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	log := c.log.WithFields(logrus.Fields{"endpoint": endpoint, "request_id": requestID})
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest(endpoint, 0, time.Since(start))
		log.WithError(err).Warn("backend unreachable")
		msg := "unable to reach the store"
		if errors.Is(err, context.Canceled) {
			msg = "request canceled"
		}
		return nil, &Error{Kind: KindNetwork, Message: msg, Cause: err}
	}
	defer resp.Body.Close()
	metrics.ObserveAPIRequest(endpoint, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: "unable to read the store response", Cause: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := classify(resp.StatusCode, raw)
		log.WithFields(logrus.Fields{"status": resp.StatusCode, "kind": apiErr.Kind}).Debug("backend rejected request")
		return nil, apiErr
	}
	log.WithField("status", resp.StatusCode).Debug("backend request ok")
	return raw, nil
}
