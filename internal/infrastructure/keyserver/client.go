// Package keyserver talks to the public key directory over its REST API.
package keyserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/turtacn/keyvault/internal/config"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/service"
	"github.com/turtacn/keyvault/internal/infrastructure/monitoring"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

const keyPath = "/api/v1/key"

var _ service.KeyServer = (*Client)(nil)

// Client is the key server HTTP client. Transport errors and 5xx answers are
// retried by retryablehttp; whatever is left maps to remote_unavailable.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	metrics *monitoring.Metrics
	logger  logger.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithMetrics records every request outcome.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http.HTTPClient = hc
	}
}

// WithRetryWait bounds the backoff between attempts.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = min
		c.http.RetryWaitMax = max
	}
}

// NewClient creates a key server client from cfg.
func NewClient(cfg config.KeyServerConfig, log logger.Logger, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.ErrInvalidRequest("key server base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.ErrInvalidRequest("invalid key server base url").WithCause(err)
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	log = log.WithComponent("KeyServerClient")

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = &leveledLogger{log: log}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    rc,
		logger:  log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type uploadRequest struct {
	PublicKeyArmored string `json:"publicKeyArmored"`
}

// Upload publishes an armored public key. The server answers 201 and starts
// its own email verification; anything 2xx is success.
func (c *Client) Upload(ctx context.Context, armoredPublic string) error {
	resp, err := c.do(ctx, "upload", http.MethodPost, keyPath, uploadRequest{PublicKeyArmored: armoredPublic})
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return c.fail(ctx, "upload", statusError(resp))
	}
	c.record("upload", "success")
	return nil
}

// Remove asks the server to drop the key. Identities starting with 0x are key
// ids, everything else is an email address.
func (c *Client) Remove(ctx context.Context, identity string) error {
	if identity == "" {
		return errors.ErrInvalidRequest("removal identity is required")
	}
	q := url.Values{}
	logged := identity
	if strings.HasPrefix(identity, "0x") {
		q.Set("keyId", identity)
	} else {
		q.Set("email", identity)
		logged = utils.MaskEmail(identity)
	}
	resp, err := c.do(ctx, "remove", http.MethodDelete, keyPath+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	// 404 means there is nothing left to remove.
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return c.fail(ctx, "remove", statusError(resp))
	}
	c.record("remove", "success")
	c.logger.Info(ctx, "Key removal requested", logger.String("identity", logged))
	return nil
}

// Exists reports whether the server serves a key with fingerprint fpr.
func (c *Client) Exists(ctx context.Context, fpr models.Fingerprint) (bool, error) {
	q := url.Values{}
	q.Set("fingerprint", strings.ToLower(string(fpr)))
	resp, err := c.do(ctx, "lookup", http.MethodGet, keyPath+"?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		c.record("lookup", "found")
		return true, nil
	case http.StatusNotFound:
		c.record("lookup", "not_found")
		return false, nil
	default:
		return false, c.fail(ctx, "lookup", statusError(resp))
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body interface{}) (*http.Response, error) {
	var raw interface{}
	if body != nil {
		data, err := jsonBody(body)
		if err != nil {
			return nil, errors.ErrInternal("failed to encode key server request").WithCause(err)
		}
		raw = data
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, raw)
	if err != nil {
		return nil, errors.ErrInternal("failed to create key server request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			drain(resp)
		}
		return nil, c.fail(ctx, op, err)
	}
	return resp, nil
}

func (c *Client) fail(ctx context.Context, op string, cause error) error {
	c.record(op, "error")
	c.logger.Warn(ctx, "Key server request failed", logger.String("operation", op), logger.Err(cause))
	return errors.ErrRemoteUnavailable(op, cause)
}

func (c *Client) record(op, result string) {
	c.metrics.RecordKeyServerRequest(op, result)
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(msg) == 0 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

//Personal.AI order the ending
