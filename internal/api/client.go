package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"

	"staylink/internal/logging"
	"staylink/internal/metrics"
	"staylink/internal/models"
)

// TokenStore is the part of the session store the pipeline needs.
type TokenStore interface {
	Token() string
	SetToken(token string)
	Clear()
}

// KV is the durable storage used for the wishlist cache.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

type Options struct {
	BaseURL     string
	RefreshPath string
	Timeout     time.Duration

	// AuthRequiredPaths are path prefixes that need a logged-in user.
	AuthRequiredPaths []string
	// ExpiredCodes are server error codes that mark an expired token.
	ExpiredCodes []string
	// OnLoginRequired runs when a protected call is made without a session.
	OnLoginRequired func()

	Transport http.RoundTripper
	Storage   KV
	Logger    zerolog.Logger
}

// Client sends API calls with the session's bearer token and recovers from
// token expiry with one shared refresh.
type Client struct {
	baseURL *url.URL
	http    *http.Client

	session   TokenStore
	refresher *Refresher
	refreshes singleflight.Group

	authPaths       []string
	expiredCodes    map[string]bool
	onLoginRequired func()

	wishlist *wishlistCache
	logger   zerolog.Logger
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    []byte
	token   string
	retried bool
}

func NewClient(session TokenStore, opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	if opts.RefreshPath == "" {
		opts.RefreshPath = "/api/auth/refresh"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Jar:       jar,
		Timeout:   opts.Timeout,
	}

	logger := logging.Component(opts.Logger, "api")
	c := &Client{
		baseURL:         base,
		http:            httpClient,
		session:         session,
		authPaths:       opts.AuthRequiredPaths,
		expiredCodes:    make(map[string]bool, len(opts.ExpiredCodes)),
		onLoginRequired: opts.OnLoginRequired,
		logger:          logger,
	}
	for _, code := range opts.ExpiredCodes {
		c.expiredCodes[strings.TrimSpace(code)] = true
	}
	c.refresher = NewRefresher(httpClient, c.url(opts.RefreshPath, nil), logger)
	if opts.Storage != nil {
		c.wishlist = newWishlistCache(opts.Storage, logger)
	}
	return c, nil
}

// Do sends body as JSON and decodes a successful response into out.
// Either may be nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	r := &request{method: method, path: path, query: query}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		r.body = payload
	}
	return c.send(ctx, r, out)
}

func (c *Client) send(ctx context.Context, r *request, out interface{}) error {
	resp, err := c.roundTrip(ctx, r)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	c.harvest(resp)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", r.method, r.path, err)
		}
		return nil
	}

	body := parseErrorBody(data)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if c.requiresAuth(r.path) && c.session.Token() == "" {
			c.logger.Info().Str("path", r.path).Msg("login required")
			if c.onLoginRequired != nil {
				c.onLoginRequired()
			}
			return loginRequired(resp.StatusCode)
		}
		// 403 never refreshes: it means the user is known but not allowed.
		if resp.StatusCode == http.StatusUnauthorized && !r.retried && c.isExpired(body) {
			return c.recoverExpired(ctx, r, out)
		}
	}

	return c.normalize(resp.StatusCode, body)
}

func (c *Client) roundTrip(ctx context.Context, r *request) (*http.Response, error) {
	var reader io.Reader
	if r.body != nil {
		reader = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.url(r.path, r.query), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	r.token = c.session.Token()
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)

	metrics.RequestDuration.WithLabelValues(r.method).Observe(elapsed.Seconds())
	if err != nil {
		metrics.Requests.WithLabelValues(r.method, metrics.ResponseClass(0)).Inc()
		c.logger.Warn().Err(err).Str("method", r.method).Str("path", r.path).Msg("request failed")
		return nil, err
	}
	metrics.Requests.WithLabelValues(r.method, metrics.ResponseClass(resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("method", r.method).
		Str("path", r.path).
		Int("status", resp.StatusCode).
		Bool("retry", r.retried).
		Dur("elapsed", elapsed).
		Msg("completed")
	return resp, nil
}

// harvest stores a token the server rotated on any response. A response
// without the header leaves the session alone.
func (c *Client) harvest(resp *http.Response) {
	token := ExtractBearer(resp.Header.Get("Authorization"))
	if token == "" || token == c.session.Token() {
		return
	}
	c.session.SetToken(token)
}

// recoverExpired refreshes once for every request that failed with the same
// stale token, then resends r exactly once. The session is checked inside the
// group so a refresh that finished just before this one started is reused.
func (c *Client) recoverExpired(ctx context.Context, r *request, out interface{}) error {
	_, err, shared := c.refreshes.Do("refresh", func() (interface{}, error) {
		switch current := c.session.Token(); {
		case current != "" && current != r.token:
			// Another caller already refreshed while r was in flight.
			return current, nil
		case current == "" && r.token != "":
			// The session was cleared while r was in flight.
			return nil, forcedLogout()
		}

		token := c.refresher.Refresh(context.WithoutCancel(ctx))
		if token == "" {
			c.session.Clear()
			metrics.ForcedLogouts.Inc()
			c.logger.Warn().Msg("refresh failed, session cleared")
			return nil, forcedLogout()
		}
		c.session.SetToken(token)
		return token, nil
	})
	if err != nil {
		return err
	}
	if shared {
		c.logger.Debug().Str("path", r.path).Msg("joined in-flight refresh")
	}

	retry := *r
	retry.retried = true
	return c.send(ctx, &retry, out)
}

func (c *Client) isExpired(body models.ErrorBody) bool {
	if body.Code != "" && c.expiredCodes[body.Code] {
		return true
	}
	return strings.Contains(strings.ToLower(body.Message), "expired")
}

func (c *Client) requiresAuth(path string) bool {
	for _, prefix := range c.authPaths {
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

func (c *Client) normalize(status int, body models.ErrorBody) error {
	msg := strings.TrimSpace(body.Message)
	if msg == "" {
		msg = statusMessage(status)
	}
	return &Error{Kind: KindRequest, Status: status, Code: body.Code, Message: msg}
}

// parseErrorBody reads a JSON error body, or uses a short plain-text body as the message.
func parseErrorBody(data []byte) models.ErrorBody {
	var body models.ErrorBody
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return body
	}

	// Servers disagree on whether code is a number or a string.
	var loose struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &loose); err == nil {
		body.Code = strings.Trim(string(loose.Code), `"`)
		if body.Code == "null" {
			body.Code = ""
		}
		body.Message = loose.Message
		if body.Message == "" {
			body.Message = loose.Error
		}
		return body
	}
	if trimmed[0] != '<' && len(trimmed) <= 200 {
		body.Message = string(trimmed)
	}
	return body
}

func (c *Client) url(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// HTTPClient exposes the underlying client so other transports can share its cookies.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// IsAuthError reports whether err should send the user back to the login page.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrForcedLogout) || errors.Is(err, ErrLoginRequired)
}
