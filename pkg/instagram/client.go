package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"igengage/pkg/config"
	errs "igengage/pkg/errors"
	"igengage/pkg/logger"
	"igengage/pkg/ratelimit"
)

const maxBodySize = 16 << 20

// RequestObserver is told about every completed HTTP exchange
type RequestObserver interface {
	ObserveRequest(endpoint string, statusCode int, duration time.Duration)
}

// Client talks to Instagram's web API on behalf of one account
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    *url.URL
	pageSize   int
	limiter    ratelimit.Limiter
	observer   RequestObserver
	logger     logger.Logger

	mu      sync.RWMutex
	session *Session
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its cookie jar is managed by Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter sets the request budget waited on before every request
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithObserver registers a request observer
func WithObserver(o RequestObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new Instagram API client
func NewClient(cfg config.InstagramConfig, opts ...Option) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = BaseURL
	}
	baseURL, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		headers: map[string]string{
			"User-Agent":       cfg.UserAgent,
			"Accept":           "*/*",
			"Accept-Language":  "en-US,en;q=0.9",
			"X-IG-App-ID":      cfg.AppID,
			"X-Requested-With": "XMLHttpRequest",
			"X-ASBD-ID":        "129477",
			"Referer":          baseURL.String() + "/",
		},
		baseURL:  baseURL,
		pageSize: cfg.PageSize,
		limiter:  ratelimit.Unlimited{},
		logger:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resetCookies(nil)

	return c, nil
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetSession attaches a previously persisted session
func (c *Client) SetSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	if s == nil {
		c.resetCookiesLocked(nil)
		return
	}
	c.resetCookiesLocked(s.httpCookies())
}

// Session returns the attached session, or nil
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) resetCookies(cookies []*http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetCookiesLocked(cookies)
}

func (c *Client) resetCookiesLocked(cookies []*http.Cookie) {
	// cookiejar.New only fails on a bad PublicSuffixList, and we pass none
	jar, _ := cookiejar.New(nil)
	if len(cookies) > 0 {
		jar.SetCookies(c.baseURL, cookies)
	}
	c.httpClient.Jar = jar
}

func (c *Client) cookies() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.httpClient.Jar == nil {
		return map[string]string{}
	}
	return cookieMap(c.httpClient.Jar.Cookies(c.baseURL))
}

// do performs one request and returns the raw status and body.
// Only transport failures are returned as errors.
func (c *Client) do(ctx context.Context, method, path string, form url.Values) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return 0, nil, errs.Wrap(errs.KindUnexpected, "build request", err)
	}
	for key, value := range c.headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token := c.cookies()["csrftoken"]; token != "" {
		req.Header.Set("X-CSRFToken", token)
	}
	if s := c.Session(); s != nil && s.DeviceID != "" {
		req.Header.Set("X-Web-Device-Id", s.DeviceID)
	}

	endpoint := req.URL.Path
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		logger.LogRequest(c.logger, method, endpoint, 0, time.Since(start))
		c.observe(endpoint, 0, time.Since(start))
		return 0, nil, errs.Wrap(errs.KindTransientConnectivity, method+" "+endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	duration := time.Since(start)
	logger.LogRequest(c.logger, method, endpoint, resp.StatusCode, duration)
	c.observe(endpoint, resp.StatusCode, duration)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return resp.StatusCode, nil, errs.Wrap(errs.KindTransientConnectivity, "read response", err)
	}

	return resp.StatusCode, data, nil
}

func (c *Client) observe(endpoint string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(endpoint, status, d)
	}
}

// getJSON performs an authenticated GET and decodes the JSON response
func (c *Client) getJSON(ctx context.Context, path string, target interface{}) error {
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := c.checkResponse(path, status, body); err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"path":         path,
			"status":       status,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return errs.Wrap(errs.KindUnexpected, "decode "+path, err).WithCode(status)
	}
	return nil
}

// checkResponse maps a platform response onto the error taxonomy
func (c *Client) checkResponse(path string, status int, body []byte) error {
	var st apiStatus
	_ = json.Unmarshal(body, &st)

	msg := st.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	lower := strings.ToLower(st.Message)

	var kind errs.Kind
	switch {
	case status == http.StatusTooManyRequests,
		strings.Contains(lower, "please wait a few minutes"),
		st.Spam:
		kind = errs.KindPlatformRateLimited
	case st.RequireLogin,
		lower == "login_required",
		lower == "checkpoint_required",
		lower == "challenge_required",
		status == http.StatusUnauthorized,
		status == http.StatusForbidden:
		kind = errs.KindAuthExpired
	case status >= 400:
		kind = errs.KindForStatus(status)
	case st.Status == "fail":
		kind = errs.KindUnexpected
	default:
		return nil
	}

	c.logger.WarnWithFields("platform returned an error", map[string]interface{}{
		"path":    path,
		"status":  status,
		"kind":    string(kind),
		"message": msg,
	})
	return (&errs.Error{Kind: kind, Op: path, Message: msg}).WithCode(status)
}
