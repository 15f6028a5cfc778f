// Package apiclient is the HTTP client for the MicroCourses backend. It
// attaches the stored credential to every request and ends the session when
// an auth endpoint rejects it.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"
	"microcourses/internal/infrastructure/monitoring"
	"microcourses/pkg/circuitbreaker"
	apperrors "microcourses/pkg/errors"
	"microcourses/pkg/logger"
	"microcourses/pkg/tracing"
	"microcourses/pkg/utils"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// authPathPrefix marks the endpoints whose 401 proves the stored credential
// is invalid.
const authPathPrefix = "/auth/"

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string

	// RequestsPerSecond > 0 enables an outbound limiter.
	RequestsPerSecond float64
	Burst             int

	// BreakerThreshold > 0 fails calls fast for BreakerCooldown after that
	// many consecutive transport failures.
	BreakerThreshold int
	BreakerCooldown  time.Duration

	HTTPClient *http.Client
}

// Client talks to the backend. Navigator and metrics are optional.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	creds     ports.CredentialStore
	nav       ports.Navigator
	limiter   *rate.Limiter
	breaker   *circuitbreaker.CircuitBreaker
	metrics   *monitoring.PrometheusCollector
	logger    *zap.SugaredLogger

	mu             sync.RWMutex
	forcedHandlers []func(ctx context.Context)

	Auth    *AuthEndpoints
	Courses *CourseEndpoints
	Lessons *LessonEndpoints
	Learner *LearnerEndpoints
	Creator *CreatorEndpoints
	Admin   *AdminEndpoints
}

func New(opts Options, creds ports.CredentialStore, nav ports.Navigator, metrics *monitoring.PrometheusCollector, logger *zap.SugaredLogger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	if creds == nil {
		return nil, errors.New("credential store is required")
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		baseURL:   base,
		http:      httpClient,
		userAgent: opts.UserAgent,
		creds:     creds,
		nav:       nav,
		metrics:   metrics,
		logger:    logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	if opts.BreakerThreshold > 0 {
		c.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: opts.BreakerThreshold,
			Timeout:          opts.BreakerCooldown,
		})
		c.breaker.OnStateChange(func(from, to circuitbreaker.State) {
			logger.Warnw("backend circuit changed", "from", from.String(), "to", to.String())
		})
	}

	c.Auth = &AuthEndpoints{c: c}
	c.Courses = &CourseEndpoints{c: c}
	c.Lessons = &LessonEndpoints{c: c}
	c.Learner = &LearnerEndpoints{c: c}
	c.Creator = &CreatorEndpoints{c: c}
	c.Admin = &AdminEndpoints{c: c}
	return c, nil
}

// OnForcedLogout registers fn to run when the backend rejects the credential.
// Handlers run before the credential is cleared.
func (c *Client) OnForcedLogout(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forcedHandlers = append(c.forcedHandlers, fn)
}

// Request describes one backend call. Path is relative to the base URL and
// starts with a slash. Form, when set, takes precedence over Body.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Form   *MultipartForm
}

type MultipartForm struct {
	Fields map[string]string
	Files  []FormFile
}

type FormFile struct {
	Field    string
	FileName string
	Content  io.Reader
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Do sends req and decodes the data member of the response envelope into
// out. A nil out discards the payload.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeDecode, "malformed response", 0).WithContext("path", req.Path)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeDecode, "unexpected response shape", 0).WithContext("path", req.Path)
	}
	return nil
}

// DoRaw sends req and returns the response body of a 2xx answer unparsed.
func (c *Client) DoRaw(ctx context.Context, req Request) ([]byte, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	ctx, span := tracing.TraceHTTPRequest(ctx, req.Method, req.Path)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperrors.NewNetworkError(req.Path, err)
		}
	}

	requestID := utils.GenerateRequestID()
	ctx = logger.WithRequestID(ctx, requestID)

	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	httpReq.Header.Set("X-Request-ID", requestID)
	c.attachCredential(ctx, httpReq)
	tracing.InjectHTTPHeaders(ctx, httpReq.Header)

	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return nil, apperrors.NewNetworkError(req.Path, err)
		}
	}
	start := time.Now()
	resp, err := c.http.Do(httpReq)
	duration := time.Since(start)
	if c.breaker != nil {
		c.breaker.Record(err)
	}
	if err != nil {
		c.metrics.RecordRequest(req.Method, req.Path, 0, duration)
		c.logger.Warnw("request failed", "method", req.Method, "path", req.Path, "request_id", requestID, "error", err)
		tracing.RecordError(ctx, err)
		return nil, apperrors.NewNetworkError(req.Path, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	c.metrics.RecordRequest(req.Method, req.Path, resp.StatusCode, duration)
	span.SetAttributes(tracing.StatusCodeKey.Int(resp.StatusCode), tracing.RequestIDKey.String(requestID))
	c.logger.Debugw("request", "method", req.Method, "path", req.Path, "status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(), "request_id", requestID)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if readErr != nil {
			return nil, apperrors.NewNetworkError(req.Path, readErr)
		}
		span.SetStatus(codes.Ok, "")
		return body, nil
	}

	if resp.StatusCode == http.StatusUnauthorized && strings.HasPrefix(req.Path, authPathPrefix) {
		c.forceLogout(ctx, req.Path)
	}

	appErr := apperrors.FromStatus(resp.StatusCode, req.Path, serverMessage(body))
	appErr.WithContext("request_id", requestID)
	span.SetStatus(codes.Error, appErr.Message)
	return nil, appErr
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	u, err := url.Parse(c.baseURL.String() + req.Path)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid request path", 0)
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.Form != nil:
		buf, ct, err := encodeMultipart(req.Form)
		if err != nil {
			return nil, apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "cannot encode form", 0)
		}
		body, contentType = buf, ct
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "cannot encode request body", 0)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "cannot build request", 0)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	return httpReq, nil
}

// attachCredential reads the token at request time so that a login or
// logout elsewhere is picked up by the next call.
func (c *Client) attachCredential(ctx context.Context, r *http.Request) {
	token, err := c.creds.Read(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoCredential) {
			c.logger.Warnw("cannot read credential", "error", err)
		}
		return
	}
	r.Header.Set("Authorization", "Bearer "+token)
}

func (c *Client) forceLogout(ctx context.Context, path string) {
	c.logger.Infow("credential rejected, ending session", "path", path)
	c.metrics.RecordForcedLogout()

	c.mu.RLock()
	handlers := append([]func(context.Context){}, c.forcedHandlers...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(ctx)
	}

	if err := c.creds.Clear(ctx); err != nil {
		c.logger.Errorw("failed to clear credential", "error", err)
	}
	if c.nav != nil {
		c.nav.Navigate(domain.PathLogin, "")
	}
}

func serverMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return strings.TrimSpace(env.Message)
}

func encodeMultipart(form *MultipartForm) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range form.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	for _, f := range form.Files {
		part, err := w.CreateFormFile(f.Field, f.FileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// Ping checks that the backend answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.DoRaw(ctx, Request{Method: http.MethodGet, Path: "/courses", Query: url.Values{"limit": {"1"}}})
	if err == nil {
		return nil
	}
	if apperrors.IsCode(err, apperrors.ErrCodeNetwork) {
		return err
	}
	return nil
}

func escape(id string) string {
	return url.PathEscape(id)
}
