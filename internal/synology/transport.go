package synology

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

const (
	// DefaultPort is the SRM web API port.
	DefaultPort = 8000

	// DefaultTimeout bounds every HTTP call. A timeout is a failure, never retried.
	DefaultTimeout = 5 * time.Second

	// DefaultRateLimit is the default number of calls per minute sent to the router.
	DefaultRateLimit = 120

	archiveContentType = "application/zip"
	sessionCookieName  = "id"
)

// Options configures a Transport.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string

	// HTTPS selects https:// instead of http://.
	HTTPS bool

	// InsecureSkipVerify disables certificate checks (self-signed router certificates).
	InsecureSkipVerify bool

	// Timeout for each HTTP call (defaults to DefaultTimeout).
	Timeout time.Duration

	// RateLimitPerMinute paces calls to the router (defaults to DefaultRateLimit).
	RateLimitPerMinute int

	// HTTPClient overrides the HTTP client (optional, mainly for tests).
	HTTPClient *http.Client

	Logger Logger
}

// Call describes one logical SRM API call.
type Call struct {
	Endpoint string
	API      string
	Method   string
	Version  int
	Params   map[string]string

	// Unrestricted calls never log in and are never retried on session expiry.
	Unrestricted bool

	// Errors maps API-specific error codes to their documented messages.
	Errors map[int]string
}

// Transport performs authenticated calls against the SRM web API.
// It owns the session id; login and re-login are serialized so that
// concurrent callers never log in twice for the same expired session.
type Transport struct {
	baseURL    string
	host       string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     Logger

	mu  sync.Mutex
	sid string
}

// NewTransport creates a Transport for the given router.
func NewTransport(opts Options) (*Transport, error) {
	if opts.Host == "" {
		return nil, errors.New("router host is required")
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RateLimitPerMinute == 0 {
		opts.RateLimitPerMinute = DefaultRateLimit
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.Timeout, opts.InsecureSkipVerify)
	}

	scheme := "http"
	if opts.HTTPS {
		scheme = "https"
	}

	return &Transport{
		baseURL:    fmt.Sprintf("%s://%s:%d/webapi", scheme, opts.Host, opts.Port),
		host:       opts.Host,
		username:   opts.Username,
		password:   opts.Password,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(float64(opts.RateLimitPerMinute)/60.0), opts.RateLimitPerMinute),
		logger:     opts.Logger,
	}, nil
}

func newHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // opt-in for routers with self-signed certificates
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Host returns the router host this transport talks to.
func (t *Transport) Host() string {
	return t.host
}

// BaseURL returns the web API root, e.g. http://192.168.1.1:8000/webapi.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// HasSession reports whether a session id is currently held.
func (t *Transport) HasSession() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sid != ""
}

// Call performs one API call and returns the decoded payload: the "data"
// member, or the "success" value itself for endpoints that answer without data.
func (t *Transport) Call(ctx context.Context, call Call) (json.RawMessage, error) {
	data, body, err := t.execute(ctx, call, false)
	if body != nil {
		body.Close()
	}
	return data, err
}

// Download performs a call that is expected to stream an archive and copies
// the archive to w. Non-archive answers are decoded and errors reported as for Call.
func (t *Transport) Download(ctx context.Context, call Call, w io.Writer) (int64, error) {
	_, body, err := t.execute(ctx, call, true)
	if err != nil {
		return 0, err
	}
	if body == nil {
		return 0, errors.Wrapf(ErrMalformedResponse, "%s %s did not return an archive", call.API, call.Method)
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, errors.Wrap(err, "failed to copy archive")
	}
	return n, nil
}

// Login forces a new session, replacing any existing one.
func (t *Transport) Login(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loginLocked(ctx)
}

// Logout ends the current session if there is one.
func (t *Transport) Logout(ctx context.Context) error {
	t.mu.Lock()
	sid := t.sid
	t.sid = ""
	t.mu.Unlock()

	if sid == "" {
		return nil
	}

	_, _, err := t.roundTrip(ctx, Call{
		Endpoint:     "auth.cgi",
		API:          "SYNO.API.Auth",
		Method:       "Logout",
		Version:      2,
		Unrestricted: true,
	}, sid, false)
	return err
}

// execute runs the call with at most one re-login on session expiry.
func (t *Transport) execute(ctx context.Context, call Call, allowStream bool) (json.RawMessage, io.ReadCloser, error) {
	if call.Version <= 0 {
		call.Version = 1
	}

	for retried := false; ; retried = true {
		sid, err := t.session(ctx, !call.Unrestricted)
		if err != nil {
			return nil, nil, err
		}

		data, body, err := t.roundTrip(ctx, call, sid, allowStream)
		if err == nil {
			return data, body, nil
		}

		if call.Unrestricted || retried || !IsSessionError(err) {
			return nil, nil, err
		}

		t.logger.Infof("Session expired during %s %s, logging in again", call.API, call.Method)
		if err := t.relogin(ctx, sid); err != nil {
			return nil, nil, err
		}
	}
}

// session returns the current session id, logging in first when required.
func (t *Transport) session(ctx context.Context, required bool) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if required && t.sid == "" {
		if err := t.loginLocked(ctx); err != nil {
			return "", err
		}
	}
	return t.sid, nil
}

// relogin replaces stale with a fresh session unless another caller already did.
func (t *Transport) relogin(ctx context.Context, stale string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sid != "" && t.sid != stale {
		return nil
	}
	return t.loginLocked(ctx)
}

func (t *Transport) loginLocked(ctx context.Context) error {
	t.logger.Debugf("Logging in to SRM at %s as %s", t.baseURL, t.username)

	data, _, err := t.roundTrip(ctx, Call{
		Endpoint: "auth.cgi",
		API:      "SYNO.API.Auth",
		Method:   "Login",
		Version:  2,
		Params: map[string]string{
			"format":  "sid",
			"account": t.username,
			"passwd":  t.password,
		},
		Unrestricted: true,
		Errors:       loginErrorMessages,
	}, "", false)
	if err != nil {
		t.sid = ""
		t.logger.Errorf("Login failed: %v", err)
		var apiErr *APIError
		var commonErr *CommonError
		if errors.As(err, &apiErr) || errors.As(err, &commonErr) {
			return errors.Mark(err, ErrLoginFailed)
		}
		return err
	}

	var payload struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.SID == "" {
		t.sid = ""
		return errors.Wrap(ErrMalformedResponse, "login response carries no sid")
	}

	t.sid = payload.SID
	t.logger.Infof("Successfully logged in to SRM at %s", t.host)
	return nil
}

// roundTrip issues a single HTTP request and classifies the answer.
func (t *Transport) roundTrip(ctx context.Context, call Call, sid string, allowStream bool) (json.RawMessage, io.ReadCloser, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, nil, errors.Wrap(err, "rate limit wait")
	}

	req, err := t.newRequest(ctx, call, sid)
	if err != nil {
		return nil, nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "request %s %s", call.API, call.Method)
	}

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, nil, &StatusError{StatusCode: resp.StatusCode}
	}

	if isArchive(resp.Header.Get("Content-Type")) {
		if !allowStream {
			resp.Body.Close()
			return nil, nil, ErrUnexpectedArchive
		}
		return nil, resp.Body, nil
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read %s %s response", call.API, call.Method)
	}

	data, err := decodeEnvelope(body, call)
	return data, nil, err
}

func (t *Transport) newRequest(ctx context.Context, call Call, sid string) (*http.Request, error) {
	query := url.Values{}
	for key, value := range call.Params {
		query.Set(key, value)
	}
	query.Set("api", call.API)
	query.Set("method", call.Method)
	query.Set("version", strconv.Itoa(call.Version))

	endpoint := t.baseURL + "/" + strings.TrimLeft(call.Endpoint, "/") + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sid})
	}
	return req, nil
}

func isArchive(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), archiveContentType)
}

// decodeEnvelope unpacks {success, data} / {success: false, error: {code}}.
func decodeEnvelope(body []byte, call Call) (json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrapf(ErrMalformedResponse, "%s %s: %v", call.API, call.Method, err)
	}

	rawSuccess, hasSuccess := envelope["success"]
	if !hasSuccess {
		return nil, errors.Wrapf(ErrMalformedResponse, "%s %s: missing success flag", call.API, call.Method)
	}

	var success bool
	if err := json.Unmarshal(rawSuccess, &success); err != nil {
		return nil, errors.Wrapf(ErrMalformedResponse, "%s %s: success flag is not a boolean", call.API, call.Method)
	}

	if !success {
		var failure struct {
			Code *int `json:"code"`
		}
		rawError, ok := envelope["error"]
		if !ok || json.Unmarshal(rawError, &failure) != nil || failure.Code == nil {
			return nil, errors.Wrapf(ErrMalformedResponse, "%s %s: failure without error code", call.API, call.Method)
		}
		return nil, classifyError(*failure.Code, call.Errors)
	}

	data, hasData := envelope["data"]
	if !hasData {
		return rawSuccess, nil
	}
	return bytes.TrimSpace(data), nil
}

func classifyError(code int, known map[int]string) error {
	if code >= 100 && code < 200 {
		message := commonErrorMessage(code)
		if isSessionExpiry(code) {
			return &SessionError{Code: code, Message: message}
		}
		return &CommonError{Code: code, Message: message}
	}

	message, ok := known[code]
	if !ok {
		message = unknownAPIErrorMessage
	}
	return &APIError{Code: code, Message: message}
}
