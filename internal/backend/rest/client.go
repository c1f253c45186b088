// Package rest talks to a hosted backend over its HTTP API: /auth/v1 for
// accounts and sessions, /rest/v1 for table access.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/model"
	"golang.org/x/oauth2"
)

const (
	defaultTimeout = 15 * time.Second
	// refreshLeeway renews access tokens shortly before they expire.
	refreshLeeway = 30 * time.Second
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	store      backend.SessionStore

	mu        sync.Mutex
	session   *model.Session
	loaded    bool
	tokens    oauth2.TokenSource
	listeners map[int]backend.AuthListener
	nextID    int
}

var _ backend.Client = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSessionStore persists sessions across runs. The default keeps them in
// memory.
func WithSessionStore(store backend.SessionStore) Option {
	return func(c *Client) { c.store = store }
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		store:      backend.NewMemoryStore(),
		listeners:  map[int]backend.AuthListener{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the current session, loading it from the store on first
// use and renewing an access token that is about to expire. A refresh token
// the server rejects signs the user out.
func (c *Client) Session(ctx context.Context) (*model.Session, error) {
	current, err := c.load()
	if err != nil {
		return nil, err
	}
	if current == nil || !current.IsExpired(refreshLeeway) {
		return current, nil
	}

	_, err = c.tokenSource().Token()
	if err != nil {
		if isRejectedGrant(err) {
			slog.Info("stored session expired, signing out", "user_id", current.UserID())
			c.setSession(nil, backend.EventSignedOut)
			return nil, nil
		}
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	var session model.Session
	err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, credentials{email, password}, nil, &session)
	if err != nil {
		return nil, err
	}
	c.setSession(&session, backend.EventSignedIn)
	return &session, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	var session model.Session
	err := c.do(ctx, http.MethodPost, "/auth/v1/token",
		url.Values{"grant_type": {"password"}}, credentials{email, password}, nil, &session)
	if err != nil {
		return nil, err
	}
	c.setSession(&session, backend.EventSignedIn)
	return &session, nil
}

// SignOut revokes the session on the server and forgets it locally. The
// local state is cleared even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	current, err := c.load()
	if err != nil {
		return err
	}

	if current != nil {
		req, rerr := c.newRequest(ctx, http.MethodPost, "/auth/v1/logout", nil, nil)
		if rerr == nil {
			setBearer(req, current.AccessToken)
			err = c.send(req, nil)
		} else {
			err = rerr
		}
	}

	c.setSession(nil, backend.EventSignedOut)
	return err
}

func (c *Client) OnAuthStateChange(fn backend.AuthListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// User fetches the signed-in user from the server.
func (c *Client) User(ctx context.Context) (*model.User, error) {
	var user model.User
	err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, nil, c.authorize, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Select(ctx context.Context, q backend.Query, dest any) error {
	return c.do(ctx, http.MethodGet, tablePath(q.Table), q.Values(), nil, c.authorize, dest)
}

func (c *Client) Insert(ctx context.Context, table string, rows []map[string]any, dest any) error {
	prefer := "return=minimal"
	if dest != nil {
		prefer = "return=representation"
	}
	return c.do(ctx, http.MethodPost, tablePath(table), nil, rows, withPrefer(c.authorize, prefer), dest)
}

func (c *Client) Update(ctx context.Context, q backend.Query, values map[string]any) error {
	return c.do(ctx, http.MethodPatch, tablePath(q.Table), q.Values(), values, withPrefer(c.authorize, "return=minimal"), nil)
}

func (c *Client) Delete(ctx context.Context, q backend.Query) error {
	return c.do(ctx, http.MethodDelete, tablePath(q.Table), q.Values(), nil, c.authorize, nil)
}

func tablePath(table string) string {
	return "/rest/v1/" + url.PathEscape(table)
}

// authorize sets the bearer token, refreshing it first when needed.
func (c *Client) authorize(req *http.Request) error {
	current, err := c.load()
	if err != nil {
		return err
	}
	if current == nil {
		return backend.ErrNoSession
	}

	tok, err := c.tokenSource().Token()
	if err != nil {
		if isRejectedGrant(err) {
			c.setSession(nil, backend.EventSignedOut)
			return backend.ErrNoSession
		}
		return err
	}
	tok.SetAuthHeader(req)
	return nil
}

func withPrefer(next func(*http.Request) error, prefer string) func(*http.Request) error {
	return func(req *http.Request) error {
		req.Header.Set("Prefer", prefer)
		return next(req)
	}
}

func setBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}

// do sends body as JSON and decodes the response into dest when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, prepare func(*http.Request) error, dest any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if prepare != nil {
		if err := prepare(req); err != nil {
			return err
		}
	}
	return c.send(req, dest)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, dest any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	slog.Debug("backend request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// errorBody covers both the auth and the table API error shapes.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Details          string          `json:"details"`
	Hint             string          `json:"hint"`
}

func decodeError(resp *http.Response) error {
	be := &backend.Error{Status: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		be.Message = strings.TrimSpace(string(data))
		if be.Message == "" {
			be.Message = http.StatusText(resp.StatusCode)
		}
		return be
	}

	// The table API sends a string code, the auth API a numeric status.
	var code string
	if json.Unmarshal(body.Code, &code) == nil {
		be.Code = code
	}
	be.Code = firstNonEmpty(body.ErrorCode, be.Code, body.Error)
	be.Message = firstNonEmpty(body.Message, body.Msg, body.ErrorDescription, body.Error, http.StatusText(resp.StatusCode))
	be.Details = body.Details
	be.Hint = body.Hint
	return be
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// isRejectedGrant reports whether a refresh failed because the server no
// longer accepts the refresh token.
func isRejectedGrant(err error) bool {
	var be *backend.Error
	return errors.As(err, &be) && (be.Code == backend.CodeInvalidGrant || be.Status == http.StatusUnauthorized)
}

func (c *Client) load() (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		stored, err := c.store.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		c.session = stored
		c.loaded = true
		c.tokens = c.newTokenSource(stored)
	}
	return c.session, nil
}

func (c *Client) tokenSource() oauth2.TokenSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// setSession persists session, resets the token source and notifies
// listeners outside the lock.
func (c *Client) setSession(session *model.Session, event backend.AuthEvent) {
	c.mu.Lock()
	c.session = session
	c.loaded = true
	if event != backend.EventTokenRefreshed {
		c.tokens = c.newTokenSource(session)
	}
	listeners := make([]backend.AuthListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	var err error
	if session == nil {
		err = c.store.Clear()
	} else {
		err = c.store.Save(session)
	}
	if err != nil {
		slog.Warn("failed to persist session", "error", err, "event", event)
	}

	for _, fn := range listeners {
		fn(event, session)
	}
}
