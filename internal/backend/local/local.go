// Package local implements the backend boundary in-process, on top of the
// same services the HTTP server exposes.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/model"
	"github.com/templui/habits/internal/repository"
	"github.com/templui/habits/internal/service"
)

// refreshLeeway renews access tokens shortly before they expire.
const refreshLeeway = 30 * time.Second

type Client struct {
	auth  *service.AuthService
	data  *service.DataService
	store backend.SessionStore

	mu        sync.Mutex
	session   *model.Session
	loaded    bool
	listeners map[int]backend.AuthListener
	nextID    int
}

var _ backend.Client = (*Client)(nil)

func New(auth *service.AuthService, data *service.DataService, store backend.SessionStore) *Client {
	if store == nil {
		store = backend.NewMemoryStore()
	}
	return &Client{
		auth:      auth,
		data:      data,
		store:     store,
		listeners: map[int]backend.AuthListener{},
	}
}

// Options configures NewFromDB.
type Options struct {
	JWTSecret          string
	JWTExpiry          time.Duration
	RefreshTokenExpiry time.Duration
	Store              backend.SessionStore
}

// NewFromDB wires repositories and services over an open database.
func NewFromDB(db *sqlx.DB, opts Options) *Client {
	if opts.JWTExpiry == 0 {
		opts.JWTExpiry = time.Hour
	}
	if opts.RefreshTokenExpiry == 0 {
		opts.RefreshTokenExpiry = 30 * 24 * time.Hour
	}

	auth := service.NewAuthService(
		repository.NewUserRepository(db),
		repository.NewRefreshTokenRepository(db),
		nil,
		opts.JWTSecret,
		opts.JWTExpiry,
		opts.RefreshTokenExpiry,
	)
	data := service.NewDataService(repository.NewTableRepository(db))
	return New(auth, data, opts.Store)
}

// Session returns the persisted session, renewing it when the access token
// is about to expire. A rejected refresh token signs the user out.
func (c *Client) Session(ctx context.Context) (*model.Session, error) {
	current, err := c.load()
	if err != nil {
		return nil, err
	}

	if current == nil || !current.IsExpired(refreshLeeway) {
		return current, nil
	}

	refreshed, err := c.auth.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			slog.Info("stored session expired, signing out", "user_id", current.UserID())
			c.setSession(nil, backend.EventSignedOut)
			return nil, nil
		}
		return nil, service.AuthError(err)
	}

	c.setSession(refreshed, backend.EventTokenRefreshed)
	return refreshed, nil
}

// load reads the persisted session once.
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
	}
	return c.session, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := c.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, service.AuthError(err)
	}
	c.setSession(session, backend.EventSignedIn)
	return session, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := c.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, service.AuthError(err)
	}
	c.setSession(session, backend.EventSignedIn)
	return session, nil
}

// SignOut revokes the session's refresh tokens and forgets it locally. The
// local state is cleared even when revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	current, err := c.load()
	if err != nil {
		return err
	}

	if current != nil && current.User != nil {
		err = c.auth.SignOut(ctx, current.User.ID)
	}

	c.setSession(nil, backend.EventSignedOut)
	if err != nil {
		return service.AuthError(err)
	}
	return nil
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

func (c *Client) Select(ctx context.Context, q backend.Query, dest any) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}

	rows, err := c.data.Select(ctx, userID, q)
	if err != nil {
		return err
	}
	return decode(rows, dest)
}

func (c *Client) Insert(ctx context.Context, table string, rows []map[string]any, dest any) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}

	var values []repository.Row
	if err := reencode(rows, &values); err != nil {
		return err
	}

	stored, err := c.data.Insert(ctx, userID, table, values)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	return decode(stored, dest)
}

func (c *Client) Update(ctx context.Context, q backend.Query, values map[string]any) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}

	var row repository.Row
	if err := reencode(values, &row); err != nil {
		return err
	}

	_, err = c.data.Update(ctx, userID, q, row)
	return err
}

func (c *Client) Delete(ctx context.Context, q backend.Query) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}

	_, err = c.data.Delete(ctx, userID, q)
	return err
}

// userID authenticates the current access token the way the server does.
func (c *Client) userID(ctx context.Context) (string, error) {
	session, err := c.Session(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", backend.ErrNoSession
	}

	userID, err := c.auth.Authenticate(session.AccessToken)
	if err != nil {
		return "", service.AuthError(err)
	}
	return userID, nil
}

// setSession persists session and notifies listeners outside the lock.
func (c *Client) setSession(session *model.Session, event backend.AuthEvent) {
	c.mu.Lock()
	c.session = session
	c.loaded = true
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

// decode hands rows to dest through their JSON form, exactly as they would
// arrive over HTTP.
func decode(rows []repository.Row, dest any) error {
	return reencode(rows, dest)
}

func reencode(src, dest any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode rows: %w", err)
	}
	return nil
}
