package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/NaveDanan/HuggingSpace/internal/logging"
	"github.com/NaveDanan/HuggingSpace/pkg/models"
)

// Auth-state events delivered to OnAuthStateChange listeners.
const (
	EventSignedIn  = "SIGNED_IN"
	EventSignedOut = "SIGNED_OUT"
)

// AuthStateFunc receives auth-state transitions. The session is nil on
// sign-out.
type AuthStateFunc func(event string, session *models.Session)

// tokenResponse is the wire shape of the platform's auth endpoints.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// GetSession returns a copy of the current session, or nil when signed out.
func (c *Client) GetSession() *models.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// OnAuthStateChange registers a listener for sign-in/sign-out transitions
// and returns an unsubscribe function.
func (c *Client) OnAuthStateChange(fn AuthStateFunc) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) notify(event string, session *models.Session) {
	c.mu.RLock()
	fns := make([]AuthStateFunc, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()
	for _, fn := range fns {
		fn(event, session)
	}
}

// SignInWithPassword authenticates with email/password and installs the
// returned session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	resp, err := c.authRequest(ctx, "/auth/v1/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	session := c.installSession(resp)
	logging.Info("user signed in", zap.String("user_id", session.User.ID))
	return session, nil
}

// SignUp registers a new user. When the platform issues a session right
// away it is installed like a sign-in.
func (c *Client) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	resp, err := c.authRequest(ctx, "/auth/v1/signup", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		// Email confirmation pending; no session yet.
		return nil, nil
	}
	return c.installSession(resp), nil
}

// SignOut revokes the session on the backend and clears it locally. The
// local session is cleared even when the revoke call fails.
func (c *Client) SignOut(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	var revokeErr error
	if resp, err := c.httpClient.Do(req); err != nil {
		revokeErr = err
	} else {
		resp.Body.Close()
	}

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	c.notify(EventSignedOut, nil)
	return revokeErr
}

// SetSession installs an externally obtained session (e.g. from a cached
// token file) without hitting the network.
func (c *Client) SetSession(session *models.Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	if session != nil {
		c.notify(EventSignedIn, session)
	}
}

func (c *Client) installSession(resp *tokenResponse) *models.Session {
	session := &models.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		User: models.UserInfo{
			ID:    resp.User.ID,
			Email: resp.User.Email,
		},
	}
	fillFromClaims(session)

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	c.notify(EventSignedIn, session)
	return session
}

// fillFromClaims backfills user id and expiry from the access token claims
// when the auth response left them out. The token is not verified here: the
// backend is the authority and rejects bad tokens on use.
func fillFromClaims(session *models.Session) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(session.AccessToken, claims); err != nil {
		return
	}
	if session.User.ID == "" {
		if sub, err := claims.GetSubject(); err == nil {
			session.User.ID = sub
		}
	}
	if session.ExpiresAt.IsZero() || session.ExpiresAt.Equal(time.Unix(0, 0)) {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			session.ExpiresAt = exp.Time
		}
	}
	if session.User.Email == "" {
		if email, ok := claims["email"].(string); ok {
			session.User.Email = email
		}
	}
}

func (c *Client) authRequest(ctx context.Context, path string, body map[string]string) (*tokenResponse, error) {
	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendError(resp)
	}

	var result tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse auth response: %w", err)
	}
	return &result, nil
}
