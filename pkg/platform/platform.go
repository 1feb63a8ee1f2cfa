// Package platform is the managed client SDK for the hosted
// database-and-storage backend: auth sessions, a row-query connectivity
// probe, and object storage addressed by bucket and path.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NaveDanan/HuggingSpace/internal/logging"
	"github.com/NaveDanan/HuggingSpace/pkg/models"
	"github.com/NaveDanan/HuggingSpace/pkg/retry"
)

// DefaultProbeTable is the table queried by the connectivity probe. The
// probe only cares that the backend answered, not what the rows contain.
const DefaultProbeTable = "models"

// Config holds client configuration.
type Config struct {
	URL        string        // Backend base URL
	AnonKey    string        // Anonymous API key, sent with every request
	Timeout    time.Duration // HTTP timeout (default 30s)
	ProbeTable string        // Table used by the readiness probe
	Store      ObjectStore   // Object-store driver override (default: REST)
}

// Client talks to the hosted platform. It owns the auth session, the
// auth-state listeners, and the connection-readiness gate shared by all
// storage operations.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	gate       *retry.Gate
	store      ObjectStore
	probeTable string

	mu           sync.RWMutex
	session      *models.Session
	listeners    map[int]AuthStateFunc
	nextListener int
}

// New creates a new platform client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("platform: backend URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("platform: anon key is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("platform: invalid backend URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ProbeTable == "" {
		cfg.ProbeTable = DefaultProbeTable
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		probeTable: cfg.ProbeTable,
		listeners:  make(map[int]AuthStateFunc),
	}
	c.gate = retry.NewGate(c.Probe)
	if cfg.Store != nil {
		c.store = cfg.Store
	} else {
		c.store = &restStore{client: c}
	}
	return c, nil
}

// Gate returns the connection-readiness gate for this backend.
func (c *Client) Gate() *retry.Gate { return c.gate }

// Storage returns the object-store driver.
func (c *Client) Storage() ObjectStore { return c.store }

// Probe issues a minimal row query (select id, limit 1) purely as a
// connectivity check.
func (c *Client) Probe(ctx context.Context) error {
	u := fmt.Sprintf("%s/rest/v1/%s?select=id&limit=1", c.baseURL, c.probeTable)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("probe: backend returned %d", resp.StatusCode)
	}
	logging.Debug("backend probe succeeded", zap.String("table", c.probeTable))
	return nil
}

// BackendError is a non-transient error returned by the platform itself.
// It is surfaced immediately, never retried.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error (%d): %s", e.Status, e.Message)
}

// applyHeaders sets the api key and bearer token. The session token wins
// over the anon key when a user is signed in.
func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("apikey", c.anonKey)
	token := c.anonKey
	c.mu.RLock()
	if c.session != nil && c.session.AccessToken != "" {
		token = c.session.AccessToken
	}
	c.mu.RUnlock()
	req.Header.Set("Authorization", "Bearer "+token)
}

// backendError drains the response body into a BackendError.
func backendError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
		Error   string `json:"error"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := ""
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Message != "":
			msg = payload.Message
		case payload.Msg != "":
			msg = payload.Msg
		case payload.Error != "":
			msg = payload.Error
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &BackendError{Status: resp.StatusCode, Message: msg}
}
