// Package identity resolves mechanic profiles from the external identity
// service.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/autoaid/auth"
	"github.com/kilianp07/autoaid/core/model"
	"github.com/kilianp07/autoaid/core/registry"
)

// Config configures the HTTP identity directory.
type Config struct {
	BaseURL         string    `json:"base_url"`
	Auth            auth.Conf `json:"auth"`
	TimeoutSeconds  int       `json:"timeout_seconds"`
	CacheTTLSeconds int       `json:"cache_ttl_seconds"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 5
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = 300
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("identity.base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("identity.base_url: %w", err)
	}
	return nil
}

type cached struct {
	profile registry.Profile
	at      time.Time
}

// HTTPDirectory looks mechanics up with GET {base_url}/mechanics/{id}.
// Profiles are cached for the configured TTL; unknown ids are not cached.
type HTTPDirectory struct {
	base   string
	cred   *auth.ClientCred
	client *http.Client
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

// NewHTTPDirectory creates a directory client. Client credentials are used
// when cfg.Auth is configured.
func NewHTTPDirectory(cfg Config) (*HTTPDirectory, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &HTTPDirectory{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		ttl:    time.Duration(cfg.CacheTTLSeconds) * time.Second,
		now:    time.Now,
		cache:  make(map[string]cached),
	}
	if cfg.Auth.Enabled() {
		d.cred = auth.NewClientCred(cfg.Auth)
	}
	return d, nil
}

// Lookup implements registry.Directory.
func (d *HTTPDirectory) Lookup(ctx context.Context, id string) (registry.Profile, error) {
	if id == "" {
		return registry.Profile{}, fmt.Errorf("mechanic id empty: %w", model.ErrNotFound)
	}
	d.mu.Lock()
	c, ok := d.cache[id]
	d.mu.Unlock()
	if ok && d.now().Sub(c.at) < d.ttl {
		return c.profile, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.base+"/mechanics/"+url.PathEscape(id), nil)
	if err != nil {
		return registry.Profile{}, fmt.Errorf("failed to create request: %w", err)
	}
	if d.cred != nil {
		if err := d.cred.SetAuthHeader(req); err != nil {
			return registry.Profile{}, fmt.Errorf("failed to set auth header: %w", err)
		}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return registry.Profile{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return registry.Profile{}, fmt.Errorf("mechanic %s: %w", id, model.ErrNotFound)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return registry.Profile{}, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
	}
	var p registry.Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return registry.Profile{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if p.ID == "" {
		p.ID = id
	}
	if p.ID != id {
		return registry.Profile{}, fmt.Errorf("identity service returned %s for %s: %w", p.ID, id, model.ErrNotFound)
	}
	d.mu.Lock()
	d.cache[id] = cached{profile: p, at: d.now()}
	d.mu.Unlock()
	return p, nil
}
