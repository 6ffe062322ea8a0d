package clubauth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
)

// Client drives the login, restore, and profile-refresh flows against the
// backend. Authenticated calls go through the Gateway; the credential
// exchange itself runs unauthenticated.
type Client struct {
	cfg     *Config
	state   *SessionState
	gateway *Gateway
	http    HTTPDoer
	logger  Logger
	sink    ActivitySink
}

var _ ProfileFetcher = (*Client)(nil)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClientHTTPClient overrides the HTTP client for unauthenticated calls.
func WithClientHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithClientLogger overrides the default logger.
func WithClientLogger(logger Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClientActivitySink sets the ActivitySink used for login events.
func WithClientActivitySink(sink ActivitySink) ClientOption {
	return func(c *Client) {
		c.sink = normalizeActivitySink(sink)
	}
}

// NewClient wires a Client over the session state and gateway.
func NewClient(cfg *Config, state *SessionState, gateway *Gateway, opts ...ClientOption) *Client {
	c := &Client{
		cfg:     cfg,
		state:   state,
		gateway: gateway,
		http:    &http.Client{Timeout: cfg.API.Timeout},
		logger:  defLogger{},
		sink:    noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// SignIn exchanges credentials for a token pair, fetches the profile, and
// installs the whole session. It returns the resolved role, or
// ErrNoRoleAssigned when the account is still awaiting approval (the session
// is logged in either way).
func (c *Client) SignIn(ctx context.Context, username, password string) (*Resolution, error) {
	payload := LoginRequest{Username: username, Password: password}
	if err := payload.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid login payload")
	}

	pair, err := c.exchangeCredentials(ctx, payload)
	if err != nil {
		c.emitLoginFailure(ctx, username, err)
		return nil, err
	}

	profile, err := c.fetchProfileWithToken(ctx, pair.Access)
	if err != nil {
		c.emitLoginFailure(ctx, username, err)
		return nil, err
	}

	if err := c.state.Login(ctx, pair.Access, pair.Refresh, profile); err != nil {
		return nil, err
	}

	return c.resolveAndSelect(ctx, profile)
}

// Restore revives a persisted session at cold start: it hydrates the stored
// tokens, verifies them against the profile endpoint (refreshing through the
// gateway when needed), and resolves the active role. With nothing persisted
// it returns (nil, nil) and the session is definitely logged out.
func (c *Client) Restore(ctx context.Context) (*Resolution, error) {
	c.state.Hydrate(ctx)
	if c.state.Status() == LoginStatusLoggedOut {
		return nil, nil
	}

	profile, err := c.FetchProfile(ctx)
	if err != nil {
		// A dead session was already logged out by the gateway; transient
		// failures leave the status unknown for a later retry.
		return nil, err
	}

	if err := c.state.Login(ctx, c.state.AccessToken(), c.state.RefreshToken(), profile); err != nil {
		return nil, err
	}

	return c.resolveAndSelect(ctx, profile)
}

// FetchProfile retrieves /me/ through the gateway and replaces the session's
// profile fields wholesale.
func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.API.ProfileURL(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to build profile request")
	}

	resp, err := c.gateway.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, errors.New("profile fetch failed", errors.CategoryOperation).
			WithMetadata(map[string]any{"status": resp.StatusCode})
	}

	profile := new(Profile)
	if err := json.NewDecoder(resp.Body).Decode(profile); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to decode profile response")
	}

	c.state.ApplyProfile(ctx, profile)
	return profile, nil
}

func (c *Client) exchangeCredentials(ctx context.Context, payload LoginRequest) (*TokenPair, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to encode login payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.API.TokenURL(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to build login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "login exchange failed")
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	// Any non-2xx from the token endpoint means bad credentials.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ErrInvalidCredentials
	}

	pair := new(TokenPair)
	if err := json.NewDecoder(resp.Body).Decode(pair); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to decode login response")
	}
	if pair.Access == "" || pair.Refresh == "" {
		return nil, errors.New("login response missing tokens", errors.CategoryInternal)
	}
	return pair, nil
}

// fetchProfileWithToken runs the first /me/ of a login with an explicit
// bearer token, before the session state carries it.
func (c *Client) fetchProfileWithToken(ctx context.Context, access string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.API.ProfileURL(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to build profile request")
	}
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "profile fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, errors.New("profile fetch failed", errors.CategoryOperation).
			WithMetadata(map[string]any{"status": resp.StatusCode})
	}

	profile := new(Profile)
	if err := json.NewDecoder(resp.Body).Decode(profile); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to decode profile response")
	}
	return profile, nil
}

func (c *Client) resolveAndSelect(ctx context.Context, profile *Profile) (*Resolution, error) {
	res, err := ResolveAssignments(profile.Roles, profile.PreferredRole)
	if err != nil {
		return nil, err
	}
	c.state.SetCurrentRole(ctx, res.Role)
	return &res, nil
}

func (c *Client) emitLoginFailure(ctx context.Context, username string, cause error) {
	event := ActivityEvent{
		EventType:  ActivityEventLoginFailure,
		UserID:     username,
		Metadata:   map[string]any{"error": cause.Error()},
		OccurredAt: time.Now(),
	}
	if err := normalizeActivitySink(c.sink).Record(ctx, event); err != nil {
		c.logger.Warn("activity sink record error: %v", err)
	}
}
