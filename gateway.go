package clubauth

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/segmentio/ksuid"
)

const requestIDHeader = "X-Request-Id"

// Gateway wraps outbound HTTP calls with bearer-token injection, 401
// detection, single-flight refresh, and a single retry. Callers never handle
// token attachment or refresh themselves: they receive either a response
// reflecting the retried request, or an error after the session has already
// been invalidated. Non-auth failures (network, 5xx) pass through untouched.
type Gateway struct {
	state     *SessionState
	refresher Refresher
	client    HTTPDoer
	logger    Logger
	leeway    time.Duration
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayHTTPClient overrides the HTTP client requests are sent with.
func WithGatewayHTTPClient(client HTTPDoer) GatewayOption {
	return func(g *Gateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithGatewayLogger overrides the default logger.
func WithGatewayLogger(logger Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRefreshLeeway enables proactive refresh: when the access token is a JWT
// expiring within d, the gateway refreshes before sending instead of waiting
// for the 401. Opaque tokens are sent as-is.
func WithRefreshLeeway(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.leeway = d
	}
}

// NewGateway builds a Gateway over the given session and refresher.
func NewGateway(state *SessionState, refresher Refresher, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		state:     state,
		refresher: refresher,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Do sends req with the current access token attached. On a 401 it refreshes
// once and retries exactly once; a second 401 (or a rejected refresh token)
// forces a logout and surfaces ErrSessionExpired.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	reqID := ksuid.New().String()
	req.Header.Set(requestIDHeader, reqID)

	if err := ensureReplayable(req); err != nil {
		return nil, err
	}

	token := g.state.AccessToken()
	if g.leeway > 0 && tokenExpiresWithin(token, g.leeway) {
		if refreshed, err := g.refreshOrExpire(req, token); err == nil {
			token = refreshed
		} else if IsSessionExpired(err) {
			return nil, err
		}
		// A transient refresh failure falls through with the old token; the
		// request may still succeed, or hit the regular 401 path below.
	}

	resp, err := g.send(req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	g.logger.Debug("request %s got 401, attempting token refresh", reqID)

	if g.state.RefreshToken() == "" {
		g.state.Logout(req.Context())
		return nil, ErrSessionExpired
	}

	refreshed, err := g.refreshOrExpire(req, token)
	if err != nil {
		return nil, err
	}

	retry, err := g.send(req, refreshed)
	if err != nil {
		return nil, err
	}
	if retry.StatusCode == http.StatusUnauthorized {
		drain(retry)
		g.logger.Info("request %s unauthorized after refresh, forcing logout", reqID)
		g.state.Logout(req.Context())
		return nil, ErrSessionExpired
	}
	return retry, nil
}

// refreshOrExpire runs one refresh exchange. A rejected refresh token ends
// the session; transient failures propagate unchanged.
func (g *Gateway) refreshOrExpire(req *http.Request, staleToken string) (string, error) {
	refreshed, err := g.refresher.Refresh(req.Context(), staleToken)
	if err == nil {
		return refreshed, nil
	}
	if errors.Is(err, ErrRefreshRejected) || errors.Is(err, ErrNoRefreshToken) || IsSessionExpired(err) {
		g.state.Logout(req.Context())
		return "", ErrSessionExpired
	}
	return "", err
}

func (g *Gateway) send(req *http.Request, token string) (*http.Response, error) {
	attempt, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	if token != "" {
		attempt.Header.Set("Authorization", "Bearer "+token)
	}
	return g.client.Do(attempt)
}

// ensureReplayable buffers the body of requests that cannot otherwise be
// reissued after a refresh.
func ensureReplayable(req *http.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	buf, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to buffer request body for retry")
	}
	req.Body = io.NopCloser(bytes.NewReader(buf))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	return nil
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to replay request body")
		}
		clone.Body = body
	}
	return clone, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// tokenExpiresWithin peeks at the exp claim of a JWT access token without
// verifying its signature. Tokens that are not JWTs report false.
func tokenExpiresWithin(token string, leeway time.Duration) bool {
	if token == "" {
		return false
	}
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return time.Until(claims.ExpiresAt.Time) < leeway
}
