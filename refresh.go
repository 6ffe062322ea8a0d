package clubauth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

// RefreshCoordinator exchanges the stored refresh token for a new access
// token. Concurrent refresh attempts collapse into a single exchange: reusing
// a refresh token can invalidate it under backend rotation policies, so the
// coalescing is a correctness requirement, not an optimization.
type RefreshCoordinator struct {
	state    *SessionState
	endpoint string
	client   HTTPDoer
	logger   Logger
	sink     ActivitySink
	group    singleflight.Group
}

var _ Refresher = (*RefreshCoordinator)(nil)

// RefreshOption customizes a RefreshCoordinator.
type RefreshOption func(*RefreshCoordinator)

// WithRefreshHTTPClient overrides the HTTP client used for the exchange.
func WithRefreshHTTPClient(client HTTPDoer) RefreshOption {
	return func(c *RefreshCoordinator) {
		if client != nil {
			c.client = client
		}
	}
}

// WithRefreshLogger overrides the default logger.
func WithRefreshLogger(logger Logger) RefreshOption {
	return func(c *RefreshCoordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRefreshActivitySink sets the ActivitySink used for refresh events.
func WithRefreshActivitySink(sink ActivitySink) RefreshOption {
	return func(c *RefreshCoordinator) {
		c.sink = normalizeActivitySink(sink)
	}
}

// NewRefreshCoordinator builds a coordinator posting to the given absolute
// refresh endpoint.
func NewRefreshCoordinator(state *SessionState, endpoint string, opts ...RefreshOption) *RefreshCoordinator {
	c := &RefreshCoordinator{
		state:    state,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   defLogger{},
		sink:     noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Refresh implements Refresher. staleToken is the access token the caller
// last used; when the session already carries a newer one the exchange is
// skipped and that token is returned, so N callers racing on the same 401
// produce exactly one exchange.
func (c *RefreshCoordinator) Refresh(ctx context.Context, staleToken string) (string, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		if current := c.state.AccessToken(); current != "" && current != staleToken {
			return current, nil
		}
		return c.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *RefreshCoordinator) exchange(ctx context.Context) (string, error) {
	refresh := c.state.RefreshToken()
	if refresh == "" {
		return "", ErrNoRefreshToken
	}
	epoch := c.state.Epoch()

	payload, err := json.Marshal(map[string]string{"refresh": refresh})
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to encode refresh payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to build refresh request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Transient transport failure: not a rejection, the caller decides.
		return "", errors.Wrap(err, errors.CategoryOperation, "refresh exchange failed")
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Info("refresh token rejected with status %d", resp.StatusCode)
		c.emitFailure(ctx, resp.StatusCode)
		return "", ErrRefreshRejected
	}

	var body struct {
		Access string `json:"access"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to decode refresh response")
	}
	if body.Access == "" {
		c.emitFailure(ctx, resp.StatusCode)
		return "", ErrRefreshRejected
	}

	if !c.state.ApplyAccessToken(ctx, body.Access, epoch) {
		// Session was logged out (or replaced) while the exchange was in
		// flight; the stale token must not resurrect it.
		return "", ErrSessionExpired
	}

	c.emit(ctx, ActivityEventTokenRefreshed, nil)
	return body.Access, nil
}

func (c *RefreshCoordinator) emitFailure(ctx context.Context, status int) {
	c.emit(ctx, ActivityEventRefreshFailure, map[string]any{"status": status})
}

func (c *RefreshCoordinator) emit(ctx context.Context, eventType ActivityEventType, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if d := c.state.Details(); d != nil {
		event.UserID = d.Username
	}
	if err := normalizeActivitySink(c.sink).Record(ctx, event); err != nil {
		c.logger.Warn("activity sink record error: %v", err)
	}
}
