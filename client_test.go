package clubauth_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	clubauth "github.com/clubkit/go-clubauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientBackend is a fake of the three endpoints SignIn and Restore touch.
type clientBackend struct {
	profile   *clubauth.Profile
	password  string
	loginHits int
	meHits    int
}

func (b *clientBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/token/", func(w http.ResponseWriter, r *http.Request) {
		b.loginHits++
		var payload struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Password != b.password {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"No active account found with the given credentials"}`)
			return
		}
		io.WriteString(w, `{"access":"access-1","refresh":"refresh-1"}`)
	})

	mux.HandleFunc("/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"access":"access-2"}`)
	})

	mux.HandleFunc("/me/", func(w http.ResponseWriter, r *http.Request) {
		b.meHits++
		auth := r.Header.Get("Authorization")
		if auth != "Bearer access-1" && auth != "Bearer access-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(b.profile)
	})

	return mux
}

func buildClient(t *testing.T, backend *clientBackend, store clubauth.Store) (*clubauth.SessionState, *clubauth.Client) {
	t.Helper()

	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	cfg := &clubauth.Config{
		API: clubauth.APIConfig{
			BaseURL:     srv.URL,
			TokenPath:   "/token/",
			RefreshPath: "/token/refresh/",
			ProfilePath: "/me/",
			Timeout:     5 * time.Second,
		},
	}

	state := clubauth.NewSessionState(store)
	refresher := clubauth.NewRefreshCoordinator(state, cfg.API.RefreshURL(),
		clubauth.WithRefreshHTTPClient(srv.Client()),
	)
	gateway := clubauth.NewGateway(state, refresher, clubauth.WithGatewayHTTPClient(srv.Client()))
	client := clubauth.NewClient(cfg, state, gateway, clubauth.WithClientHTTPClient(srv.Client()))
	return state, client
}

func TestClientSignIn(t *testing.T) {
	backend := &clientBackend{profile: testProfile(), password: "secret"}
	state, client := buildClient(t, backend, clubauth.NewMemoryStore())

	res, err := client.SignIn(context.Background(), "maria", "secret")
	require.NoError(t, err)

	assert.Equal(t, clubauth.RoleCoach, res.Role, "preferred role wins")
	assert.Equal(t, clubauth.DestinationCoachHome, res.Destination)

	assert.Equal(t, clubauth.LoginStatusLoggedIn, state.Status())
	assert.Equal(t, "access-1", state.AccessToken())
	assert.Equal(t, "refresh-1", state.RefreshToken())
	assert.Equal(t, clubauth.RoleCoach, state.CurrentRole())
	require.NotNil(t, state.Details())
	assert.Equal(t, "maria", state.Details().Username)
}

func TestClientSignInBadCredentials(t *testing.T) {
	backend := &clientBackend{profile: testProfile(), password: "secret"}
	state, client := buildClient(t, backend, clubauth.NewMemoryStore())

	_, err := client.SignIn(context.Background(), "maria", "wrong")
	require.Error(t, err)
	assert.True(t, clubauth.IsCredentialError(err))
	assert.NotEqual(t, clubauth.LoginStatusLoggedIn, state.Status())
}

func TestClientSignInValidation(t *testing.T) {
	backend := &clientBackend{profile: testProfile(), password: "secret"}
	_, client := buildClient(t, backend, clubauth.NewMemoryStore())

	_, err := client.SignIn(context.Background(), "", "secret")
	require.Error(t, err)
	assert.Equal(t, 0, backend.loginHits, "invalid payload never reaches the backend")
}

func TestClientSignInPendingApproval(t *testing.T) {
	profile := testProfile()
	profile.Roles = nil
	backend := &clientBackend{profile: profile, password: "secret"}
	state, client := buildClient(t, backend, clubauth.NewMemoryStore())

	res, err := client.SignIn(context.Background(), "maria", "secret")
	require.Error(t, err)
	assert.True(t, clubauth.IsNoRoleAssigned(err))
	assert.Nil(t, res)

	// The session is established even though no role is assigned yet; the
	// caller moves to the pending-approval screen, not back to login.
	assert.Equal(t, clubauth.LoginStatusLoggedIn, state.Status())
	assert.Empty(t, state.CurrentRole())
}

func TestClientRestore(t *testing.T) {
	t.Run("nothing persisted", func(t *testing.T) {
		backend := &clientBackend{profile: testProfile(), password: "secret"}
		state, client := buildClient(t, backend, clubauth.NewMemoryStore())

		res, err := client.Restore(context.Background())
		require.NoError(t, err)
		assert.Nil(t, res)
		assert.Equal(t, clubauth.LoginStatusLoggedOut, state.Status())
		assert.Equal(t, 0, backend.meHits)
	})

	t.Run("valid persisted session", func(t *testing.T) {
		store := clubauth.NewMemoryStore()
		require.NoError(t, store.Save(context.Background(), clubauth.StoreKeyAccess, "access-1"))
		require.NoError(t, store.Save(context.Background(), clubauth.StoreKeyRefresh, "refresh-1"))

		backend := &clientBackend{profile: testProfile(), password: "secret"}
		state, client := buildClient(t, backend, store)

		res, err := client.Restore(context.Background())
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, clubauth.RoleCoach, res.Role)
		assert.Equal(t, clubauth.LoginStatusLoggedIn, state.Status())
	})

	t.Run("expired access token refreshes through the gateway", func(t *testing.T) {
		store := clubauth.NewMemoryStore()
		require.NoError(t, store.Save(context.Background(), clubauth.StoreKeyAccess, "stale-access"))
		require.NoError(t, store.Save(context.Background(), clubauth.StoreKeyRefresh, "refresh-1"))

		backend := &clientBackend{profile: testProfile(), password: "secret"}
		state, client := buildClient(t, backend, store)

		res, err := client.Restore(context.Background())
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, clubauth.LoginStatusLoggedIn, state.Status())
		assert.Equal(t, "access-2", state.AccessToken())
	})
}

func TestClientFetchProfileUpdatesState(t *testing.T) {
	backend := &clientBackend{profile: testProfile(), password: "secret"}
	state, client := buildClient(t, backend, clubauth.NewMemoryStore())

	_, err := client.SignIn(context.Background(), "maria", "secret")
	require.NoError(t, err)

	backend.profile = approvedProfile()
	profile, err := client.FetchProfile(context.Background())
	require.NoError(t, err)
	require.Len(t, profile.Roles, 1)
	assert.Len(t, state.Roles(), 1)
}
