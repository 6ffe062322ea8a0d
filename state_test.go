package clubauth_test

import (
	"context"
	"testing"

	clubauth "github.com/clubkit/go-clubauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() *clubauth.Profile {
	return &clubauth.Profile{
		UserDetails: clubauth.UserDetails{
			ID:            12,
			Username:      "maria",
			Name:          "Maria Lopez",
			Email:         "maria@example.com",
			PreferredRole: clubauth.RoleCoach,
		},
		Roles: []clubauth.RoleAssignment{
			{Role: clubauth.RolePlayer, PlayerID: 7},
			{Role: clubauth.RoleCoach, CoachID: 3},
		},
		AssignedCategories: []string{"U16", "U18"},
		Club:               &clubauth.Club{ID: 1, Name: "CD Ribera"},
	}
}

func TestSessionStateInitialStatusUnknown(t *testing.T) {
	state := clubauth.NewSessionState(clubauth.NewMemoryStore())
	assert.Equal(t, clubauth.LoginStatusUnknown, state.Status())
}

func TestSessionStateHydrate(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store resolves to logged out", func(t *testing.T) {
		state := clubauth.NewSessionState(clubauth.NewMemoryStore())
		state.Hydrate(ctx)
		assert.Equal(t, clubauth.LoginStatusLoggedOut, state.Status())
	})

	t.Run("persisted tokens stay unknown until verified", func(t *testing.T) {
		store := clubauth.NewMemoryStore()
		require.NoError(t, store.Save(ctx, clubauth.StoreKeyAccess, "acc-1"))
		require.NoError(t, store.Save(ctx, clubauth.StoreKeyRefresh, "ref-1"))

		state := clubauth.NewSessionState(store)
		state.Hydrate(ctx)

		assert.Equal(t, clubauth.LoginStatusUnknown, state.Status())
		assert.Equal(t, "acc-1", state.AccessToken())
		assert.Equal(t, "ref-1", state.RefreshToken())
	})

	t.Run("access token alone is not a session", func(t *testing.T) {
		store := clubauth.NewMemoryStore()
		require.NoError(t, store.Save(ctx, clubauth.StoreKeyAccess, "acc-1"))

		state := clubauth.NewSessionState(store)
		state.Hydrate(ctx)
		assert.Equal(t, clubauth.LoginStatusLoggedOut, state.Status())
	})

	t.Run("hydrate after resolution is a no-op", func(t *testing.T) {
		store := clubauth.NewMemoryStore()
		state := clubauth.NewSessionState(store)
		state.Hydrate(ctx)
		require.NoError(t, store.Save(ctx, clubauth.StoreKeyAccess, "acc-1"))
		require.NoError(t, store.Save(ctx, clubauth.StoreKeyRefresh, "ref-1"))

		state.Hydrate(ctx)
		assert.Equal(t, clubauth.LoginStatusLoggedOut, state.Status())
	})
}

func TestSessionStateLogin(t *testing.T) {
	ctx := context.Background()
	store := clubauth.NewMemoryStore()
	state := clubauth.NewSessionState(store)

	require.NoError(t, state.Login(ctx, "acc-1", "ref-1", testProfile()))

	assert.Equal(t, clubauth.LoginStatusLoggedIn, state.Status())
	assert.Equal(t, "acc-1", state.AccessToken())
	assert.Equal(t, "ref-1", state.RefreshToken())
	require.NotNil(t, state.Details())
	assert.Equal(t, "maria", state.Details().Username)
	assert.Len(t, state.Roles(), 2)

	saved, ok := store.Load(ctx, clubauth.StoreKeyAccess)
	require.True(t, ok)
	assert.Equal(t, "acc-1", saved)
	_, ok = store.Load(ctx, clubauth.StoreKeyRefresh)
	assert.True(t, ok)
}

func TestSessionStateLoginRequiresBothTokens(t *testing.T) {
	ctx := context.Background()
	state := clubauth.NewSessionState(clubauth.NewMemoryStore())

	assert.Error(t, state.Login(ctx, "acc-1", "", testProfile()))
	assert.Error(t, state.Login(ctx, "", "ref-1", testProfile()))
	assert.NotEqual(t, clubauth.LoginStatusLoggedIn, state.Status())
}

func TestSessionStateLogout(t *testing.T) {
	ctx := context.Background()
	store := clubauth.NewMemoryStore()

	logouts := 0
	sink := clubauth.ActivitySinkFunc(func(_ context.Context, evt clubauth.ActivityEvent) error {
		if evt.EventType == clubauth.ActivityEventLogout {
			logouts++
		}
		return nil
	})

	state := clubauth.NewSessionState(store, clubauth.WithStateActivitySink(sink))
	require.NoError(t, state.Login(ctx, "acc-1", "ref-1", testProfile()))

	state.Logout(ctx)
	state.Logout(ctx) // idempotent

	assert.Equal(t, clubauth.LoginStatusLoggedOut, state.Status())
	assert.Empty(t, state.AccessToken())
	assert.Empty(t, state.RefreshToken())
	assert.Nil(t, state.Details())
	assert.Empty(t, state.Roles())
	assert.Equal(t, 1, logouts)

	_, ok := store.Load(ctx, clubauth.StoreKeyAccess)
	assert.False(t, ok)
	_, ok = store.Load(ctx, clubauth.StoreKeyRefresh)
	assert.False(t, ok)

	// A subsequent cold start is definitely logged out, not unknown.
	fresh := clubauth.NewSessionState(store)
	fresh.Hydrate(ctx)
	assert.Equal(t, clubauth.LoginStatusLoggedOut, fresh.Status())
}

func TestSessionStateLogoutWithoutSession(t *testing.T) {
	state := clubauth.NewSessionState(clubauth.NewMemoryStore())
	state.Logout(context.Background())
	assert.Equal(t, clubauth.LoginStatusLoggedOut, state.Status())
}

func TestSessionStateRoleSetters(t *testing.T) {
	ctx := context.Background()
	state := clubauth.NewSessionState(clubauth.NewMemoryStore())
	require.NoError(t, state.Login(ctx, "acc-1", "ref-1", testProfile()))

	state.SetCurrentRole(ctx, clubauth.RoleCoach)
	assert.Equal(t, clubauth.RoleCoach, state.CurrentRole())

	// Switching the active role does not shrink the role set.
	state.SetCurrentRole(ctx, clubauth.RolePlayer)
	assert.Len(t, state.Roles(), 2)

	// Wholesale replacement that drops the active role clears the pointer.
	state.SetRoles(ctx, []clubauth.RoleAssignment{{Role: clubauth.RoleCoach, CoachID: 3}})
	assert.Empty(t, state.CurrentRole())

	// An empty role set is a valid state, not an error.
	state.SetRoles(ctx, nil)
	assert.Empty(t, state.Roles())

	state.SetCategories(ctx, nil)
	assert.Empty(t, state.Snapshot().Categories)
}

func TestSessionStateApplyAccessToken(t *testing.T) {
	ctx := context.Background()
	state := clubauth.NewSessionState(clubauth.NewMemoryStore())
	require.NoError(t, state.Login(ctx, "acc-1", "ref-1", testProfile()))

	epoch := state.Epoch()
	assert.True(t, state.ApplyAccessToken(ctx, "acc-2", epoch))
	assert.Equal(t, "acc-2", state.AccessToken())

	t.Run("stale epoch is rejected", func(t *testing.T) {
		stale := state.Epoch()
		state.Logout(ctx)
		assert.False(t, state.ApplyAccessToken(ctx, "acc-3", stale))
		assert.Empty(t, state.AccessToken())
		assert.Equal(t, clubauth.LoginStatusLoggedOut, state.Status())
	})
}

func TestSessionStateSubscribe(t *testing.T) {
	ctx := context.Background()
	state := clubauth.NewSessionState(clubauth.NewMemoryStore())

	var seen []clubauth.LoginStatus
	unsubscribe := state.Subscribe(func(snap clubauth.SessionSnapshot) {
		seen = append(seen, snap.Status)
	})

	require.NoError(t, state.Login(ctx, "acc-1", "ref-1", testProfile()))
	state.Logout(ctx)

	require.Len(t, seen, 2)
	assert.Equal(t, clubauth.LoginStatusLoggedIn, seen[0])
	assert.Equal(t, clubauth.LoginStatusLoggedOut, seen[1])

	unsubscribe()
	unsubscribe() // safe to call twice
	require.NoError(t, state.Login(ctx, "acc-2", "ref-2", testProfile()))
	assert.Len(t, seen, 2)
}

func TestSessionStateProfileSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	store := clubauth.NewMemoryStore()

	state := clubauth.NewSessionState(store)
	require.NoError(t, state.Login(ctx, "acc-1", "ref-1", testProfile()))

	// A fresh process sees the cached profile immediately, still unknown.
	fresh := clubauth.NewSessionState(store)
	fresh.Hydrate(ctx)
	assert.Equal(t, clubauth.LoginStatusUnknown, fresh.Status())
	require.NotNil(t, fresh.Details())
	assert.Equal(t, "maria", fresh.Details().Username)
}
