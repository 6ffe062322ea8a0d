package clubauth_test

import (
	"testing"

	clubauth "github.com/clubkit/go-clubauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRole(t *testing.T) {
	tests := []struct {
		name        string
		held        []clubauth.UserRole
		preferred   clubauth.UserRole
		wantRole    clubauth.UserRole
		wantDest    clubauth.Destination
		wantNoRole  bool
	}{
		{
			name:      "preferred role held",
			held:      []clubauth.UserRole{clubauth.RolePlayer, clubauth.RoleCoach},
			preferred: clubauth.RoleCoach,
			wantRole:  clubauth.RoleCoach,
			wantDest:  clubauth.DestinationCoachHome,
		},
		{
			name:      "preferred role not held falls back",
			held:      []clubauth.UserRole{clubauth.RolePlayer},
			preferred: clubauth.RoleAdmin,
			wantRole:  clubauth.RolePlayer,
			wantDest:  clubauth.DestinationPlayerHome,
		},
		{
			name:      "no preference uses fallback order",
			held:      []clubauth.UserRole{clubauth.RoleAdmin, clubauth.RoleCoach},
			preferred: "",
			wantRole:  clubauth.RoleCoach,
			wantDest:  clubauth.DestinationCoachHome,
		},
		{
			name:      "admin only",
			held:      []clubauth.UserRole{clubauth.RoleAdmin},
			preferred: "",
			wantRole:  clubauth.RoleAdmin,
			wantDest:  clubauth.DestinationAdminHome,
		},
		{
			name:       "empty role set is the pending outcome",
			held:       nil,
			preferred:  clubauth.RoleCoach,
			wantNoRole: true,
		},
		{
			name:      "invalid preferred role ignored",
			held:      []clubauth.UserRole{clubauth.RoleCoach},
			preferred: "referee",
			wantRole:  clubauth.RoleCoach,
			wantDest:  clubauth.DestinationCoachHome,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := clubauth.ResolveRole(tt.held, tt.preferred)
			if tt.wantNoRole {
				require.Error(t, err)
				assert.True(t, clubauth.IsNoRoleAssigned(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, res.Role)
			assert.Equal(t, tt.wantDest, res.Destination)
		})
	}
}

func TestResolveAssignments(t *testing.T) {
	assignments := []clubauth.RoleAssignment{
		{Role: clubauth.RolePlayer, PlayerID: 7},
		{Role: clubauth.RoleCoach, CoachID: 3},
	}

	res, err := clubauth.ResolveAssignments(assignments, clubauth.RoleCoach)
	require.NoError(t, err)
	assert.Equal(t, clubauth.RoleCoach, res.Role)

	_, err = clubauth.ResolveAssignments(nil, clubauth.RolePlayer)
	assert.True(t, clubauth.IsNoRoleAssigned(err))
}

func TestParseRole(t *testing.T) {
	role, ok := clubauth.ParseRole("coach")
	assert.True(t, ok)
	assert.Equal(t, clubauth.RoleCoach, role)

	_, ok = clubauth.ParseRole("referee")
	assert.False(t, ok)
}
