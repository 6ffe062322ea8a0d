package clubauth

// Destination is the landing screen a resolved role maps to.
type Destination string

const (
	DestinationPlayerHome Destination = "player-home"
	DestinationCoachHome  Destination = "coach-home"
	DestinationAdminHome  Destination = "admin-home"
)

// Resolution is the outcome of picking an active role.
type Resolution struct {
	Role        UserRole
	Destination Destination
}

// roleFallbackOrder is a fixed policy choice carried over from the product,
// independent of how the roles were granted.
var roleFallbackOrder = []UserRole{RolePlayer, RoleCoach, RoleAdmin}

// ResolveRole deterministically picks the active role from the set the user
// holds. The preferred role wins when held; otherwise the fixed fallback
// order applies. An empty set yields ErrNoRoleAssigned, the pending-approval
// outcome.
func ResolveRole(held []UserRole, preferred UserRole) (Resolution, error) {
	if len(held) == 0 {
		return Resolution{}, ErrNoRoleAssigned
	}

	holds := map[UserRole]struct{}{}
	for _, r := range held {
		holds[r] = struct{}{}
	}

	priority := make([]UserRole, 0, len(roleFallbackOrder)+1)
	if preferred.IsValid() {
		priority = append(priority, preferred)
	}
	for _, r := range roleFallbackOrder {
		if r == preferred {
			continue
		}
		priority = append(priority, r)
	}

	for _, r := range priority {
		if _, ok := holds[r]; ok {
			return Resolution{Role: r, Destination: destinationForRole(r)}, nil
		}
	}

	return Resolution{}, ErrNoRoleAssigned
}

// ResolveAssignments is ResolveRole over a list of role assignments.
func ResolveAssignments(assignments []RoleAssignment, preferred UserRole) (Resolution, error) {
	held := make([]UserRole, 0, len(assignments))
	for _, a := range assignments {
		held = append(held, a.Role)
	}
	return ResolveRole(held, preferred)
}

func destinationForRole(role UserRole) Destination {
	switch role {
	case RoleCoach:
		return DestinationCoachHome
	case RoleAdmin:
		return DestinationAdminHome
	default:
		return DestinationPlayerHome
	}
}
