package clubauth

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/nyaruka/phonenumbers"
)

// UserRole is a capability scope the user may hold zero or more of.
type UserRole string

const (
	// RolePlayer is a playing member of the club
	RolePlayer UserRole = "player"
	// RoleCoach is a coach, possibly of several categories
	RoleCoach UserRole = "coach"
	// RoleAdmin is a club administrator
	RoleAdmin UserRole = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RolePlayer, RoleCoach, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}

// GetAllRoles returns all predefined roles in fallback order
func GetAllRoles() []UserRole {
	return []UserRole{
		RolePlayer,
		RoleCoach,
		RoleAdmin,
	}
}

// RoleAssignment is one granted role plus its role-scoped identifiers. A user
// may carry several assignments at once (e.g. a coach who is also a player).
type RoleAssignment struct {
	Role     UserRole `json:"role"`
	PlayerID int64    `json:"player_id,omitempty"`
	CoachID  int64    `json:"coach_id,omitempty"`
}

// Club is the user's club affiliation. At most one per user.
type Club struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UserDetails is the profile snapshot returned by the backend. It is replaced
// wholesale on every fetch, never merged field by field.
type UserDetails struct {
	ID            int64    `json:"id"`
	Username      string   `json:"username"`
	Name          string   `json:"name"`
	BirthDate     string   `json:"birth_date,omitempty"`
	Number        string   `json:"number,omitempty"`
	Email         string   `json:"email,omitempty"`
	Email2        string   `json:"email_2,omitempty"`
	Height        *float64 `json:"height,omitempty"`
	Weight        *float64 `json:"weight,omitempty"`
	Side          string   `json:"side,omitempty"`
	Position      string   `json:"position,omitempty"`
	PreferredRole UserRole `json:"preferred_role,omitempty"`
}

// DefaultPhoneRegion is the region used to parse phone numbers that are not
// in international format.
var DefaultPhoneRegion = "ES"

// Validate will run validation rules
func (d UserDetails) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Username, validation.Required),
		validation.Field(&d.Email, is.Email),
		validation.Field(&d.Email2, is.Email),
		validation.Field(&d.Number, validation.By(validatePhone)),
	)
}

func validatePhone(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	num, err := phonenumbers.Parse(raw, DefaultPhoneRegion)
	if err != nil {
		return err
	}
	if !phonenumbers.IsValidNumber(num) {
		return validation.NewError("validation_phone_invalid", "must be a valid phone number")
	}
	return nil
}

// NormalizePhone formats a phone number to E.164, leaving values it cannot
// parse untouched.
func NormalizePhone(raw string) string {
	if raw == "" {
		return raw
	}
	num, err := phonenumbers.Parse(raw, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// Profile is the /me/ payload: the user details plus role assignments,
// assigned category labels, and club affiliation.
type Profile struct {
	UserDetails
	Roles              []RoleAssignment `json:"roles"`
	AssignedCategories []string         `json:"assigned_categories"`
	Club               *Club            `json:"club,omitempty"`
}

// HeldRoles returns the distinct roles in the profile's assignments.
func (p *Profile) HeldRoles() []UserRole {
	if p == nil {
		return nil
	}
	seen := map[UserRole]struct{}{}
	roles := make([]UserRole, 0, len(p.Roles))
	for _, a := range p.Roles {
		if _, ok := seen[a.Role]; ok {
			continue
		}
		seen[a.Role] = struct{}{}
		roles = append(roles, a.Role)
	}
	return roles
}

// TokenPair is the credential exchange response.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// LoginRequest carries the credentials for the token exchange.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}
