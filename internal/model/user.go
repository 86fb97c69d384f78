package model

// Role controls which alerts a user is eligible for.
type Role string

const (
	RoleMember    Role = "member"
	RoleManager   Role = "manager"
	RoleExecutive Role = "executive"
	RoleAdmin     Role = "admin"
)

// Elevated reports whether the role sees every high-priority alert
// regardless of company assignment.
func (r Role) Elevated() bool {
	return r == RoleExecutive || r == RoleAdmin
}

// Channels holds per-user notification switches.
type Channels struct {
	Email bool `json:"email" yaml:"email"`
	InApp bool `json:"in_app" yaml:"in_app"`
}

// Any reports whether at least one channel is enabled.
func (c Channels) Any() bool {
	return c.Email || c.InApp
}

// User is an alert subscriber.
type User struct {
	ID                 string   `json:"id" yaml:"id"`
	Name               string   `json:"name" yaml:"name"`
	Email              string   `json:"email" yaml:"email"`
	Role               Role     `json:"role" yaml:"role"`
	AssignedCompanyIDs []string `json:"assigned_company_ids" yaml:"assigned_company_ids"`
	Channels           Channels `json:"channels" yaml:"channels"`
	PriorityThreshold  Priority `json:"priority_threshold" yaml:"priority_threshold"`
}

// AssignedTo reports whether the user follows any of the given companies.
func (u *User) AssignedTo(companyIDs []string) bool {
	for _, want := range companyIDs {
		for _, have := range u.AssignedCompanyIDs {
			if want == have {
				return true
			}
		}
	}
	return false
}
