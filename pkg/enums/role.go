package enums

// Role is a subject role carried in access tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

var roles = []Role{RoleCustomer, RoleStaff, RoleManager, RoleAdmin}

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool { return member(r, roles) }

func ParseRole(value string) (Role, error) {
	return parse("role", value, roles)
}

// ParseRoles converts raw role names, dropping unknown entries.
func ParseRoles(values []string) []Role {
	out := make([]Role, 0, len(values))
	for _, value := range values {
		if role := Role(value); role.IsValid() {
			out = append(out, role)
		}
	}
	return out
}
