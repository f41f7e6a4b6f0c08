package enums

// StaffRole maps to the staff_role_enum enum in Postgres.
type StaffRole string

const (
	StaffRoleAdmin      StaffRole = "admin"
	StaffRoleAccountant StaffRole = "accountant"
	StaffRoleAuditor    StaffRole = "auditor"
)

var validStaffRoles = []StaffRole{
	StaffRoleAdmin,
	StaffRoleAccountant,
	StaffRoleAuditor,
}

// IsValid reports whether the role is one of the known staff roles.
func (r StaffRole) IsValid() bool {
	for _, candidate := range validStaffRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanPost reports whether the role may create or mutate ledger records.
// Auditors get read-only access.
func (r StaffRole) CanPost() bool {
	return r == StaffRoleAdmin || r == StaffRoleAccountant
}
