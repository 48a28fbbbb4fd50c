package enums

import "slices"

// StaffRole gates the back-office routes. Admin satisfies every staff check.
type StaffRole string

const (
	StaffRoleStaff StaffRole = "staff"
	StaffRoleAdmin StaffRole = "admin"
)

var validStaffRoles = []StaffRole{StaffRoleStaff, StaffRoleAdmin}

func (r StaffRole) IsValid() bool { return slices.Contains(validStaffRoles, r) }

func ParseStaffRole(value string) (StaffRole, error) {
	return parse("staff role", value, validStaffRoles)
}
