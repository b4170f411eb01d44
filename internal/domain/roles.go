package domain

import "strings"

// The closed set of roles a user may hold. Role membership drives the
// authorization policies applied downstream.
const (
	RolePatient       = "Patient"
	RoleDoctor        = "Doctor"
	RoleHospitalAdmin = "HospitalAdmin"
	RoleSystemAdmin   = "SystemAdmin"
)

// AllRoles returns every valid role name.
func AllRoles() []string {
	return []string{RolePatient, RoleDoctor, RoleHospitalAdmin, RoleSystemAdmin}
}

// IsValidRole reports whether role names a member of the closed role set.
// The comparison is case-insensitive, matching registration input handling.
func IsValidRole(role string) bool {
	for _, r := range AllRoles() {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// CanonicalRole maps a case-insensitive role name to its canonical spelling.
// Returns "" when the role is not valid.
func CanonicalRole(role string) string {
	for _, r := range AllRoles() {
		if strings.EqualFold(r, role) {
			return r
		}
	}
	return ""
}
