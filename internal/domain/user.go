package domain

import (
	"errors"
	"time"
)

// ErrAlreadyLinked is returned when linking a user to a second domain profile
// while one is already set.
var ErrAlreadyLinked = errors.New("user is already linked to another profile")

// User represents an identity record in the system
type User struct {
	ID             string     `json:"id" db:"id"`
	UserName       string     `json:"username" db:"username"`
	Email          string     `json:"email" db:"email"`
	PasswordHash   string     `json:"-" db:"password_hash"`
	FullName       string     `json:"full_name" db:"full_name"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	LastLoginAt    *time.Time `json:"last_login_at" db:"last_login_at"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	EmailConfirmed bool       `json:"email_confirmed" db:"email_confirmed"`

	// Lockout tracking. FailedLoginCount counts consecutive failed password
	// attempts; LockedUntil is set once the threshold is reached.
	FailedLoginCount int        `json:"-" db:"failed_login_count"`
	LockedUntil      *time.Time `json:"-" db:"locked_until"`

	// A user may be linked to exactly one of the three domain profiles.
	PatientID  *string `json:"patient_id" db:"patient_id"`
	DoctorID   *string `json:"doctor_id" db:"doctor_id"`
	HospitalID *string `json:"hospital_id" db:"hospital_id"`
}

// IsLockedOut reports whether the account is inside an active lockout window.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

func (u *User) linked() bool {
	return u.PatientID != nil || u.DoctorID != nil || u.HospitalID != nil
}

// LinkPatient links the user to a patient profile.
func (u *User) LinkPatient(patientID string) error {
	if u.linked() {
		return ErrAlreadyLinked
	}
	u.PatientID = &patientID
	return nil
}

// LinkDoctor links the user to a doctor profile.
func (u *User) LinkDoctor(doctorID string) error {
	if u.linked() {
		return ErrAlreadyLinked
	}
	u.DoctorID = &doctorID
	return nil
}

// LinkHospital links the user to a hospital profile.
func (u *User) LinkHospital(hospitalID string) error {
	if u.linked() {
		return ErrAlreadyLinked
	}
	u.HospitalID = &hospitalID
	return nil
}

// Deactivate marks the account inactive. Accounts are never hard-deleted
// outside of the registration rollback path.
func (u *User) Deactivate() {
	u.IsActive = false
}

// Activate marks the account active again.
func (u *User) Activate() {
	u.IsActive = true
}
