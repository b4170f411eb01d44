package domain

import "time"

// RefreshToken represents a persisted refresh token row. Its lifecycle is
// tri-state: active, then either used (consumed during rotation) or revoked
// (explicit invalidation). Both terminal states are mutually exclusive.
// Rotation always inserts a new row; a row's token value is never mutated.
type RefreshToken struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	TokenValue  string     `json:"-" db:"token_value"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CreatedByIP string     `json:"created_by_ip" db:"created_by_ip"`
	UsedAt      *time.Time `json:"used_at" db:"used_at"`
	RevokedAt   *time.Time `json:"revoked_at" db:"revoked_at"`
	RevokedByIP *string    `json:"revoked_by_ip" db:"revoked_by_ip"`
}

// IsUsed reports whether the token was consumed during a rotation.
func (t *RefreshToken) IsUsed() bool {
	return t.UsedAt != nil
}

// IsRevoked reports whether the token was explicitly invalidated.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActive reports whether the token is still redeemable, ignoring expiry.
func (t *RefreshToken) IsActive() bool {
	return !t.IsUsed() && !t.IsRevoked()
}

// IsExpired reports whether the token is past its expiry, compared in UTC.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.UTC().After(t.ExpiresAt.UTC())
}

// Principal is the decoded claim set of a verified access token. Validity is
// purely a function of signature and expiry at verification time; nothing
// here is backed by storage.
type Principal struct {
	UserID     string    `json:"user_id"`
	UserName   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	IsActive   bool      `json:"is_active"`
	Roles      []string  `json:"roles"`
	TokenID    string    `json:"jti"`
	ExpiresAt  time.Time `json:"expires_at"`
	IssuedAt   time.Time `json:"issued_at"`
	PatientID  *string   `json:"patient_id,omitempty"`
	DoctorID   *string   `json:"doctor_id,omitempty"`
	HospitalID *string   `json:"hospital_id,omitempty"`
}

// HasRole reports whether the principal carries the given role claim.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
