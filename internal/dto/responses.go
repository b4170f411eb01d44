package dto

import "time"

// APIResponse is the envelope every endpoint returns: a success flag, a
// human-readable message, optional payload and a list of granular errors.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

// OK builds a success envelope.
func OK(data interface{}, message string) APIResponse {
	return APIResponse{Success: true, Message: message, Data: data}
}

// Fail builds a failure envelope.
func Fail(message string, errors ...string) APIResponse {
	return APIResponse{Success: false, Message: message, Errors: errors}
}

// AuthResponse is the token bundle returned by register, login and refresh.
type AuthResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         UserInfo  `json:"user"`
}

// UserInfo is the identity projection embedded in auth responses and
// returned by the user-info endpoint.
type UserInfo struct {
	ID         string   `json:"id"`
	UserName   string   `json:"username"`
	Email      string   `json:"email"`
	FullName   string   `json:"full_name"`
	Roles      []string `json:"roles"`
	PatientID  *string  `json:"patient_id,omitempty"`
	DoctorID   *string  `json:"doctor_id,omitempty"`
	HospitalID *string  `json:"hospital_id,omitempty"`
}
