package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/healthlink/healthlink-api/internal/config"
	"github.com/healthlink/healthlink-api/internal/domain"
)

// ErrInvalidToken is the single failure returned by ValidateToken. Callers
// must treat "no principal" the same regardless of whether the cause was
// expiry, a bad signature or malformed input.
var ErrInvalidToken = errors.New("invalid token")

// refreshTokenBytes is the entropy of an opaque refresh token value.
const refreshTokenBytes = 64

// minSecretBytes is the minimum HS256 key length accepted at construction.
const minSecretBytes = 16

// JWTManager issues and verifies signed access tokens. It holds only the
// immutable signing configuration; verification is stateless and
// side-effect-free so it can run on every request without contention.
type JWTManager struct {
	secret            []byte
	issuer            string
	audience          string
	accessTokenExpiry time.Duration
}

// NewJWTManager validates the signing configuration eagerly and returns a
// manager bound to it. An undersized secret, a missing issuer/audience or a
// non-positive lifetime fails here rather than on first use.
func NewJWTManager(cfg config.JWTConfig) (*JWTManager, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("jwt issuer is required")
	}
	if cfg.Audience == "" {
		return nil, fmt.Errorf("jwt audience is required")
	}
	if cfg.AccessTokenExpiry.Duration <= 0 {
		return nil, fmt.Errorf("access token expiry must be greater than zero")
	}

	return &JWTManager{
		secret:            []byte(cfg.Secret),
		issuer:            cfg.Issuer,
		audience:          cfg.Audience,
		accessTokenExpiry: cfg.AccessTokenExpiry.Duration,
	}, nil
}

// GenerateAccessToken issues a signed access token for the user. A principal
// must carry at least one role. Each call embeds a fresh jti, so two tokens
// issued for the same user at the same instant are never byte-identical.
func (j *JWTManager) GenerateAccessToken(user *domain.User, roles []string) (string, error) {
	if user == nil {
		return "", fmt.Errorf("user is required")
	}
	if len(roles) == 0 {
		return "", fmt.Errorf("user must have at least one role")
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"username": user.UserName,
		"email":    user.Email,
		"fullName": user.FullName,
		"isActive": user.IsActive,
		"roles":    roles,
		"jti":      uuid.New().String(),
		"iss":      j.issuer,
		"aud":      j.audience,
		"iat":      now.Unix(),
		"exp":      now.Add(j.accessTokenExpiry).Unix(),
	}

	if user.PatientID != nil {
		claims["patientId"] = *user.PatientID
	}
	if user.DoctorID != nil {
		claims["doctorId"] = *user.DoctorID
	}
	if user.HospitalID != nil {
		claims["hospitalId"] = *user.HospitalID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// GenerateRefreshToken produces an opaque, URL-safe random string with 512
// bits of entropy from a cryptographically secure source. Refresh tokens
// carry no embedded structure; callers hold them as credentials.
func (j *JWTManager) GenerateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ValidateToken checks signature, signing method, issuer, audience and
// expiry (zero clock-skew tolerance) and returns the decoded principal.
// Any failure yields ErrInvalidToken.
func (j *JWTManager) ValidateToken(tokenString string) (*domain.Principal, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, j.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(j.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	principal, err := principalFromClaims(claims)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return principal, nil
}

// ExtractUserID recovers the subject claim from a signed token without
// validating its lifetime. The refresh flow uses this to identify the caller
// from an access token that has already expired. The signature is still
// verified; false is returned for anything malformed or forged.
func (j *JWTManager) ExtractUserID(tokenString string) (string, bool) {
	if tokenString == "" {
		return "", false
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.Parse(tokenString, j.keyFunc)
	if err != nil {
		return "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", false
	}
	return sub, true
}

// ExtractExpiry reads the expiry timestamp from a token without verifying
// it. Returns false on malformed input, never an error.
func (j *JWTManager) ExtractExpiry(tokenString string) (time.Time, bool) {
	if tokenString == "" {
		return time.Time{}, false
	}

	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// AccessTokenExpiry returns the configured access token lifetime.
func (j *JWTManager) AccessTokenExpiry() time.Duration {
	return j.accessTokenExpiry
}

func (j *JWTManager) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return j.secret, nil
}

func principalFromClaims(claims jwt.MapClaims) (*domain.Principal, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("missing sub claim")
	}

	username, _ := claims["username"].(string)
	email, _ := claims["email"].(string)
	fullName, _ := claims["fullName"].(string)
	isActive, _ := claims["isActive"].(bool)
	jti, _ := claims["jti"].(string)

	rawRoles, ok := claims["roles"].([]interface{})
	if !ok || len(rawRoles) == 0 {
		return nil, fmt.Errorf("missing roles claim")
	}
	roles := make([]string, 0, len(rawRoles))
	for _, r := range rawRoles {
		role, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf("malformed role claim")
		}
		roles = append(roles, role)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("missing exp claim")
	}
	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, fmt.Errorf("missing iat claim")
	}

	principal := &domain.Principal{
		UserID:    sub,
		UserName:  username,
		Email:     email,
		FullName:  fullName,
		IsActive:  isActive,
		Roles:     roles,
		TokenID:   jti,
		ExpiresAt: exp.Time,
		IssuedAt:  iat.Time,
	}

	if v, ok := claims["patientId"].(string); ok {
		principal.PatientID = &v
	}
	if v, ok := claims["doctorId"].(string); ok {
		principal.DoctorID = &v
	}
	if v, ok := claims["hospitalId"].(string); ok {
		principal.HospitalID = &v
	}

	return principal, nil
}
