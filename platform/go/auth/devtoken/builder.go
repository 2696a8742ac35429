package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Params captures the claims needed to mint a token for local tooling and CI.
// No environment variables are read so the builder stays deterministic for tooling.
type Params struct {
	Issuer    string        // iss claim; must match JWT_ISSUER on the API
	UserID    string        // sub/user_id (required)
	Email     string        // email claim (required)
	Name      string        // display name (optional)
	Role      string        // free-form role label (optional)
	UserType  string        // system_owner | company_admin | employee (required)
	CompanyID string        // required unless UserType is system_owner
	ExpiresIn time.Duration // relative expiry; default 1h if zero
}

func (p Params) validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return errors.New("userID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("email is required")
	}
	switch p.UserType {
	case "system_owner":
	case "company_admin", "employee":
		if strings.TrimSpace(p.CompanyID) == "" {
			return errors.New("companyID is required for company users")
		}
	default:
		return fmt.Errorf("unsupported userType %q", p.UserType)
	}
	return nil
}

func (p Params) claims(now time.Time) jwt.MapClaims {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	claims := jwt.MapClaims{
		"sub":      p.UserID,
		"user_id":  p.UserID,
		"email":    p.Email,
		"userType": p.UserType,
		"iat":      now.Unix(),
		"exp":      now.Add(expiresIn).Unix(),
	}
	if p.Issuer != "" {
		claims["iss"] = p.Issuer
	}
	if p.Name != "" {
		claims["name"] = p.Name
	}
	if p.Role != "" {
		claims["role"] = p.Role
	}
	if p.CompanyID != "" {
		claims["companyId"] = p.CompanyID
	}
	return claims
}

// BuildSignedToken returns an HS256 JWT accepted by auth.HMACTokenVerifier.
func BuildSignedToken(p Params, secret []byte, now time.Time) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	if len(secret) == 0 {
		return "", errors.New("secret is required")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, p.claims(now))
	return token.SignedString(secret)
}

// BuildUnsignedToken returns a JWT string with alg "none" and no signature, for AUTH_PROVIDER=dev.
func BuildUnsignedToken(p Params, now time.Time) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}

	headerSegment, err := encodeSegment(map[string]interface{}{"alg": "none", "typ": "JWT"})
	if err != nil {
		return "", err
	}

	payloadSegment, err := encodeSegment(p.claims(now))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s.%s.", headerSegment, payloadSegment), nil
}

func encodeSegment(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
