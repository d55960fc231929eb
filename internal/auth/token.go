package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken         = errors.New("invalid session token")
	ErrInvalidSigningMethod = errors.New("unexpected token signing method")
)

// SessionClaims carries the authenticated employee identity.
type SessionClaims struct {
	EmployeeID int64 `json:"employeeId"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HMAC-signed session tokens. Token issuance
// lives in the directory application's login handler; Issue is exposed here
// so that handler (and the tests) can mint tokens with the same secret.
type TokenService interface {
	Issue(employeeID int64) (string, error)
	Verify(tokenString string) (int64, error)
}

type tokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given signing secret.
func NewTokenService(secret string, ttl time.Duration) TokenService {
	return &tokenService{secret: []byte(secret), ttl: ttl}
}

func (s *tokenService) Issue(employeeID int64) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		EmployeeID: employeeID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses the token and returns the employee ID it was issued to.
func (s *tokenService) Verify(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return s.secret, nil
		default:
			return nil, ErrInvalidSigningMethod
		}
	})
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.EmployeeID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.EmployeeID, nil
}
