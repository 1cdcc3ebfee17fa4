package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims identify the account behind a session. IsAdmin is informational;
// every request reloads the account before trusting it.
type Claims struct {
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

type (
	JWTService interface {
		GenerateToken(email string, isAdmin bool) (string, time.Time, error)
		ParseToken(token string) (*Claims, error)
	}

	jwtService struct {
		secretKey []byte
		issuer    string
		ttl       time.Duration
		now       func() time.Time
	}
)

// NewJWTService creates a token service signing with HS256
func NewJWTService(secretKey string, ttl time.Duration) JWTService {
	return &jwtService{
		secretKey: []byte(secretKey),
		issuer:    "ROYAL-CHARGE",
		ttl:       ttl,
		now:       time.Now,
	}
}

func (j *jwtService) GenerateToken(email string, isAdmin bool) (string, time.Time, error) {
	now := j.now()
	expires := now.Add(j.ttl)
	claims := Claims{
		Email:   email,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing token: %w", err)
	}
	return signed, expires, nil
}

func (j *jwtService) parseToken(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return j.secretKey, nil
}

func (j *jwtService) ParseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, j.parseToken)
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Email == "" || claims.Issuer != j.issuer {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
