package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned when a bearer token is missing or invalid.
var ErrUnauthorized = errors.New("unauthorized")

// Claims carries the identity of a customer or mechanic. The subject is the
// customer or mechanic id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTConf configures HS256 token verification.
type JWTConf struct {
	Secret     string `json:"secret"`
	Issuer     string `json:"issuer"`
	TTLMinutes int    `json:"ttl_minutes"`
}

// SetDefaults applies default values.
func (c *JWTConf) SetDefaults() {
	if c.Issuer == "" {
		c.Issuer = "autoaid"
	}
	if c.TTLMinutes <= 0 {
		c.TTLMinutes = 60
	}
}

// Enabled reports whether requests must carry a token.
func (c JWTConf) Enabled() bool { return c.Secret != "" }

// TokenService issues and verifies HS256 tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService from conf.
func NewTokenService(conf JWTConf) *TokenService {
	conf.SetDefaults()
	return &TokenService{
		secret: []byte(conf.Secret),
		issuer: conf.Issuer,
		ttl:    time.Duration(conf.TTLMinutes) * time.Minute,
		now:    time.Now,
	}
}

// Issue signs a token for subject with the given role.
func (s *TokenService) Issue(subject, role string) (string, error) {
	now := s.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses and validates a token.
func (s *TokenService) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid claims", ErrUnauthorized)
	}
	return claims, nil
}

// FromRequest verifies the bearer token of r.
func (s *TokenService) FromRequest(r *http.Request) (*Claims, error) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	return s.Verify(token)
}
