package jwt

import (
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Config is read from the environment.
type Config struct {
	Secret string        `env:"JWT_SECRET"`
	Issuer string        `env:"JWT_ISSUER" envDefault:"launchpad"`
	TTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

// Claims carries the authenticated user id in the subject claim.
type Claims struct {
	gojwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Service issues and verifies HS256 access tokens.
type Service struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithClock is used by tests to pin token timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns ErrMissingSigningKey when cfg.Secret is empty.
func New(cfg Config, opts ...ServiceOption) (*Service, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSigningKey
	}
	s := &Service{key: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: cfg.TTL, now: time.Now}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for userID.
func (s *Service) Issue(userID, email string) (string, error) {
	if userID == "" {
		return "", ErrMissingSubject
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(s.ttl)),
		},
		Email: email,
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Parse verifies the signature, algorithm, issuer and expiry.
func (s *Service) Parse(token string) (*Claims, error) {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithTimeFunc(s.now),
		gojwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(s.issuer))
	}

	var claims Claims
	_, err := gojwt.ParseWithClaims(token, &claims, func(*gojwt.Token) (any, error) {
		return s.key, nil
	}, opts...)
	switch {
	case err == nil:
	case errors.Is(err, gojwt.ErrTokenExpired):
		return nil, errors.Join(ErrExpiredToken, err)
	default:
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return &claims, nil
}
