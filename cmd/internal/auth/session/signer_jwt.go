package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lodge/cmd/internal/ids"
)

type refreshJWTClaims struct {
	Purpose string `json:"pur"`
	jwt.RegisteredClaims
}

type jwtSigner struct {
	cfg    Config
	key    []byte
	parser *jwt.Parser
}

// NewJWTSigner builds an HS256 JWT Signer. key must be at least 32 bytes.
func NewJWTSigner(cfg Config, key []byte) (Signer, error) {
	if len(key) < 32 {
		return nil, ErrConfig
	}
	return &jwtSigner{
		cfg: cfg,
		key: key,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

func (s *jwtSigner) Mint(subject string, class LifetimeClass, now time.Time) (Minted, error) {
	jti, err := ids.New(now)
	if err != nil {
		return Minted{}, err
	}
	// JWT NumericDate has second precision; keep the record in step with the token.
	now = now.Truncate(time.Second)
	exp := now.Add(s.cfg.TTL(class))

	claims := refreshJWTClaims{
		Purpose: refreshPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return Minted{}, err
	}

	return Minted{
		Token:  signed,
		Claims: Claims{JTI: jti, Subject: subject, IssuedAt: now, ExpiresAt: exp},
	}, nil
}

func (s *jwtSigner) Parse(token string) (Claims, error) {
	token, ok := sanitizeToken(token)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	var c refreshJWTClaims
	parsed, err := s.parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if c.Purpose != refreshPurpose || c.Issuer != s.cfg.Issuer || c.ID == "" || c.Subject == "" || c.ExpiresAt == nil {
		return Claims{}, ErrInvalidToken
	}

	var iat time.Time
	if c.IssuedAt != nil {
		iat = c.IssuedAt.Time
	}

	return Claims{
		JTI:       c.ID,
		Subject:   c.Subject,
		IssuedAt:  iat,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
