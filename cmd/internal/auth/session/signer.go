package session

import (
	"strings"
	"time"
)

// LifetimeClass selects the refresh lifetime a token is minted with.
type LifetimeClass int

const (
	// LifetimeSession is the short, default lifetime.
	LifetimeSession LifetimeClass = iota
	// LifetimeRememberMe is the long-lived "remember me" lifetime.
	LifetimeRememberMe
)

func lifetimeFor(rememberMe bool) LifetimeClass {
	if rememberMe {
		return LifetimeRememberMe
	}
	return LifetimeSession
}

// Claims is what a refresh token carries about itself.
type Claims struct {
	JTI       string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Minted is a freshly signed refresh token.
type Minted struct {
	Token  string
	Claims Claims
}

// Signer mints and parses self-describing refresh tokens.
//
// Parse verifies signature and issuer only. It does not consult revocation
// state and does not reject expired tokens: expiry is decided against the
// stored record so that callers can tell ErrTokenExpired apart.
type Signer interface {
	Mint(subject string, class LifetimeClass, now time.Time) (Minted, error)
	Parse(token string) (Claims, error)
}

// NewSigner builds the Signer selected by cfg.Signer.
// jwtKey is used for SignerJWT when cfg.JWTSecret is empty.
func NewSigner(cfg Config, jwtKey []byte) (Signer, error) {
	switch cfg.Signer {
	case SignerPaseto, "":
		return NewPasetoV4Signer(cfg)
	case SignerJWT:
		key := []byte(cfg.JWTSecret)
		if len(key) == 0 {
			key = jwtKey
		}
		return NewJWTSigner(cfg, key)
	default:
		return nil, ErrConfig
	}
}

// maxTokenLen bounds presented tokens to avoid pathological inputs.
const maxTokenLen = 4096

func sanitizeToken(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxTokenLen {
		return "", false
	}
	return s, true
}
