package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"lodge/cmd/internal/ids"
)

// refreshPurpose is written to every token so access tokens signed with the
// same key can never be replayed as refresh tokens.
const refreshPurpose = "refresh"

type pasetoV4Signer struct {
	issuer string
	cfg    Config

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4Signer builds a Signer based on PASETO v4.public (Ed25519).
func NewPasetoV4Signer(cfg Config) (Signer, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4Signer{
		issuer: cfg.Issuer,
		cfg:    cfg,
		secret: secret,
		public: secret.Public(),
	}, nil
}

func (s *pasetoV4Signer) Mint(subject string, class LifetimeClass, now time.Time) (Minted, error) {
	jti, err := ids.New(now)
	if err != nil {
		return Minted{}, err
	}
	exp := now.Add(s.cfg.TTL(class))

	tok := paseto.NewToken()
	tok.SetIssuer(s.issuer)
	tok.SetSubject(subject)
	tok.SetJti(jti)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	_ = tok.Set("pur", refreshPurpose)

	return Minted{
		Token: tok.V4Sign(s.secret, nil),
		Claims: Claims{
			JTI:       jti,
			Subject:   subject,
			IssuedAt:  now,
			ExpiresAt: exp,
		},
	}, nil
}

func (s *pasetoV4Signer) Parse(token string) (Claims, error) {
	token, ok := sanitizeToken(token)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	// Fresh parser per call; expiry is judged against the stored record.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(s.issuer))

	parsed, err := p.ParseV4Public(s.public, token, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var pur string
	if err := parsed.Get("pur", &pur); err != nil || pur != refreshPurpose {
		return Claims{}, ErrInvalidToken
	}
	jti, err := parsed.GetJti()
	if err != nil || jti == "" {
		return Claims{}, ErrInvalidToken
	}
	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, ErrInvalidToken
	}
	exp, err := parsed.GetExpiration()
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	iat, _ := parsed.GetIssuedAt()

	return Claims{JTI: jti, Subject: sub, IssuedAt: iat, ExpiresAt: exp}, nil
}
