package token

import (
	"errors"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"bastion/internal/authn/models"
	dErrors "bastion/pkg/domain-errors"
)

const defaultIssuer = "bastion"

// Claims are the session token claims.
type Claims struct {
	UserID      string   `json:"uid"`
	SessionID   string   `json:"sid"`
	Roles       []string `json:"roles"`
	MFAVerified bool     `json:"mfa"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	signingKey []byte
	issuer     string
	clock      clock.Clock
}

type Option func(*Issuer)

func WithIssuer(name string) Option {
	return func(i *Issuer) {
		if name != "" {
			i.issuer = name
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(i *Issuer) {
		i.clock = c
	}
}

func New(signingKey []byte, opts ...Option) (*Issuer, error) {
	if len(signingKey) < 32 {
		return nil, errors.New("session token key must be at least 256 bits")
	}
	i := &Issuer{signingKey: signingKey, issuer: defaultIssuer, clock: clock.New()}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs a token that expires with sess.
func (i *Issuer) Issue(sess *models.Session) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:      sess.UserID,
		SessionID:   sess.ID,
		Roles:       sess.Roles,
		MFAVerified: sess.MFAVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(i.clock.Now()),
			Issuer:    i.issuer,
			ID:        uuid.NewString(),
		},
	})
	signed, err := t.SignedString(i.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign session token")
	}
	return signed, nil
}

// Parse verifies signature, issuer and expiry of raw.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return i.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.Wrap(err, dErrors.CodeSessionExpired, "session expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeSessionInvalid, "invalid session")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.SessionID == "" {
		return nil, dErrors.New(dErrors.CodeSessionInvalid, "invalid session")
	}
	return claims, nil
}
