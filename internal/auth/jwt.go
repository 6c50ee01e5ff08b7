package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/wirehub-server/internal/proto"
)

// Claims carries a pre-decided client identity. The hub makes no
// authorization decisions; the token only names who is connecting.
type Claims struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// Config holds identity-token settings.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// GenerateToken mints an identity token for the given client.
func GenerateToken(cfg *Config, identity proto.Identity) (string, error) {
	issued := jwt.NewNumericDate(time.Now())
	expires := jwt.NewNumericDate(issued.Add(cfg.TTL))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ClientID: identity.ID,
		Name:     identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  issued,
			ExpiresAt: expires,
		},
	})
	return token.SignedString(cfg.Secret)
}

// ParseToken validates an identity token and returns the identity it
// names. Signature, expiry, issuer and audience checks are delegated to
// the jwt parser; only HS256 tokens are accepted.
func ParseToken(cfg *Config, raw string) (proto.Identity, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	keyFunc := func(*jwt.Token) (any, error) { return cfg.Secret, nil }
	if _, err := jwt.ParseWithClaims(raw, claims, keyFunc, parserOpts...); err != nil {
		return proto.Identity{}, fmt.Errorf("identity token: %w", err)
	}

	if claims.ClientID == "" {
		return proto.Identity{}, errors.New("identity token names no client")
	}
	return proto.Identity{ID: claims.ClientID, Name: claims.Name}, nil
}
