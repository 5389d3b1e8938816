package identity

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Provider exposes who the client is acting as. The user id is the `sub`
// claim of the access token; the client cannot verify the signature (it does
// not hold the secret), so the claim is extracted unverified and the backend
// remains the authority on every request.
type Provider struct {
	userID string
}

// FromToken builds a provider from a raw access token.
func FromToken(token string) (*Provider, error) {
	if token == "" {
		return &Provider{}, nil
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, errors.New("access token is not a parseable JWT")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, errors.New("access token has no sub claim")
	}
	return &Provider{userID: sub}, nil
}

// CurrentUserID returns the acting user id, or false when there is no
// authenticated user yet. Presence and ownership checks are meaningless
// until this reports true.
func (p *Provider) CurrentUserID() (string, bool) {
	return p.userID, p.userID != ""
}
