package middleware

import (
	"github.com/schooldesk/portal/internal/models"
	"github.com/schooldesk/portal/pkg/jwt"
)

// TokenValidator decides whether an access cookie value is acceptable. It
// must be cheap and must not do network I/O: it runs on every navigation.
type TokenValidator interface {
	Validate(token string) (*models.AccessSession, error)
}

// PresenceValidator accepts any non-empty token. It carries no identity and
// is only used when no verification secret is configured.
type PresenceValidator struct{}

func (PresenceValidator) Validate(token string) (*models.AccessSession, error) {
	if token == "" {
		return nil, jwt.ErrInvalidToken
	}
	return &models.AccessSession{}, nil
}

// SignedTokenValidator verifies the HS256 signature, issuer and expiry of the
// access token using the secret shared with the issuer.
type SignedTokenValidator struct {
	tokens *jwt.TokenManager
}

func NewSignedTokenValidator(tokens *jwt.TokenManager) *SignedTokenValidator {
	return &SignedTokenValidator{tokens: tokens}
}

func (v *SignedTokenValidator) Validate(token string) (*models.AccessSession, error) {
	if token == "" {
		return nil, jwt.ErrInvalidToken
	}

	claims, err := v.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	session := &models.AccessSession{
		UserID:   claims.UserID,
		Email:    claims.Email,
		Role:     models.Role(claims.Role),
		SchoolID: claims.SchoolID,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Unix()
	}
	return session, nil
}
