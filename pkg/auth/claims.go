package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// AccessTokenPayload is what the session issuer puts into a token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Roles  []enums.Role
	JTI    string
}

// AccessTokenClaims is the JWT body presented on every API request.
type AccessTokenClaims struct {
	UserID uuid.UUID    `json:"user_id"`
	Roles  []enums.Role `json:"roles"`
	jwt.RegisteredClaims
}
