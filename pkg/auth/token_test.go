package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 30}

func TestMintAndParseAccessToken(t *testing.T) {
	userID := uuid.New()
	token, err := MintAccessToken(testJWT, time.Now().UTC(), AccessTokenPayload{
		UserID: userID,
		Roles:  []enums.Role{enums.RoleStaff, enums.RoleCustomer},
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testJWT, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, []enums.Role{enums.RoleStaff, enums.RoleCustomer}, claims.Roles)
	assert.Equal(t, "storefront", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestParseAccessTokenRejects(t *testing.T) {
	userID := uuid.New()
	expired, err := MintAccessToken(testJWT, time.Now().Add(-2*time.Hour), AccessTokenPayload{UserID: userID})
	require.NoError(t, err)
	_, err = ParseAccessToken(testJWT, expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	valid, err := MintAccessToken(testJWT, time.Now(), AccessTokenPayload{UserID: userID})
	require.NoError(t, err)
	_, err = ParseAccessToken(config.JWTConfig{Secret: "other", Issuer: "storefront"}, valid)
	assert.Error(t, err)
	_, err = ParseAccessToken(config.JWTConfig{Secret: "secret", Issuer: "someone-else"}, valid)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{UserID: userID})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAccessToken(testJWT, raw)
	assert.Error(t, err)
}

func TestMintAccessTokenValidation(t *testing.T) {
	_, err := MintAccessToken(config.JWTConfig{Issuer: "x", ExpirationMinutes: 1}, time.Now(), AccessTokenPayload{UserID: uuid.New()})
	assert.Error(t, err)
	_, err = MintAccessToken(testJWT, time.Now(), AccessTokenPayload{})
	assert.Error(t, err)
	_, err = MintAccessToken(testJWT, time.Now(), AccessTokenPayload{UserID: uuid.New(), Roles: []enums.Role{"root"}})
	assert.Error(t, err)
}

func signRaw(t *testing.T, claims AccessTokenClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWT.Secret))
	require.NoError(t, err)
	return raw
}

func TestParseAccessTokenDropsUnknownRoles(t *testing.T) {
	userID := uuid.New()
	raw := signRaw(t, AccessTokenClaims{
		UserID: userID,
		Roles:  []enums.Role{"superuser", enums.RoleStaff},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testJWT.Issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := ParseAccessToken(testJWT, raw)
	require.NoError(t, err)
	assert.Equal(t, []enums.Role{enums.RoleStaff}, claims.Roles)
}

func TestParseAccessTokenRejectsSubjectMismatch(t *testing.T) {
	raw := signRaw(t, AccessTokenClaims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testJWT.Issuer,
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := ParseAccessToken(testJWT, raw)
	assert.ErrorIs(t, err, ErrSubjectMismatch)
}

func TestParseAccessTokenToleratesSmallSkew(t *testing.T) {
	userID := uuid.New()
	// issued slightly in the future from this service's point of view
	token, err := MintAccessToken(testJWT, time.Now().Add(10*time.Second), AccessTokenPayload{UserID: userID})
	require.NoError(t, err)
	_, err = ParseAccessToken(testJWT, token)
	assert.NoError(t, err)
}
