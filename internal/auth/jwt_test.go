package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatgenie-server/internal/core"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("secret"),
		Issuer:   "chatgenie",
		Audience: "web",
		TTL:      time.Hour,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, 7, "alice")
	require.NoError(t, err)

	claims, err := ValidateToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateTokenRejects(t *testing.T) {
	cfg := testJWTConfig()

	expiredCfg := *cfg
	expiredCfg.TTL = -time.Minute
	expired, err := GenerateToken(&expiredCfg, 7, "alice")
	require.NoError(t, err)

	otherSecret := *cfg
	otherSecret.Secret = []byte("other")
	forged, err := GenerateToken(&otherSecret, 7, "alice")
	require.NoError(t, err)

	otherAudience := *cfg
	otherAudience.Audience = "mobile"
	wrongAudience, err := GenerateToken(&otherAudience, 7, "alice")
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"userId": 7}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":        expired,
		"forged":         forged,
		"wrong audience": wrongAudience,
		"alg none":       noneToken,
		"missing":        "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateToken(cfg, token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrUnauthorized), "expected ErrUnauthorized, got %v", err)
		})
	}
}
