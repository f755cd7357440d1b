package util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtyportal/internal/config"
	"realtyportal/internal/domain"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	cfg := &config.AuthConfig{SecretKey: "0123456789abcdef0123456789abcdef", TokenExpiryMinutes: 30}
	token, err := GenerateToken(cfg, &domain.User{Username: "ops", IsStaff: true})
	require.NoError(t, err)

	claims, err := ValidateToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Username)
	assert.True(t, claims.IsStaff)
	assert.False(t, claims.IsAdmin)

	other := &config.AuthConfig{SecretKey: "another-secret-another-secret-xx", TokenExpiryMinutes: 30}
	_, err = ValidateToken(other, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAdminTokenExpired(t *testing.T) {
	cfg := &config.AuthConfig{SecretKey: "0123456789abcdef0123456789abcdef", TokenExpiryMinutes: -1}
	token, err := GenerateToken(cfg, &domain.User{Username: "ops"})
	require.NoError(t, err)

	_, err = ValidateToken(cfg, token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRequireRoles(t *testing.T) {
	assert.NoError(t, RequireAdmin(&domain.User{IsAdmin: true}))
	assert.Error(t, RequireAdmin(&domain.User{IsStaff: true}))
	assert.NoError(t, RequireStaff(&domain.User{IsStaff: true}))
	assert.NoError(t, RequireStaff(&domain.User{IsAdmin: true}))
	assert.Error(t, RequireStaff(&domain.User{}))
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("correct horse", hash))
	assert.False(t, CheckPasswordHash("wrong horse", hash))
}

func identityFixture(t *testing.T) (*rsa.PrivateKey, *IdentityVerifier) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	v, err := NewIdentityVerifier(&config.IdentityConfig{JWTPublicKey: string(pemKey), Issuer: "https://id.example.com"})
	require.NoError(t, err)
	return key, v
}

func signIdentity(t *testing.T, key *rsa.PrivateKey, claims *IdentityClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestIdentityVerifier(t *testing.T) {
	key, v := identityFixture(t)
	require.True(t, v.Enabled())

	token := signIdentity(t, key, &IdentityClaims{
		Email: "ada@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_123",
			Issuer:    "https://id.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user_123", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)

	wrongIssuer := signIdentity(t, key, &IdentityClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user_123", Issuer: "https://evil.example.com"}})
	_, err = v.Verify(wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := signIdentity(t, key, &IdentityClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "user_123", Issuer: "https://id.example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &IdentityClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user_123"}}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.Verify(hmacToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityVerifierDisabled(t *testing.T) {
	v, err := NewIdentityVerifier(&config.IdentityConfig{})
	require.NoError(t, err)
	assert.False(t, v.Enabled())
	_, err = v.Verify("anything")
	assert.ErrorIs(t, err, ErrIdentityDisabled)
}

func TestIdentityVerifierBadKey(t *testing.T) {
	_, err := NewIdentityVerifier(&config.IdentityConfig{JWTPublicKey: "not a pem"})
	assert.Error(t, err)
}

func webhookHeaders(t *testing.T, secret, id string, ts time.Time, body []byte) http.Header {
	t.Helper()
	sig, err := SignWebhook(secret, id, ts.Unix(), body)
	require.NoError(t, err)
	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", strconv.FormatInt(ts.Unix(), 10))
	h.Set("svix-signature", "v1,bogus "+sig)
	return h
}

func TestVerifyWebhook(t *testing.T) {
	secret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("super-secret-signing-key"))
	body := []byte(`{"type":"user.created"}`)
	now := time.Unix(1_760_000_000, 0)

	h := webhookHeaders(t, secret, "msg_1", now, body)
	assert.NoError(t, VerifyWebhook(secret, h, body, now.Add(time.Minute)))

	assert.ErrorIs(t, VerifyWebhook(secret, h, []byte(`{"type":"user.deleted"}`), now), ErrWebhookSignature)
	assert.ErrorIs(t, VerifyWebhook(secret, h, body, now.Add(10*time.Minute)), ErrWebhookTimestamp)
	assert.ErrorIs(t, VerifyWebhook(secret, http.Header{}, body, now), ErrWebhookHeaders)
	assert.ErrorIs(t, VerifyWebhook("whsec_!!!", h, body, now), ErrWebhookSecret)
}
