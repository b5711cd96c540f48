package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() JWTConfig {
	return JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     "test-secret",
		Issuer:        "taskable-test",
		Audience:      []string{"taskable-lists"},
		ExpiryTime:    time.Minute,
	}
}

func TestGenerateAndValidate(t *testing.T) {
	gen, err := NewJWTGenerator(testConfig())
	require.NoError(t, err)
	val, err := NewJWTValidator(testConfig())
	require.NoError(t, err)

	token, expiresAt, err := gen.GenerateToken("user-1", "u@example.com", "taskable-lists")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	claims, err := val.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "u@example.com", claims.Email)
}

func TestValidateToken_WrongAudience(t *testing.T) {
	gen, _ := NewJWTGenerator(testConfig())
	val, _ := NewJWTValidator(testConfig())

	token, _, err := gen.GenerateToken("user-1", "", "some-other-api")
	require.NoError(t, err)

	_, err = val.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestValidateToken_BadSignature(t *testing.T) {
	gen, _ := NewJWTGenerator(testConfig())
	other := testConfig()
	other.SecretKey = "another-secret"
	val, _ := NewJWTValidator(other)

	token, _, _ := gen.GenerateToken("user-1", "", "taskable-lists")

	_, err := val.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestGenerateToken_DefaultExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.ExpiryTime = 0
	gen, _ := NewJWTGenerator(cfg)

	_, expiresAt, err := gen.GenerateToken("user-1", "", "taskable-lists")

	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)
}

func TestValidateToken_Missing(t *testing.T) {
	val, _ := NewJWTValidator(testConfig())

	_, err := val.ValidateToken("  ")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestNewJWTValidator_Unsupported(t *testing.T) {
	cfg := testConfig()
	cfg.SigningMethod = "ES512"

	_, err := NewJWTValidator(cfg)
	assert.Error(t, err)
}

func rsaConfig(t *testing.T) JWTConfig {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.SigningMethod = "RS256"
	cfg.SecretKey = ""
	cfg.PrivateKey = string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
	cfg.PublicKey = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}))
	return cfg
}

func TestGenerateAndValidate_RS256(t *testing.T) {
	cfg := rsaConfig(t)
	gen, err := NewJWTGenerator(cfg)
	require.NoError(t, err)
	val, err := NewJWTValidator(cfg)
	require.NoError(t, err)

	token, _, err := gen.GenerateToken("user-1", "", "taskable-lists")
	require.NoError(t, err)

	claims, err := val.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	// an HS256 validator must not accept an RS256 token
	hs, err := NewJWTValidator(testConfig())
	require.NoError(t, err)
	_, err = hs.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWT_RS256RequiresKeys(t *testing.T) {
	cfg := rsaConfig(t)
	cfg.PrivateKey = ""
	_, err := NewJWTGenerator(cfg)
	assert.Error(t, err)

	cfg = rsaConfig(t)
	cfg.PublicKey = "not a pem"
	_, err = NewJWTValidator(cfg)
	assert.Error(t, err)
}
