package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)

	assert.NotContains(t, hash, "secret123", "plaintext must never appear in the stored value")
	assert.True(t, strings.Contains(hash, "$"), "stored value should be salt$hash")

	assert.True(t, CheckPassword("secret123", hash))
	assert.False(t, CheckPassword("secret124", hash))
	assert.False(t, CheckPassword("", hash))
}

func TestHashPassword_EmptyPassword(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	h1, err := HashPassword("secret123")
	require.NoError(t, err)
	h2, err := HashPassword("secret123")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2, "same password must hash differently per user")
	assert.True(t, CheckPassword("secret123", h1))
	assert.True(t, CheckPassword("secret123", h2))
}

func TestCheckPassword_MalformedStored(t *testing.T) {
	assert.False(t, CheckPassword("secret", "not-a-valid-hash"))
	assert.False(t, CheckPassword("secret", "only$two$parts$many"))
	assert.False(t, CheckPassword("secret", ""))
}

func TestGenerateSessionToken(t *testing.T) {
	t1, err := GenerateSessionToken()
	require.NoError(t, err)
	t2, err := GenerateSessionToken()
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)
	assert.NotEmpty(t, t1)
}

func TestSignAndVerifyValue(t *testing.T) {
	signed := SignValue("secret-key", "token123")

	value, ok := VerifySignedValue("secret-key", signed)
	require.True(t, ok)
	assert.Equal(t, "token123", value)
}

func TestVerifySignedValue_Tampered(t *testing.T) {
	signed := SignValue("secret-key", "token123")

	_, ok := VerifySignedValue("secret-key", strings.Replace(signed, "token123", "token124", 1))
	assert.False(t, ok, "altered value must fail verification")

	_, ok = VerifySignedValue("other-key", signed)
	assert.False(t, ok, "wrong key must fail verification")

	_, ok = VerifySignedValue("secret-key", "token123")
	assert.False(t, ok, "unsigned value must fail verification")

	_, ok = VerifySignedValue("secret-key", "")
	assert.False(t, ok)
}
