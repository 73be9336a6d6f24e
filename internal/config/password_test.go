package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPasswordConfigDefaults(t *testing.T) {
	t.Setenv("BCRYPT_COST", "")
	t.Setenv("PASSWORD_PEPPER", "")

	cfg, err := NewPasswordConfig()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Empty(t, cfg.Pepper)
}

func TestNewPasswordConfigCostBounds(t *testing.T) {
	for _, bad := range []string{"9", "15", "abc"} {
		t.Setenv("BCRYPT_COST", bad)
		_, err := NewPasswordConfig()
		assert.Error(t, err, "BCRYPT_COST=%s", bad)
	}

	t.Setenv("BCRYPT_COST", "10")
	cfg, err := NewPasswordConfig()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.BcryptCost)
}

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := &PasswordConfig{BcryptCost: 10}

	hash, err := cfg.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, cfg.VerifyPassword("correct horse battery staple", hash))
	assert.False(t, cfg.VerifyPassword("wrong password", hash))
}

func TestVerifyPasswordWithPepper(t *testing.T) {
	peppered := &PasswordConfig{BcryptCost: 10, Pepper: "global-secret"}

	hash, err := peppered.HashPassword("hunter2hunter2")
	require.NoError(t, err)
	assert.True(t, peppered.VerifyPassword("hunter2hunter2", hash))

	// Without the pepper the same password no longer verifies.
	plain := &PasswordConfig{BcryptCost: 10}
	assert.False(t, plain.VerifyPassword("hunter2hunter2", hash))
}

func TestHashPasswordSaltsEachCall(t *testing.T) {
	cfg := &PasswordConfig{BcryptCost: 10}

	first, err := cfg.HashPassword("same password")
	require.NoError(t, err)
	second, err := cfg.HashPassword("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, cfg.VerifyPassword("same password", first))
	assert.True(t, cfg.VerifyPassword("same password", second))
}
