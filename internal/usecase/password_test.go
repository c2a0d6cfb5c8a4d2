package usecase_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verilab/verilab/internal/usecase"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	t.Parallel()
	hash, err := usecase.HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "argon2id$"))
	assert.True(t, usecase.VerifyPassword("correct horse", hash))
	assert.False(t, usecase.VerifyPassword("wrong horse", hash))
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	t.Parallel()
	a, err := usecase.HashPassword("same password")
	require.NoError(t, err)
	b, err := usecase.HashPassword("same password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, usecase.VerifyPassword("same password", a))
	assert.True(t, usecase.VerifyPassword("same password", b))
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	t.Parallel()
	for _, hash := range []string{
		"",
		"argon2id$broken",
		"bcrypt$whatever",
		"argon2id$3$65536$2$!!!$!!!",
	} {
		assert.False(t, usecase.VerifyPassword("anything", hash), "hash %q", hash)
	}
}
