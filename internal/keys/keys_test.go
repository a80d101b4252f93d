package keys_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-key-vault/internal/keys"
	"github.com/tinywideclouds/go-key-vault/pkg/keyvault"
)

func TestGeneratePassphrase(t *testing.T) {
	t.Run("Success - returns the requested number of words", func(t *testing.T) {
		phrase, err := keys.GeneratePassphrase(keys.DefaultPassphraseWords)
		require.NoError(t, err)
		assert.Len(t, strings.Fields(phrase), keys.DefaultPassphraseWords)
	})

	t.Run("Failure - non-positive length", func(t *testing.T) {
		_, err := keys.GeneratePassphrase(0)
		assert.Error(t, err)
	})
}

func TestDerive(t *testing.T) {
	t.Run("Success - deterministic for a passphrase", func(t *testing.T) {
		a, err := keys.Derive("eqh abandon ability able about above absent absorb abstract absurd abuse")
		require.NoError(t, err)
		b, err := keys.Derive("eqh abandon ability able about above absent absorb abstract absurd abuse")
		require.NoError(t, err)

		assert.Equal(t, a.Address, b.Address)
		assert.Equal(t, a.AccountNo, b.AccountNo)
		assert.Equal(t, a.PublicKey, b.PublicKey)
		assert.Len(t, a.PublicKey, 64)
	})

	t.Run("Success - different passphrases give different keys", func(t *testing.T) {
		a, err := keys.Derive("eqh one")
		require.NoError(t, err)
		b, err := keys.Derive("eqh two")
		require.NoError(t, err)
		assert.NotEqual(t, a.Address, b.Address)
	})

	t.Run("Failure - empty passphrase", func(t *testing.T) {
		_, err := keys.Derive("")
		assert.ErrorIs(t, err, keys.ErrEmptyPassphrase)
	})
}

func TestInspect(t *testing.T) {
	// Arrange
	phrase := keys.WithPlatform("EQH", "abandon ability able")

	// Act
	info, err := keys.Inspect("  " + strings.ToUpper(phrase) + "  ")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "EQH", info.Platform)
	assert.Equal(t, 3, info.WordCount)

	pair, err := keys.Derive(phrase)
	require.NoError(t, err)
	assert.Equal(t, pair.Address, info.Address)
}

func TestSealSeed(t *testing.T) {
	pair, err := keys.Derive("eqh abandon ability")
	require.NoError(t, err)

	t.Run("Success - round trip with the right PIN", func(t *testing.T) {
		sealed, salt, err := keys.SealSeed(pair.Seed, "1234")
		require.NoError(t, err)

		seed, err := keys.OpenSeed(sealed, salt, "1234")
		require.NoError(t, err)
		assert.Equal(t, pair.Seed, seed)
	})

	t.Run("Failure - wrong PIN", func(t *testing.T) {
		sealed, salt, err := keys.SealSeed(pair.Seed, "1234")
		require.NoError(t, err)

		_, err = keys.OpenSeed(sealed, salt, "4321")
		assert.ErrorIs(t, err, keyvault.ErrWrongPIN)
	})

	t.Run("Failure - malformed PIN", func(t *testing.T) {
		_, _, err := keys.SealSeed(pair.Seed, "12a")
		assert.ErrorIs(t, err, keys.ErrInvalidPIN)
	})
}

func TestSign(t *testing.T) {
	pair, err := keys.Derive("eqh abandon ability")
	require.NoError(t, err)

	sig, err := keys.Sign(pair.Seed, []byte("payload"))
	require.NoError(t, err)

	assert.True(t, keys.Verify(pair.PublicKey, []byte("payload"), sig))
	assert.False(t, keys.Verify(pair.PublicKey, []byte("other"), sig))
}
