package artifact_test

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-key-vault/internal/artifact"
	"golang.org/x/crypto/nacl/box"
)

func TestQRRenderer(t *testing.T) {
	png, err := artifact.QRRenderer{Size: 128}.Render("eqh abandon ability")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestBackupSealer(t *testing.T) {
	t.Run("Success - sealed backup opens with the service key", func(t *testing.T) {
		// Arrange
		pub, priv, err := box.GenerateKey(rand.Reader)
		require.NoError(t, err)
		sealer, err := artifact.NewBackupSealer(base64.StdEncoding.EncodeToString(pub[:]))
		require.NoError(t, err)

		// Act
		armored, err := sealer.Seal("eqh abandon ability")
		require.NoError(t, err)

		// Assert
		assert.Contains(t, armored, "BEGIN VAULT SMS BACKUP")
		plain, err := artifact.OpenBackup(armored, pub, priv)
		require.NoError(t, err)
		assert.Equal(t, "eqh abandon ability", plain)
	})

	t.Run("Success - generated service key pair round trips", func(t *testing.T) {
		pubB64, priv, err := artifact.NewBackupKeyPair()
		require.NoError(t, err)
		sealer, err := artifact.NewBackupSealer(pubB64)
		require.NoError(t, err)
		raw, err := base64.StdEncoding.DecodeString(pubB64)
		require.NoError(t, err)
		var pub [32]byte
		copy(pub[:], raw)

		armored, err := sealer.Seal("eqh able about")
		require.NoError(t, err)
		plain, err := artifact.OpenBackup(armored, &pub, priv)

		require.NoError(t, err)
		assert.Equal(t, "eqh able about", plain)
	})

	t.Run("Failure - short key", func(t *testing.T) {
		_, err := artifact.NewBackupSealer(base64.StdEncoding.EncodeToString([]byte("short")))
		assert.Error(t, err)
	})
}
