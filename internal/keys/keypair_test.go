package keys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeypair_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle.json")
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	require.NoError(t, WriteKeypair(path, key))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadKeypair(path)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), loaded.PublicKey())
}

func TestWriteKeypair_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle.json")
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	require.NoError(t, WriteKeypair(path, key))

	assert.Error(t, WriteKeypair(path, key))
}

func TestLoadKeypair_Missing(t *testing.T) {
	_, err := LoadKeypair(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorContains(t, err, "load keypair")
}
