package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-console/internal/pkg/config"
)

func TestMain(m *testing.M) {
	config.GlobalConfig = &config.Config{
		Crypto: config.CryptoConfig{AESKey: "0123456789abcdef0123456789abcdef"},
	}
	m.Run()
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	plaintext := `{"project_id":"acme-prod","client_email":"sa@acme.iam"}`

	enc, err := Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, enc)

	dec, err := Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, plaintext, dec)
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	a, err := Encrypt("same input")
	require.NoError(t, err)
	b, err := Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	enc, err := Encrypt("secret payload")
	require.NoError(t, err)

	tampered := enc[:len(enc)-4] + "AAA="
	_, err = Decrypt(tampered)
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	_, err := Decrypt("not-base64!!!")
	assert.Error(t, err)

	_, err = Decrypt("c2hvcnQ=")
	assert.Error(t, err)
}
