package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	salt := make([]byte, 16)
	_, err = rand.Read(salt)
	require.NoError(t, err)

	t.Setenv("P4_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("P4_CRYPTO_ED25519_PUBLIC_KEY", base64.StdEncoding.EncodeToString(pub))
	t.Setenv("P4_CRYPTO_PASSPHRASES", "1:secret-one")
	t.Setenv("P4_CRYPTO_KEY_SALT", base64.StdEncoding.EncodeToString(salt))
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "data/portal.db", cfg.Database.Path)
	assert.Equal(t, 1, cfg.Crypto.ActiveKeyVersion)
	assert.Equal(t, "p4portal", cfg.Auth.Issuer)
	assert.Equal(t, "p4portal-api", cfg.Auth.Audience)
	assert.True(t, cfg.Security.RateLimit.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("P4_SERVER_PORT", "9090")
	t.Setenv("P4_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_FileUnderEnv(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("database:\n  path: /var/lib/portal/from-file.db\n"), 0644))
	t.Setenv("P4_CONFIG_FILE", configFile)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/portal/from-file.db", cfg.Database.Path)

	// Environment still wins over the file.
	t.Setenv("P4_DATABASE_PATH", "/tmp/from-env.db")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.db", cfg.Database.Path)
}

func TestLoad_MissingPublicKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("P4_CRYPTO_ED25519_PUBLIC_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ed25519_public_key")
}

func TestLoad_ActiveVersionWithoutPassphrase(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("P4_CRYPTO_ACTIVE_KEY_VERSION", "2")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active_key_version")
}

func TestSigningKeys(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	c := CryptoConfig{
		Ed25519PrivateKey: base64.StdEncoding.EncodeToString(priv),
		Ed25519PublicKey:  base64.StdEncoding.EncodeToString(pub),
	}
	gotPriv, gotPub, err := c.SigningKeys()
	require.NoError(t, err)
	assert.Equal(t, priv, gotPriv)
	assert.Equal(t, pub, gotPub)
}

func TestSigningKeys_VerifyOnly(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	c := CryptoConfig{Ed25519PublicKey: base64.StdEncoding.EncodeToString(pub)}
	gotPriv, gotPub, err := c.SigningKeys()
	require.NoError(t, err)
	assert.Nil(t, gotPriv)
	assert.Equal(t, pub, gotPub)
}

func TestSigningKeys_BadEncoding(t *testing.T) {
	c := CryptoConfig{Ed25519PublicKey: "not base64!!!"}
	_, _, err := c.SigningKeys()
	assert.Error(t, err)
}

func TestSigningKeys_WrongSize(t *testing.T) {
	c := CryptoConfig{Ed25519PublicKey: base64.StdEncoding.EncodeToString([]byte("short"))}
	_, _, err := c.SigningKeys()
	assert.Error(t, err)
}

func TestTokenKeys_DerivesPublicFromPrivate(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	a := AuthConfig{SigningKey: base64.StdEncoding.EncodeToString(priv)}
	gotPriv, gotPub, err := a.TokenKeys()
	require.NoError(t, err)
	assert.Equal(t, priv, gotPriv)
	assert.Equal(t, pub, gotPub)
}

func TestTokenKeys_Empty(t *testing.T) {
	a := AuthConfig{}
	priv, pub, err := a.TokenKeys()
	require.NoError(t, err)
	assert.Nil(t, priv)
	assert.Nil(t, pub)
}
