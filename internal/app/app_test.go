package app

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p4portal/internal/infrastructure"
)

// TestNewApplication wires the full stack once from environment config and
// exercises it through the router. A single test keeps the process-global
// logger and metric registration from being initialized twice.
func TestNewApplication(t *testing.T) {
	dir := t.TempDir()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	salt := make([]byte, 16)
	_, err = rand.Read(salt)
	require.NoError(t, err)

	infrastructure.ResetLoggerForTesting()

	t.Setenv("P4_CONFIG_FILE", filepath.Join(dir, "no-config.yaml"))
	t.Setenv("P4_LOGGING_OUTPUT", "console")
	t.Setenv("P4_DATABASE_PATH", filepath.Join(dir, "portal.db"))
	t.Setenv("P4_DATABASE_BACKUP_DIR", filepath.Join(dir, "backups"))
	t.Setenv("P4_CRYPTO_ED25519_PUBLIC_KEY", base64.StdEncoding.EncodeToString(pub))
	t.Setenv("P4_CRYPTO_PASSPHRASES", "1:correct-horse-battery-staple")
	t.Setenv("P4_CRYPTO_ACTIVE_KEY_VERSION", "1")
	t.Setenv("P4_CRYPTO_KEY_SALT", base64.StdEncoding.EncodeToString(salt))

	app, err := NewApplication()
	require.NoError(t, err)
	t.Cleanup(func() { app.Store.Close() })

	require.NotNil(t, app.Engine)
	require.NotNil(t, app.Router)
	require.NotNil(t, app.Server)
	require.NotNil(t, app.BackupScheduler)
	assert.Nil(t, app.Tokens)

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// With no token service configured the API is open; the directory
	// endpoints respond rather than 401.
	rec = httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/partners", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
