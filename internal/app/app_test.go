// Package app_test contains unit tests for the app container.
package app_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatstash/chatstash/internal/app"
	"github.com/chatstash/chatstash/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Dir = t.TempDir()
	cfg.Logging.Development = false
	return cfg
}

func TestNewBuildsWorkingHandler(t *testing.T) {
	a, err := app.New(testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAddrUsesConfiguredPort(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 9999

	a, err := app.New(cfg)
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, ":9999", a.Addr())
}

func TestCloseIsSafeAfterUse(t *testing.T) {
	a, err := app.New(testConfig(t))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	a.Close()
}
