package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendConfig_Configured(t *testing.T) {
	tests := []struct {
		name string
		cfg  BackendConfig
		want bool
	}{
		{"valid", BackendConfig{URL: "https://abc.supabase.co", AnonKey: "eyJhbGciOiJIUzI1NiJ9.key"}, true},
		{"missing url", BackendConfig{AnonKey: "eyJhbGciOiJIUzI1NiJ9.key"}, false},
		{"placeholder url", BackendConfig{URL: placeholderURL, AnonKey: "eyJhbGciOiJIUzI1NiJ9.key"}, false},
		{"relative url", BackendConfig{URL: "abc.supabase.co", AnonKey: "eyJhbGciOiJIUzI1NiJ9.key"}, false},
		{"placeholder key", BackendConfig{URL: "https://abc.supabase.co", AnonKey: placeholderKey}, false},
		{"short key", BackendConfig{URL: "https://abc.supabase.co", AnonKey: "0123456789"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Configured())
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "rest", cfg.Backend.Mode)
	assert.Equal(t, 6, cfg.Catalog.FeaturedLimit)
	assert.Equal(t, 10, cfg.Catalog.LowStockThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Auth.RefreshMargin)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SUPABASE_URL=https://demo.supabase.co\nSERVER_PORT=9090\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("SUPABASE_URL")
		os.Unsetenv("SERVER_PORT")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://demo.supabase.co", cfg.Backend.URL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_UnknownMode(t *testing.T) {
	t.Setenv("BACKEND_MODE", "grpc")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
