package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServer_EnvDefaultsAndFlagOverrides(t *testing.T) {
	t.Setenv("JWT_KEY", "from-env")
	t.Setenv("MAX_BATCH", "50")
	t.Setenv("ACCESS_TTL", "2h")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("DEV", "true")

	c, err := LoadServer([]string{"-addr", ":9999", "-max-batch", "70"})
	require.NoError(t, err)
	require.Equal(t, ":9999", c.Addr)
	require.Equal(t, 70, c.MaxBatch, "flag beats env")
	require.Equal(t, 2*time.Hour, c.AccessTTL)
	require.Equal(t, []byte("from-env"), c.JWTKey)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, c.CORSOrigins)
	require.True(t, c.Dev)
	require.Equal(t, ":8081", c.HealthAddr)
}

func TestLoadServer_RequiresJWTKey(t *testing.T) {
	t.Setenv("JWT_KEY", "")
	_, err := LoadServer(nil)
	require.ErrorIs(t, err, ErrMissingJWTKey)
}

func TestLoadServer_BadEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("JWT_KEY", "k")
	t.Setenv("MAX_BATCH", "lots")
	t.Setenv("ACCESS_TTL", "soon")

	c, err := LoadServer(nil)
	require.NoError(t, err)
	require.Equal(t, 1000, c.MaxBatch)
	require.Equal(t, 24*time.Hour, c.AccessTTL)
}

func TestLoadServer_BadFlag(t *testing.T) {
	t.Setenv("JWT_KEY", "k")
	_, err := LoadServer([]string{"-max-batch", "x"})
	require.Error(t, err)
}
