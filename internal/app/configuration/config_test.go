package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewFromEnvDefaults(t *testing.T) {
	config, err := NewFromEnv()
	require.NoError(t, err)
	require.Equal(t, 8080, config.AdminPort)
	require.Equal(t, "127.0.0.1", config.BindHost)
	require.Equal(t, "./pacts", config.PactDir)
	require.Equal(t, 30*time.Second, config.VerifyTimeout)
	require.Equal(t, 3, config.VerifyRetries)
}

func TestNewFromEnvOverrides(t *testing.T) {
	t.Setenv("ADMIN_PORT", "9000")
	t.Setenv("BIND_HOST", "0.0.0.0")
	t.Setenv("VERIFY_TIMEOUT", "5s")

	config, err := NewFromEnv()
	require.NoError(t, err)
	require.Equal(t, 9000, config.AdminPort)
	require.Equal(t, "0.0.0.0", config.BindHost)
	require.Equal(t, 5*time.Second, config.VerifyTimeout)
}
