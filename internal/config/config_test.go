package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MemoryBackendDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("MONGO_URI", "")

	cfg, err := Load("api")
	require.NoError(t, err)
	assert.Equal(t, "api", cfg.RunMode)
	assert.Equal(t, StoreBackendMemory, cfg.StoreBackend)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 8, cfg.AppendMaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.ListingCacheTTL)
}

func TestLoad_MongoBackendRequiresURI(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("MONGO_URI", "")

	_, err := Load("api")
	assert.ErrorContains(t, err, "MONGO_URI")
}

func TestLoad_RejectsBadNumbers(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_TIMEOUT_MS", "soon")

	_, err := Load("api")
	assert.ErrorContains(t, err, "STORE_TIMEOUT_MS")
}
