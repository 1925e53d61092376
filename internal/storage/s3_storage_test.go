package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBiometricKey(t *testing.T) {
	key, err := BiometricKey("agent-1", "image/JPEG")
	require.NoError(t, err)
	assert.Regexp(t, `^biometrics/agent-1/[0-9a-f-]{36}\.jpg$`, key)
	assert.True(t, OwnsBiometricKey("agent-1", key))
	assert.False(t, OwnsBiometricKey("agent-2", key))

	_, err = BiometricKey("agent-1", "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
}

func TestOwnsBiometricKey_RejectsForeignPaths(t *testing.T) {
	assert.False(t, OwnsBiometricKey("agent-1", "uploads/agent-1/x.jpg"))
	assert.False(t, OwnsBiometricKey("agent-1", "biometrics/agent-1/../agent-2/0b7e1c2a-1b1c-4a5e-9f3e-9a1b2c3d4e5f.jpg"))
	assert.False(t, OwnsBiometricKey("agent-1", ""))
}
