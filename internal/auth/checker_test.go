package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminChecker(t *testing.T) {
	_, err := NewAdminChecker(0)
	assert.Error(t, err)

	ac, err := NewAdminChecker(-100500)
	require.NoError(t, err)
	assert.True(t, ac.IsAdminChat(-100500))
	assert.False(t, ac.IsAdminChat(42))
	assert.Equal(t, int64(-100500), ac.AdminChatID())
}
