package util

import (
	"testing"
	"time"

	"fitcoach_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGenerateTokenPair(t *testing.T) {
	pair, err := GenerateTokenPair("user-1", model.Coach, testSecret, 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	access, err := ParseJWT(pair.AccessToken, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", access.UserID)
	assert.Equal(t, model.Coach, access.Role)
	assert.Equal(t, TokenTypeAccess, access.TokenType)

	refresh, err := ParseJWT(pair.RefreshToken, testSecret)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
}

func TestParseJWTRejectsWrongSecretAndExpired(t *testing.T) {
	token, err := GenerateJWT("user-1", model.Client, TokenTypeAccess, testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseJWT(token, "another-secret-another-secret-xx")
	assert.Error(t, err)

	expired, err := GenerateJWT("user-1", model.Client, TokenTypeAccess, testSecret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, testSecret)
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "front-view.png", SanitizeFilename("front view.png"))
	assert.Equal(t, "x.jpg", SanitizeFilename("../../etc/x.jpg"))
	assert.Equal(t, "photo", SanitizeFilename(""))
}
