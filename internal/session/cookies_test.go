package session

import (
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJarCookieWriter(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	w, err := NewJarCookieWriter(jar, "https://portal.school.test")
	require.NoError(t, err)
	assert.True(t, w.secure())

	require.NoError(t, w.SetAccessToken("tok", time.Hour))
	assert.Equal(t, "tok", w.AccessToken())

	require.NoError(t, w.ClearAccessToken())
	assert.Empty(t, w.AccessToken())
}

func TestNewJarCookieWriter_InvalidURL(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	_, err = NewJarCookieWriter(jar, "not a url")
	assert.Error(t, err)
}

func TestJarCookieWriter_ExpiredTokenIsNotStored(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	w, err := NewJarCookieWriter(jar, "http://localhost:8080")
	require.NoError(t, err)

	require.NoError(t, w.SetAccessToken("tok", time.Hour))
	require.NoError(t, w.SetAccessToken("stale", -time.Second))

	assert.Empty(t, w.AccessToken())
}
