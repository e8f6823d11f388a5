package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCookieFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCookies(t *testing.T) {
	path := writeCookieFile(t, `[
		{"name": "c_user", "value": "1234"},
		{"name": "xs", "value": "abcd", "domain": ".facebook.com", "secure": true, "httpOnly": true}
	]`)

	cookies, err := LoadCookies(path)
	require.NoError(t, err)
	require.Len(t, cookies, 2)
	assert.Equal(t, "c_user", cookies[0].Name)
	assert.Equal(t, "1234", cookies[0].Value)
	assert.Equal(t, ".facebook.com", cookies[1].Domain)
	assert.True(t, cookies[1].Secure)
}

func TestLoadCookiesMissingName(t *testing.T) {
	path := writeCookieFile(t, `[{"value": "abcd"}]`)

	_, err := LoadCookies(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing the name field")
}

func TestLoadCookiesMissingValue(t *testing.T) {
	path := writeCookieFile(t, `[{"name": "xs"}]`)

	_, err := LoadCookies(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing the value field")
}

func TestLoadCookiesMalformedJSON(t *testing.T) {
	path := writeCookieFile(t, `{"name": "xs"}`)

	_, err := LoadCookies(path)
	assert.Error(t, err)
}

func TestLoadCookiesEmpty(t *testing.T) {
	path := writeCookieFile(t, `[]`)

	_, err := LoadCookies(path)
	assert.Error(t, err)
}

func TestLoadCookiesMissingFile(t *testing.T) {
	_, err := LoadCookies(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestIsLoginRedirect(t *testing.T) {
	assert.True(t, isLoginRedirect("https://mbasic.facebook.com/login.php?next=%2Fevents"))
	assert.True(t, isLoginRedirect("https://mbasic.facebook.com/login/?refsrc=deprecated"))
	assert.True(t, isLoginRedirect("https://mbasic.facebook.com/checkpoint/"))
	assert.False(t, isLoginRedirect("https://mbasic.facebook.com/events/1234"))
	assert.False(t, isLoginRedirect("https://mbasic.facebook.com/clubwu5/events/"))
}
