package tokenfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testToken(access string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		Expiry:       time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	tf, err := Load("/nonexistent/path/token.json")
	assert.Nil(t, tf)
	assert.NoError(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	before := time.Now().UTC().Add(-time.Second)

	require.NoError(t, Save(path, &File{Provider: "gdrive", Account: "alice@example.com", Token: testToken("access-123")}))

	tf, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, tf)

	assert.Equal(t, "gdrive", tf.Provider)
	assert.Equal(t, "alice@example.com", tf.Account)
	assert.Equal(t, "access-123", tf.Token.AccessToken)
	assert.Equal(t, "refresh-456", tf.Token.RefreshToken)
	assert.True(t, tf.Token.Expiry.Equal(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, tf.SavedAt.After(before))
}

func TestLoad_MissingTokenField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"provider":"gdrive","access_token":"old"}`), 0o600))

	tf, err := Load(path)
	assert.Nil(t, tf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token field")
}

func TestLoad_MissingProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"token":{"access_token":"a"}}`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing provider field")
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json}`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestSave_CreatesDirectoryWithPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens", "token.json")

	require.NoError(t, Save(path, &File{Provider: "onedrive", Token: testToken("a")}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(DirPerms), dirInfo.Mode().Perm())
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, Save(path, &File{Provider: "gdrive", Token: testToken("a")}))
	require.NoError(t, Save(path, &File{Provider: "gdrive", Token: testToken("b")}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "token.json", entries[0].Name())
}

func TestSave_NilToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	require.Error(t, Save(path, &File{Provider: "gdrive"}))
	require.Error(t, Save(path, nil))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReplaceToken_KeepsProviderAndAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, Save(path, &File{Provider: "onedrive", Account: "bob", Token: testToken("old")}))

	require.NoError(t, ReplaceToken(path, testToken("new")))

	tf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "onedrive", tf.Provider)
	assert.Equal(t, "bob", tf.Account)
	assert.Equal(t, "new", tf.Token.AccessToken)
}

func TestReplaceToken_NoFile(t *testing.T) {
	err := ReplaceToken(filepath.Join(t.TempDir(), "missing.json"), testToken("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no login saved")
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, Save(path, &File{Provider: "gdrive", Token: testToken("a")}))

	removed, err := Remove(path)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = Remove(path)
	require.NoError(t, err)
	assert.False(t, removed)
}
