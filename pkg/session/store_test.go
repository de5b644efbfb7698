package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"igengage/pkg/config"
	"igengage/pkg/instagram"
)

func testSession(account, id string) *instagram.Session {
	return &instagram.Session{
		Account:   account,
		UserID:    "777",
		DeviceID:  "device-1",
		Cookies:   map[string]string{"sessionid": id, "csrftoken": "csrf"},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/data/sessions", "secret")

	want := testSession("alice", "sess-secret-value")
	require.NoError(t, store.Save(want))

	got, err := store.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	path, err := store.Path("alice")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/sessions", "alice.session"), path)

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sess-secret-value")

	info, err := fs.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	exists, err := afero.Exists(fs, path+".tmp")
	require.NoError(t, err)
	assert.False(t, exists, "temp file must not survive a save")
}

func TestFileStoreOverwrites(t *testing.T) {
	store := NewFileStore(afero.NewMemMapFs(), "/s", "secret")

	require.NoError(t, store.Save(testSession("alice", "first")))
	require.NoError(t, store.Save(testSession("alice", "second")))

	got, err := store.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Cookies["sessionid"])
}

func TestFileStoreWrongPassphrase(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, NewFileStore(fs, "/s", "right").Save(testSession("alice", "x")))

	_, err := NewFileStore(fs, "/s", "wrong").Load("alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypt")
}

func TestFileStoreMissingAndDelete(t *testing.T) {
	store := NewFileStore(afero.NewMemMapFs(), "/s", "secret")

	_, err := store.Load("alice")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(store.Delete("alice"), ErrNotFound))

	require.NoError(t, store.Save(testSession("alice", "x")))
	require.NoError(t, store.Delete("alice"))

	_, err = store.Load("alice")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStoreCorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/s/alice.session", []byte("not json"), 0600))

	_, err := NewFileStore(fs, "/s", "secret").Load("alice")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestStoresRejectUnsafeAccounts(t *testing.T) {
	store := NewFileStore(afero.NewMemMapFs(), "/s", "secret")

	for _, account := range []string{"", "../etc", "a/b", "bad name"} {
		_, err := store.Load(account)
		assert.True(t, errors.Is(err, ErrInvalidAccount), "account %q", account)
	}
	assert.True(t, errors.Is(store.Save(testSession("../x", "y")), ErrInvalidAccount))
}

func TestAccountKeyNormalizes(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(testSession("@alice", "x")))

	got, err := store.Load("alice/")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Cookies["sessionid"])
}

func TestResolvePassphrase(t *testing.T) {
	t.Run("environment wins", func(t *testing.T) {
		t.Setenv(PassphraseEnv, "from-env")
		pass, err := ResolvePassphrase(afero.NewMemMapFs(), "/s")
		require.NoError(t, err)
		assert.Equal(t, "from-env", pass)
	})

	t.Run("generated once and reused", func(t *testing.T) {
		t.Setenv(PassphraseEnv, "")
		fs := afero.NewMemMapFs()

		first, err := ResolvePassphrase(fs, "/s")
		require.NoError(t, err)
		assert.NotEmpty(t, first)

		second, err := ResolvePassphrase(fs, "/s")
		require.NoError(t, err)
		assert.Equal(t, first, second)

		raw, err := afero.ReadFile(fs, "/s/.passphrase")
		require.NoError(t, err)
		assert.Equal(t, first, strings.TrimSpace(string(raw)))
	})
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)
	assert.Equal(t, "keyring", store.Name())

	_, err = store.Load("alice")
	assert.True(t, errors.Is(err, ErrNotFound))

	want := testSession("alice", "k-1")
	require.NoError(t, store.Save(want))

	got, err := store.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Delete("alice"))
	assert.True(t, errors.Is(store.Delete("alice"), ErrNotFound))
}

func TestNewStore(t *testing.T) {
	keyring.MockInit()
	t.Setenv(PassphraseEnv, "pw")
	fs := afero.NewMemMapFs()

	tests := []struct {
		backend string
		want    string
		wantErr bool
	}{
		{BackendFile, "file", false},
		{BackendKeyring, "keyring", false},
		{BackendAuto, "keyring", false},
		{"", "keyring", false},
		{"s3", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			store, err := NewStore(config.SessionConfig{Backend: tt.backend, Directory: "/s"}, fs, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, store.Name())
		})
	}
}

func TestNewStoreFallsBackToFile(t *testing.T) {
	keyring.MockInitWithError(errors.New("no dbus"))
	t.Cleanup(keyring.MockInit)
	t.Setenv(PassphraseEnv, "pw")

	store, err := NewStore(config.SessionConfig{Backend: BackendAuto, Directory: "/s"}, afero.NewMemMapFs(), nil)
	require.NoError(t, err)
	assert.Equal(t, "file", store.Name())
}
