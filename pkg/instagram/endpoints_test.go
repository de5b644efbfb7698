package instagram

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentsPath(t *testing.T) {
	tests := []struct {
		name      string
		cursor    string
		pageSize  int
		wantCount string
		wantMinID string
	}{
		{"first page", "", 20, "20", ""},
		{"with cursor", "QVFC_abc", 20, "20", "QVFC_abc"},
		{"default size", "", 0, "50", ""},
		{"clamped size", "", 500, "100", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(CommentsPath("123", tt.cursor, tt.pageSize))
			require.NoError(t, err)
			assert.Equal(t, "/api/v1/media/123/comments/", u.Path)
			assert.Equal(t, tt.wantCount, u.Query().Get("count"))
			assert.Equal(t, tt.wantMinID, u.Query().Get("min_id"))
			assert.Equal(t, "true", u.Query().Get("can_support_threading"))
		})
	}
}

func TestLikersPath(t *testing.T) {
	assert.Equal(t, "/api/v1/media/42/likers/", LikersPath("42", ""))
	assert.Equal(t, "/api/v1/media/42/likers/?max_id=next%3D1", LikersPath("42", "next=1"))
}

func TestMediaInfoPath(t *testing.T) {
	assert.Equal(t, "/api/v1/media/987/info/", MediaInfoPath("987"))
}

func TestGetUserProfileURL(t *testing.T) {
	assert.Equal(t, "https://www.instagram.com/testuser/", GetUserProfileURL("testuser"))
	assert.Equal(t, "", GetUserProfileURL(""))
	assert.Equal(t, "https://www.instagram.com/p/ABC/", GetPostURL("ABC"))
	assert.Equal(t, "", GetPostURL(""))
}

func TestIsValidUsername(t *testing.T) {
	tests := []struct {
		username string
		expected bool
	}{
		{"testuser", true},
		{"test_user", true},
		{"test.user", true},
		{"User123", true},
		{"", false},
		{"thisusernameiswaytoolongandexceedsthirtychars", false},
		{"test user", false},
		{"test-user", false},
		{"../etc", false},
		{"test@user", false},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidUsername(tt.username))
		})
	}
}

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		username string
		expected string
	}{
		{"testuser", "testuser"},
		{"@testuser", "testuser"},
		{"testuser/", "testuser"},
		{"@testuser// ", "testuser"},
		{"", ""},
		{"@", ""},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeUsername(tt.username))
		})
	}
}
