package instagram

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// LoginPagePath is fetched first to obtain a csrftoken cookie
	LoginPagePath = "/accounts/login/"

	// LoginPath is the web login endpoint
	LoginPath = "/api/v1/web/accounts/login/ajax/"

	// TwoFactorPath submits a second-factor code
	TwoFactorPath = "/api/v1/web/accounts/login/ajax/two_factor/"

	// CurrentUserPath is the cheapest authenticated call, used to probe a session
	CurrentUserPath = "/api/v1/accounts/current_user/"

	// DefaultPageSize is the number of comments requested per page
	DefaultPageSize = 50

	// MaxPageSize is the largest page the comments endpoint accepts
	MaxPageSize = 100
)

// MediaInfoPath returns the path for a post's metadata
func MediaInfoPath(mediaID string) string {
	return fmt.Sprintf("/api/v1/media/%s/info/", mediaID)
}

// CommentsPath returns the path for one page of comments.
// An empty cursor requests the first page.
func CommentsPath(mediaID, cursor string, pageSize int) string {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	} else if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	params := url.Values{}
	params.Set("can_support_threading", "true")
	params.Set("permalink_enabled", "false")
	params.Set("count", strconv.Itoa(pageSize))
	if cursor != "" {
		params.Set("min_id", cursor)
	}
	return fmt.Sprintf("/api/v1/media/%s/comments/?%s", mediaID, params.Encode())
}

// LikersPath returns the path for one page of likers
func LikersPath(mediaID, cursor string) string {
	path := fmt.Sprintf("/api/v1/media/%s/likers/", mediaID)
	if cursor == "" {
		return path
	}
	params := url.Values{}
	params.Set("max_id", cursor)
	return path + "?" + params.Encode()
}

// GetPostURL constructs the URL for a specific post
func GetPostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

// GetUserProfileURL constructs the public profile URL for a user
func GetUserProfileURL(username string) string {
	if username == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/", BaseURL, username)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername strips a leading @ and surrounding slashes or spaces
func SanitizeUsername(username string) string {
	if username == "" {
		return ""
	}

	if username[0] == '@' {
		username = username[1:]
	}

	for len(username) > 0 && (username[len(username)-1] == '/' || username[len(username)-1] == ' ') {
		username = username[:len(username)-1]
	}

	return username
}
