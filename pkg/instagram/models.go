package instagram

// apiStatus is the envelope every API response shares
type apiStatus struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ErrorType    string `json:"error_type"`
	RequireLogin bool   `json:"require_login"`
	Spam         bool   `json:"spam"`
}

// WebLoginResponse is returned by the login and two-factor endpoints
type WebLoginResponse struct {
	apiStatus
	Authenticated     bool   `json:"authenticated"`
	User              bool   `json:"user"`
	UserID            string `json:"userId"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	TwoFactorInfo     struct {
		TwoFactorIdentifier string `json:"two_factor_identifier"`
		Username            string `json:"username"`
		ObfuscatedPhone     string `json:"obfuscated_phone_number"`
	} `json:"two_factor_info"`
	CheckpointURL string `json:"checkpoint_url"`
}

// CurrentUserResponse is returned by the session probe
type CurrentUserResponse struct {
	apiStatus
	User UserRef `json:"user"`
}

// UserRef is the minimal user shape embedded in media, comments and likers
type UserRef struct {
	PK       interface{} `json:"pk"`
	Username string      `json:"username"`
	FullName string      `json:"full_name"`
}

// MediaInfoResponse is returned by the media info endpoint
type MediaInfoResponse struct {
	apiStatus
	Items []MediaItem `json:"items"`
}

// MediaItem is one post
type MediaItem struct {
	ID           string   `json:"id"`
	Code         string   `json:"code"`
	TakenAt      int64    `json:"taken_at"`
	User         UserRef  `json:"user"`
	Caption      *Caption `json:"caption"`
	LikeCount    int      `json:"like_count"`
	CommentCount int      `json:"comment_count"`
}

// Caption is the post text
type Caption struct {
	Text string `json:"text"`
}

// CommentsResponse is one page of comments
type CommentsResponse struct {
	apiStatus
	Comments     []Comment `json:"comments"`
	CommentCount int       `json:"comment_count"`
	NextMinID    string    `json:"next_min_id"`
	HasMore      bool      `json:"has_more_headload_comments"`
}

// Comment is one top-level comment
type Comment struct {
	PK   interface{} `json:"pk"`
	Text string      `json:"text"`
	User UserRef     `json:"user"`
}

// LikersResponse is one page of likers
type LikersResponse struct {
	apiStatus
	Users     []UserRef `json:"users"`
	UserCount int       `json:"user_count"`
	NextMaxID string    `json:"next_max_id"`
}
