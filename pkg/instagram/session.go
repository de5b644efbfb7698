package instagram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Session is the opaque credential returned by a successful login.
// It is bound to one account and serialized as a blob by the session store.
type Session struct {
	Account   string            `json:"account"`
	UserID    string            `json:"user_id"`
	DeviceID  string            `json:"device_id"`
	Cookies   map[string]string `json:"cookies"`
	CreatedAt time.Time         `json:"created_at"`
}

// CSRFToken returns the csrftoken cookie value
func (s *Session) CSRFToken() string {
	if s == nil {
		return ""
	}
	return s.Cookies["csrftoken"]
}

// HasAuthCookie reports whether the session carries a sessionid cookie
func (s *Session) HasAuthCookie() bool {
	return s != nil && s.Cookies["sessionid"] != ""
}

// Marshal serializes the session for persistence
func (s *Session) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSession restores a session blob produced by Marshal
func UnmarshalSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.Account == "" {
		return nil, fmt.Errorf("session has no account")
	}
	return &s, nil
}

func (s *Session) httpCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(s.Cookies))
	for name, value := range s.Cookies {
		out = append(out, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	return out
}

func cookieMap(cookies []*http.Cookie) map[string]string {
	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out
}
