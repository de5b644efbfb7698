// Package target turns post and reel URLs into the shortcode the platform API addresses posts by.
package target

import (
	"math/big"
	"net/url"
	"regexp"
	"strings"

	errs "igengage/pkg/errors"
)

// Shortcode uniquely addresses one post
type Shortcode string

// pathMarkers are the path segments that precede a shortcode
var pathMarkers = map[string]bool{
	"p":     true,
	"reel":  true,
	"reels": true,
	"tv":    true,
}

var shortcodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const shortcodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// Resolve extracts the shortcode from a post or reel URL
func Resolve(raw string) (Shortcode, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errs.New(errs.KindInvalidTarget, "empty post URL")
	}

	// Query and fragment never carry the shortcode
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		path = raw[:i]
	}
	path = strings.TrimRight(path, "/")

	segments := strings.Split(path, "/")
	for i := 0; i < len(segments)-1; i++ {
		if !pathMarkers[strings.ToLower(segments[i])] {
			continue
		}
		code := segments[i+1]
		if shortcodePattern.MatchString(code) {
			return Shortcode(code), nil
		}
		break
	}

	return "", errs.Newf(errs.KindInvalidTarget,
		"invalid Instagram post URL %q, expected https://www.instagram.com/p/SHORTCODE/ or /reel/SHORTCODE/", raw)
}

// String returns the shortcode text
func (s Shortcode) String() string {
	return string(s)
}

// MediaID converts the shortcode into the numeric media id used by the private API.
// Shortcodes of private posts carry a suffix after the first 11 characters which is dropped.
func (s Shortcode) MediaID() (string, error) {
	code := string(s)
	if len(code) > 11 {
		code = code[:11]
	}
	if code == "" {
		return "", errs.New(errs.KindInvalidTarget, "empty shortcode")
	}

	id := new(big.Int)
	base := big.NewInt(64)
	for _, ch := range code {
		idx := strings.IndexRune(shortcodeAlphabet, ch)
		if idx < 0 {
			return "", errs.Newf(errs.KindInvalidTarget, "invalid shortcode character %q", ch)
		}
		id.Mul(id, base)
		id.Add(id, big.NewInt(int64(idx)))
	}
	return id.String(), nil
}

// PostURL returns the canonical post URL
func (s Shortcode) PostURL() string {
	return "https://www.instagram.com/p/" + string(s) + "/"
}
