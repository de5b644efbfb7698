package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	errs "igengage/pkg/errors"
)

// Credentials are the account name and password for a full login
type Credentials struct {
	Username string
	Password string
}

// ErrTwoFactorRequired matches any *TwoFactorChallenge via errors.Is
var ErrTwoFactorRequired = errors.New("two-factor authentication required")

// TwoFactorChallenge is returned by Login when the account needs a second factor
type TwoFactorChallenge struct {
	Username        string
	Identifier      string
	ObfuscatedPhone string
}

func (c *TwoFactorChallenge) Error() string {
	return fmt.Sprintf("two-factor authentication required for %s", c.Username)
}

// Unwrap returns ErrTwoFactorRequired
func (c *TwoFactorChallenge) Unwrap() error {
	return ErrTwoFactorRequired
}

// Login authenticates with username and password.
// On success the new session is attached to the client and returned.
// A *TwoFactorChallenge error means SubmitTwoFactor must be called next.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, errs.New(errs.KindInvalidCredentials, "username and password are required")
	}

	c.SetSession(nil)

	// The login page sets the csrftoken cookie the login POST must echo back
	status, body, err := c.do(ctx, http.MethodGet, LoginPagePath, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, c.checkResponse(LoginPagePath, status, body)
	}

	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("enc_password", fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", time.Now().Unix(), creds.Password))
	form.Set("queryParams", "{}")
	form.Set("optIntoOneTap", "false")

	status, body, err = c.do(ctx, http.MethodPost, LoginPath, form)
	if err != nil {
		return nil, err
	}

	return c.finishLogin(LoginPath, creds.Username, status, body)
}

// SubmitTwoFactor sends the second-factor code for a pending challenge.
// Any failure is reported as SecondFactorFailed; the code is never resubmitted.
func (c *Client) SubmitTwoFactor(ctx context.Context, challenge *TwoFactorChallenge, code string) (*Session, error) {
	code = strings.TrimSpace(code)
	if challenge == nil || code == "" {
		return nil, errs.New(errs.KindSecondFactorFailed, "no verification code provided")
	}

	form := url.Values{}
	form.Set("username", challenge.Username)
	form.Set("verificationCode", code)
	form.Set("identifier", challenge.Identifier)
	form.Set("queryParams", "{}")

	status, body, err := c.do(ctx, http.MethodPost, TwoFactorPath, form)
	if err != nil {
		if errs.IsCanceled(err) {
			return nil, err
		}
		return nil, &errs.Error{Kind: errs.KindSecondFactorFailed, Op: "two-factor", Err: err}
	}

	sess, err := c.finishLogin(TwoFactorPath, challenge.Username, status, body)
	if err != nil {
		return nil, &errs.Error{Kind: errs.KindSecondFactorFailed, Op: "two-factor", Message: "verification code rejected", Err: err}
	}
	return sess, nil
}

func (c *Client) finishLogin(path, username string, status int, body []byte) (*Session, error) {
	var resp WebLoginResponse
	parseErr := json.Unmarshal(body, &resp)

	lower := strings.ToLower(resp.Message)
	switch {
	case status == http.StatusTooManyRequests || strings.Contains(lower, "please wait a few minutes"):
		return nil, (&errs.Error{Kind: errs.KindPlatformRateLimited, Op: "login", Message: "too many login attempts"}).WithCode(status)
	case status >= 500:
		return nil, (&errs.Error{Kind: errs.KindTransientConnectivity, Op: "login", Message: http.StatusText(status)}).WithCode(status)
	case parseErr != nil:
		return nil, errs.Wrap(errs.KindUnexpected, "login", parseErr).WithCode(status)
	case resp.TwoFactorRequired:
		return nil, &TwoFactorChallenge{
			Username:        firstNonEmpty(resp.TwoFactorInfo.Username, username),
			Identifier:      resp.TwoFactorInfo.TwoFactorIdentifier,
			ObfuscatedPhone: resp.TwoFactorInfo.ObfuscatedPhone,
		}
	case resp.Authenticated:
		// handled below
	case resp.CheckpointURL != "" || lower == "checkpoint_required":
		return nil, errs.New(errs.KindInvalidCredentials, "login requires verification in the Instagram app")
	case resp.ErrorType == "bad_password" || resp.ErrorType == "invalid_user" || status == http.StatusOK || status == http.StatusBadRequest:
		return nil, errs.Newf(errs.KindInvalidCredentials, "login rejected for %s", username).WithCode(status)
	default:
		return nil, c.checkResponse(path, status, body)
	}

	cookies := c.cookies()
	if cookies["sessionid"] == "" {
		return nil, errs.New(errs.KindUnexpected, "login succeeded but no session cookie was set")
	}

	sess := &Session{
		Account:   username,
		UserID:    resp.UserID,
		DeviceID:  uuid.NewString(),
		Cookies:   cookies,
		CreatedAt: time.Now().UTC(),
	}
	if sess.UserID == "" {
		sess.UserID = cookies["ds_user_id"]
	}

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	c.logger.InfoWithFields("Logged in", map[string]interface{}{
		"account": username,
		"user_id": sess.UserID,
	})
	return sess, nil
}

// CheckSession probes the attached session with a lightweight authenticated call
// and returns the username it belongs to.
func (c *Client) CheckSession(ctx context.Context) (string, error) {
	if s := c.Session(); !s.HasAuthCookie() {
		return "", errs.New(errs.KindAuthExpired, "no session attached")
	}

	var resp CurrentUserResponse
	if err := c.getJSON(ctx, CurrentUserPath+"?edit=true", &resp); err != nil {
		return "", err
	}
	if resp.User.Username == "" {
		return "", errs.New(errs.KindAuthExpired, "session is no longer valid")
	}
	return resp.User.Username, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
