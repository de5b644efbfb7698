package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"igengage/pkg/config"
	errs "igengage/pkg/errors"
	"igengage/pkg/instagram"
	"igengage/pkg/logger"
	"igengage/pkg/retry"
)

// Validity of the session attached to the client
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityValid
	ValidityInvalid
)

func (v Validity) String() string {
	switch v {
	case ValidityValid:
		return "valid"
	case ValidityInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Authenticator is the part of the platform client the manager drives.
// *instagram.Client implements it.
type Authenticator interface {
	SetSession(s *instagram.Session)
	CheckSession(ctx context.Context) (string, error)
	Login(ctx context.Context, creds instagram.Credentials) (*instagram.Session, error)
	SubmitTwoFactor(ctx context.Context, challenge *instagram.TwoFactorChallenge, code string) (*instagram.Session, error)
}

// CredentialProvider supplies a password when a full login is needed
type CredentialProvider interface {
	Credentials(ctx context.Context, account string) (instagram.Credentials, error)
}

// CredentialsFunc adapts a function to CredentialProvider
type CredentialsFunc func(ctx context.Context, account string) (instagram.Credentials, error)

// Credentials implements CredentialProvider
func (f CredentialsFunc) Credentials(ctx context.Context, account string) (instagram.Credentials, error) {
	return f(ctx, account)
}

// SecondFactorProvider supplies the verification code for a login challenge
type SecondFactorProvider interface {
	SecondFactorCode(ctx context.Context, challenge *instagram.TwoFactorChallenge) (string, error)
}

// SecondFactorFunc adapts a function to SecondFactorProvider
type SecondFactorFunc func(ctx context.Context, challenge *instagram.TwoFactorChallenge) (string, error)

// SecondFactorCode implements SecondFactorProvider
func (f SecondFactorFunc) SecondFactorCode(ctx context.Context, challenge *instagram.TwoFactorChallenge) (string, error) {
	return f(ctx, challenge)
}

// Manager keeps one valid session per account attached to the client
type Manager struct {
	client       Authenticator
	store        Store
	credentials  CredentialProvider
	secondFactor SecondFactorProvider
	cfg          config.AuthConfig
	sleep        retry.SleepFunc
	log          logger.Logger

	mu       sync.Mutex
	known    map[string]instagram.Credentials
	validity Validity
}

// Option configures a Manager
type Option func(*Manager)

// WithCredentialProvider sets where passwords come from
func WithCredentialProvider(p CredentialProvider) Option {
	return func(m *Manager) { m.credentials = p }
}

// WithSecondFactorProvider sets where verification codes come from
func WithSecondFactorProvider(p SecondFactorProvider) Option {
	return func(m *Manager) { m.secondFactor = p }
}

// WithSleep replaces the wait between login attempts
func WithSleep(s retry.SleepFunc) Option {
	return func(m *Manager) { m.sleep = s }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a session manager
func NewManager(client Authenticator, store Store, cfg config.AuthConfig, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		store:  store,
		cfg:    cfg,
		sleep:  retry.Wait,
		log:    logger.NewNopLogger(),
		known:  make(map[string]instagram.Credentials),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.MaxLoginAttempts <= 0 {
		m.cfg.MaxLoginAttempts = 1
	}
	return m
}

// Validity reports what the manager last learned about the attached session
func (m *Manager) Validity() Validity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validity
}

func (m *Manager) setValidity(v Validity) {
	m.mu.Lock()
	m.validity = v
	m.mu.Unlock()
}

// EnsureValid leaves a working session for account attached to the client.
// A stored session is reused when the platform still accepts it. When the
// platform rejects it, the stale entry is deleted and a fresh login replaces
// it; any other check failure is returned and the stored session is kept. creds may be
// empty, in which case the credential provider is asked only if a login
// actually happens.
func (m *Manager) EnsureValid(ctx context.Context, account string, creds instagram.Credentials, forceNew bool) (*instagram.Session, error) {
	key, err := accountKey(account)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidCredentials, "session", err)
	}
	log := m.log.WithField("account", key)

	if creds.Password != "" {
		if creds.Username == "" {
			creds.Username = key
		}
		m.remember(key, creds)
	}

	if !forceNew {
		sess, err := m.store.Load(key)
		switch {
		case err == nil:
			m.client.SetSession(sess)
			probeErr := m.checkStored(ctx, log)
			if probeErr == nil {
				m.setValidity(ValidityValid)
				log.Info("Reusing stored session")
				return sess, nil
			}
			// only a rejected session is stale; anything else keeps it on disk
			if !errs.IsKind(probeErr, errs.KindAuthExpired) || errs.IsCanceled(probeErr) {
				m.setValidity(ValidityUnknown)
				return nil, probeErr
			}
			log.WithError(probeErr).Warn("Stored session rejected, logging in again")
		case errors.Is(err, ErrNotFound):
			log.Debug("No stored session")
		default:
			log.WithError(err).Warn("Could not load stored session")
		}
	}

	m.setValidity(ValidityInvalid)
	m.client.SetSession(nil)
	if err := m.store.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
		log.WithError(err).Warn("Could not delete stale session")
	}

	sess, err := m.login(ctx, key, log)
	if err != nil {
		return nil, err
	}
	m.setValidity(ValidityValid)

	if err := m.store.Save(sess); err != nil {
		log.WithError(err).Warn("Session is active but could not be saved")
	} else {
		log.WithField("store", m.store.Name()).Info("Session saved")
	}
	return sess, nil
}

// Refresh forces a new login for account using the credentials seen last
func (m *Manager) Refresh(ctx context.Context, account string) error {
	_, err := m.EnsureValid(ctx, account, instagram.Credentials{}, true)
	return err
}

// Status probes the stored session for account without logging in
func (m *Manager) Status(ctx context.Context, account string) (Validity, error) {
	key, err := accountKey(account)
	if err != nil {
		return ValidityUnknown, err
	}

	sess, err := m.store.Load(key)
	if errors.Is(err, ErrNotFound) {
		return ValidityUnknown, ErrNotFound
	}
	if err != nil {
		return ValidityUnknown, err
	}

	m.client.SetSession(sess)
	_, err = m.client.CheckSession(ctx)
	switch {
	case err == nil:
		m.setValidity(ValidityValid)
		return ValidityValid, nil
	case errs.IsKind(err, errs.KindAuthExpired):
		m.setValidity(ValidityInvalid)
		return ValidityInvalid, nil
	default:
		return ValidityUnknown, err
	}
}

// Forget deletes the stored session for account
func (m *Manager) Forget(account string) error {
	key, err := accountKey(account)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.known, key)
	m.mu.Unlock()

	m.client.SetSession(nil)
	m.setValidity(ValidityUnknown)
	return m.store.Delete(key)
}

func (m *Manager) remember(account string, creds instagram.Credentials) {
	m.mu.Lock()
	m.known[account] = creds
	m.mu.Unlock()
}

func (m *Manager) resolveCredentials(ctx context.Context, account string) (instagram.Credentials, error) {
	m.mu.Lock()
	creds, ok := m.known[account]
	m.mu.Unlock()
	if ok {
		return creds, nil
	}

	if m.credentials == nil {
		return instagram.Credentials{}, errs.New(errs.KindInvalidCredentials, "no credentials available for "+account)
	}
	creds, err := m.credentials.Credentials(ctx, account)
	if err != nil {
		if errs.IsCanceled(err) {
			return instagram.Credentials{}, err
		}
		return instagram.Credentials{}, errs.Wrap(errs.KindInvalidCredentials, "credentials", err)
	}
	if creds.Username == "" {
		creds.Username = account
	}
	if creds.Password == "" {
		return instagram.Credentials{}, errs.New(errs.KindInvalidCredentials, "password is required")
	}
	m.remember(account, creds)
	return creds, nil
}

// checkStored probes the attached session. Connectivity and throttling
// failures are retried with the login backoff.
func (m *Manager) checkStored(ctx context.Context, log logger.Logger) error {
	policy := m.linearPolicy(ctx, log, "Session check failed, retrying", func(err error) bool {
		return errs.IsRetryable(errs.KindOf(err))
	})
	return retry.Do(func(attempt int) error {
		_, err := m.client.CheckSession(ctx)
		return err
	}, policy)
}

// linearPolicy waits RetryBase*attempt between at most MaxLoginAttempts tries
func (m *Manager) linearPolicy(ctx context.Context, log logger.Logger, msg string, retryIf func(error) bool) *retry.Config {
	base := m.cfg.RetryBase
	return &retry.Config{
		MaxAttempts: m.cfg.MaxLoginAttempts,
		Backoff:     &retry.LinearBackoff{BaseDelay: base, Increment: base},
		RetryIf: func(err error) bool {
			return !errs.IsCanceled(err) && retryIf(err)
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.WithError(err).WarnWithFields(msg, map[string]interface{}{
				"attempt": attempt,
				"wait":    delay,
			})
		},
		Sleep:   m.sleep,
		Context: ctx,
		Logger:  log,
	}
}

// login authenticates with linear backoff between attempts.
// Only connectivity failures are retried.
func (m *Manager) login(ctx context.Context, account string, log logger.Logger) (*instagram.Session, error) {
	creds, err := m.resolveCredentials(ctx, account)
	if err != nil {
		return nil, err
	}

	policy := m.linearPolicy(ctx, log, "Login failed, retrying", func(err error) bool {
		return errs.IsKind(err, errs.KindTransientConnectivity)
	})

	sess, err := retry.DoWithResult(func(attempt int) (*instagram.Session, error) {
		log.WithField("attempt", attempt).Info("Logging in")
		sess, err := m.client.Login(ctx, creds)

		var challenge *instagram.TwoFactorChallenge
		if errors.As(err, &challenge) {
			return m.completeTwoFactor(ctx, challenge, log)
		}
		return sess, err
	}, policy)
	if err != nil {
		if errs.IsKind(err, errs.KindInvalidCredentials) {
			m.mu.Lock()
			delete(m.known, account)
			m.mu.Unlock()
		}
		return nil, err
	}

	sess.Account = account
	m.client.SetSession(sess)
	log.Info("Logged in")
	return sess, nil
}

func (m *Manager) completeTwoFactor(ctx context.Context, challenge *instagram.TwoFactorChallenge, log logger.Logger) (*instagram.Session, error) {
	if m.secondFactor == nil {
		return nil, errs.New(errs.KindSecondFactorFailed, "verification code required but no input is available")
	}

	log.Info("Second factor required")
	code, err := m.secondFactor.SecondFactorCode(ctx, challenge)
	if err != nil {
		if errs.IsCanceled(err) {
			return nil, err
		}
		return nil, errs.Wrap(errs.KindSecondFactorFailed, "two-factor", err)
	}
	return m.client.SubmitTwoFactor(ctx, challenge, code)
}
