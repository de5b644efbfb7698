// Package retry runs an operation until it succeeds, fails terminally, or
// runs out of attempts.
//
// Only errors classified as transient connectivity or platform rate limiting
// are retried by default. Terminal kinds such as bad credentials return
// immediately.
//
//	err := retry.Do(func(attempt int) error {
//		return client.Login(ctx, creds)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.LinearBackoff{BaseDelay: 30 * time.Second, Increment: 30 * time.Second},
//		Context:     ctx,
//		Logger:      log,
//	})
package retry
