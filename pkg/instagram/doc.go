// Package instagram is a small client for Instagram's web API.
//
// It covers exactly what engagement retrieval needs: password login with an
// optional second factor, session probing, post metadata, and paginated
// comment and liker streams. Every error it returns is classified with a
// kind from igengage/pkg/errors so callers can decide whether to retry,
// re-authenticate, or give up.
//
//	client, err := instagram.NewClient(cfg.Instagram, instagram.WithLimiter(budget))
//	sess, err := client.Login(ctx, instagram.Credentials{Username: u, Password: p})
//	if errors.Is(err, instagram.ErrTwoFactorRequired) {
//	    var ch *instagram.TwoFactorChallenge
//	    errors.As(err, &ch)
//	    sess, err = client.SubmitTwoFactor(ctx, ch, code)
//	}
//
//	it := client.Comments(post)
//	for {
//	    item, err := it.Next(ctx)
//	    if err == instagram.Done {
//	        break
//	    }
//	    ...
//	}
package instagram
