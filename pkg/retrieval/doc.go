// Package retrieval collects the commenters and likers of a single post.
//
// A Controller fetches the post summary, then runs two phases in order:
// comments, a paced pause, then likes. Each phase walks a paginated Source
// one item at a time, sleeping through the Pacer after every item and
// stopping at its cap.
//
// Phases move between these states:
//
//	idle -> fetching -> completed
//	fetching -> rate_limited -> fetching   (long pause, restart from page one)
//	fetching -> auth_expired -> fetching   (session refresh, restart)
//	any -> failed                          (retry ceiling, terminal error, cancel)
//
// A failed phase keeps what it collected. Failures are reported in the
// Result rather than returned, so callers can always export partial data.
//
// Usage:
//
//	ctrl := retrieval.NewController(client, pacer, cfg.Retrieval,
//		retrieval.WithRefresher(retrieval.RefresherFunc(refresh)),
//		retrieval.WithRecorder(collector),
//	)
//	res, err := ctrl.FetchInteractions(ctx, shortcode, caps)
//	if err != nil {
//		return err // post summary unavailable
//	}
//	for _, p := range res.Phases {
//		fmt.Println(p.Phase, p.Outcome, p.Fetched)
//	}
package retrieval
