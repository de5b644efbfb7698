package retrieval

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"igengage/pkg/config"
	errs "igengage/pkg/errors"
	"igengage/pkg/instagram"
	"igengage/pkg/logger"
	"igengage/pkg/models"
	"igengage/pkg/ratelimit"
	"igengage/pkg/retry"
	"igengage/pkg/target"
)

// progressEvery controls how often phase progress is logged at info level
const progressEvery = 10

// Source is the platform side of a retrieval. *instagram.Client implements it.
type Source interface {
	FetchPost(ctx context.Context, sc target.Shortcode) (*models.PostSummary, error)
	// Comments and Likes return a fresh iterator starting at the first page
	Comments(post *models.PostSummary) instagram.Iterator
	Likes(post *models.PostSummary) instagram.Iterator
}

// Pacer spaces out consecutive items. *ratelimit.Pacer implements it.
type Pacer interface {
	Delay(ctx context.Context, index int, forceLong bool) (time.Duration, error)
}

// Refresher re-establishes an expired session
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefresherFunc adapts a function to Refresher
type RefresherFunc func(ctx context.Context) error

// Refresh implements Refresher
func (f RefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// PhaseSink receives every phase that completes, e.g. to checkpoint it
type PhaseSink interface {
	PhaseDone(post *models.PostSummary, phase Phase, items []models.Interaction) error
}

// Recorder collects run statistics. pkg/metrics implements it.
type Recorder interface {
	ItemFetched(phase string)
	Retry(phase, reason string)
	Refresh(ok bool)
	PhaseFinished(phase, outcome string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ItemFetched(string)                          {}
func (nopRecorder) Retry(string, string)                        {}
func (nopRecorder) Refresh(bool)                                {}
func (nopRecorder) PhaseFinished(string, string, time.Duration) {}

// Recorders fans every event out to each recorder in order
type Recorders []Recorder

func (rs Recorders) ItemFetched(phase string) {
	for _, r := range rs {
		r.ItemFetched(phase)
	}
}

func (rs Recorders) Retry(phase, reason string) {
	for _, r := range rs {
		r.Retry(phase, reason)
	}
}

func (rs Recorders) Refresh(ok bool) {
	for _, r := range rs {
		r.Refresh(ok)
	}
}

func (rs Recorders) PhaseFinished(phase, outcome string, d time.Duration) {
	for _, r := range rs {
		r.PhaseFinished(phase, outcome, d)
	}
}

// Request describes one retrieval run
type Request struct {
	Shortcode target.Shortcode
	Caps      models.Caps
	// Completed holds phases restored from a checkpoint. They are not fetched again.
	Completed map[Phase][]models.Interaction
}

// Controller runs the comments and likes phases for one post at a time
type Controller struct {
	source    Source
	pacer     Pacer
	cfg       config.RetrievalConfig
	refresher Refresher
	sink      PhaseSink
	recorder  Recorder
	sleeper   ratelimit.Sleeper
	rng       *rand.Rand
	log       logger.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithRefresher enables session refresh on AuthExpired
func WithRefresher(r Refresher) Option {
	return func(c *Controller) { c.refresher = r }
}

// WithPhaseSink registers a sink for completed phases
func WithPhaseSink(s PhaseSink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithRecorder registers a statistics recorder
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithSleeper replaces the timer used for backoff and the inter-phase pause
func WithSleeper(s ratelimit.Sleeper) Option {
	return func(c *Controller) { c.sleeper = s }
}

// WithRand sets the randomness source for backoff and pause draws
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) { c.rng = r }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// NewController creates a controller
func NewController(source Source, pacer Pacer, cfg config.RetrievalConfig, opts ...Option) *Controller {
	c := &Controller{
		source:   source,
		pacer:    pacer,
		cfg:      cfg,
		recorder: nopRecorder{},
		sleeper:  ratelimit.TimerSleeper{},
		log:      logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.cfg.MaxRetries < 0 {
		c.cfg.MaxRetries = 0
	}
	return c
}

// FetchInteractions collects up to caps comments and likes for the post.
//
// The error is non-nil only when the post itself could not be fetched. Phase
// failures are reported in the Result, which keeps whatever was collected.
func (c *Controller) FetchInteractions(ctx context.Context, sc target.Shortcode, caps models.Caps) (*Result, error) {
	return c.Fetch(ctx, Request{Shortcode: sc, Caps: caps})
}

// Fetch runs req. See FetchInteractions.
func (c *Controller) Fetch(ctx context.Context, req Request) (*Result, error) {
	if err := req.Caps.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindUnexpected, "fetch", err)
	}

	log := c.log.WithContext(ctx).WithField("shortcode", req.Shortcode.String())
	result := &Result{Started: time.Now()}

	post, err := c.fetchPost(ctx, req.Shortcode, log)
	if err != nil {
		return nil, err
	}
	result.Post = post

	log.InfoWithFields("Post loaded", map[string]interface{}{
		"owner":         post.OwnerUsername,
		"like_count":    post.LikeCount,
		"comment_count": post.CommentCount,
	})

	phases := []struct {
		phase Phase
		limit models.Limit
	}{
		{PhaseComments, req.Caps.MaxComments},
		{PhaseLikes, req.Caps.MaxLikes},
	}

	ran := false
	for _, p := range phases {
		if items, ok := req.Completed[p.phase]; ok {
			result.Interactions = append(result.Interactions, items...)
			result.Phases = append(result.Phases, PhaseReport{
				Phase:   p.phase,
				Outcome: StateCompleted,
				Fetched: len(items),
				Resumed: true,
			})
			log.WithField("phase", string(p.phase)).Info("Phase restored from checkpoint")
			continue
		}

		if abort := c.abortReason(ctx, result.Phases); abort != nil {
			result.Phases = append(result.Phases, PhaseReport{Phase: p.phase, Outcome: StateFailed, Err: abort})
			continue
		}

		if ran {
			if err := c.pause(ctx, log); err != nil {
				result.Phases = append(result.Phases, PhaseReport{Phase: p.phase, Outcome: StateFailed, Err: err})
				continue
			}
		}
		ran = true

		items, report := c.runPhase(ctx, post, p.phase, p.limit, log)
		result.Interactions = append(result.Interactions, items...)
		result.Phases = append(result.Phases, report)

		if report.Outcome == StateCompleted && c.sink != nil {
			if err := c.sink.PhaseDone(post, p.phase, items); err != nil {
				log.WithError(err).Warn("Could not record completed phase")
			}
		}
	}

	result.Finished = time.Now()
	return result, nil
}

// abortReason stops later phases after cancellation or a terminal auth failure
func (c *Controller) abortReason(ctx context.Context, done []PhaseReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range done {
		if r.Err != nil && errs.IsTerminal(errs.KindOf(r.Err)) {
			return r.Err
		}
	}
	return nil
}

func (c *Controller) fetchPost(ctx context.Context, sc target.Shortcode, log logger.Logger) (*models.PostSummary, error) {
	if _, err := c.pacer.Delay(ctx, 0, true); err != nil {
		return nil, err
	}

	policy := &retry.Config{
		MaxAttempts: c.cfg.MaxRetries + 1,
		Backoff:     &retry.RangeBackoff{Min: c.cfg.BackoffMin, Max: c.cfg.BackoffMax, Rand: c.rng},
		RetryIf: func(err error) bool {
			if errs.IsCanceled(err) {
				return false
			}
			kind := errs.KindOf(err)
			return errs.IsRetryable(kind) || (kind == errs.KindAuthExpired && c.refresher != nil)
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			c.recorder.Retry("post", string(errs.KindOf(err)))
			logger.LogBackoff(log, "post", string(errs.KindOf(err)), attempt, delay)
		},
		Sleep:   c.sleeper.Sleep,
		Context: ctx,
		Logger:  log,
	}

	post, err := retry.DoWithResult(func(attempt int) (*models.PostSummary, error) {
		post, err := c.source.FetchPost(ctx, sc)
		// no login on the last attempt, nothing would use it
		if errs.IsKind(err, errs.KindAuthExpired) && c.refresher != nil && attempt < policy.MaxAttempts {
			if rerr := c.refresh(ctx, log); rerr != nil {
				return nil, rerr
			}
		}
		return post, err
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("fetch post %s: %w", sc, err)
	}
	return post, nil
}

func (c *Controller) refresh(ctx context.Context, log logger.Logger) error {
	log.Warn("Session expired, logging in again")
	err := c.refresher.Refresh(ctx)
	c.recorder.Refresh(err == nil)
	if err != nil {
		log.WithError(err).Error("Session refresh failed")
		return err
	}
	return nil
}

func (c *Controller) open(post *models.PostSummary, phase Phase) instagram.Iterator {
	if phase == PhaseLikes {
		return c.source.Likes(post)
	}
	return c.source.Comments(post)
}

func (c *Controller) pause(ctx context.Context, log logger.Logger) error {
	d := retry.Uniform(c.rng, c.cfg.PhasePauseMin, c.cfg.PhasePauseMax)
	log.WithField("pause", d).Info("Pausing between phases")
	return c.sleeper.Sleep(ctx, d)
}

// runPhase drives one phase from Idle to Completed or Failed
func (c *Controller) runPhase(ctx context.Context, post *models.PostSummary, phase Phase, limit models.Limit, parent logger.Logger) (items []models.Interaction, report PhaseReport) {
	log := parent.WithField("phase", string(phase))
	st := &phaseState{phase: phase, state: StateIdle, limit: limit, started: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			st.state = StateFailed
			st.err = errs.Newf(errs.KindUnexpected, "panic during %s phase: %v", phase, r)
			log.WithError(st.err).Error("Phase aborted")
		}
		items, report = st.items, st.report()
		c.recorder.PhaseFinished(string(phase), st.state.String(), report.Duration)
		log.InfoWithFields("Phase finished", map[string]interface{}{
			"outcome": st.state.String(),
			"fetched": len(st.items),
			"retries": st.retries,
		})
	}()

	log.WithField("limit", limit.String()).Info("Starting phase")
	st.state = StateFetching
	it := c.open(post, phase)

	for st.state == StateFetching {
		if limit.Reached(len(st.items)) {
			log.WithField("limit", limit.String()).Info("Reached requested maximum")
			st.state = StateCompleted
			break
		}

		item, err := it.Next(ctx)
		if err == instagram.Done {
			st.state = StateCompleted
			break
		}
		if err != nil {
			st.err = err
			st.state = stateFor(err)
			if st.state == StateFailed {
				break
			}
			if !c.tryRestart(ctx, st, log) {
				st.state = StateFailed
				break
			}
			st.err = nil
			st.state = StateFetching
			it = c.open(post, phase)
			continue
		}

		st.items = append(st.items, item)
		c.recorder.ItemFetched(string(phase))
		n := len(st.items)
		if n%progressEvery == 0 {
			logger.LogPhaseProgress(log, string(phase), n, limit.String())
		}

		if _, err := c.pacer.Delay(ctx, n, false); err != nil {
			st.err = err
			st.state = StateFailed
		}
	}

	return st.items, st.report()
}

// tryRestart handles a RateLimited or AuthExpired phase and reports whether the
// phase may restart. st.err holds the error that caused the transition.
func (c *Controller) tryRestart(ctx context.Context, st *phaseState, log logger.Logger) bool {
	reason := st.state.String()
	if st.retries >= c.cfg.MaxRetries {
		log.WithError(st.err).WarnWithFields("Giving up on phase", map[string]interface{}{
			"retries": st.retries,
			"reason":  reason,
		})
		return false
	}

	switch st.state {
	case StateAuthExpired:
		if c.refresher == nil {
			return false
		}
		if err := c.refresh(ctx, log); err != nil {
			st.err = err
			return false
		}
		st.refreshes++

	case StateRateLimited:
		wait := retry.Uniform(c.rng, c.cfg.BackoffMin, c.cfg.BackoffMax) * time.Duration(st.retries+1)
		logger.LogBackoff(log, string(st.phase), reason, st.retries+1, wait)
		if err := c.sleeper.Sleep(ctx, wait); err != nil {
			st.err = err
			return false
		}
	}

	st.retries++
	c.recorder.Retry(string(st.phase), reason)
	log.WithField("collected", len(st.items)).Info("Restarting phase from the first page")
	return true
}
