package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igengage/pkg/config"
	errs "igengage/pkg/errors"
	"igengage/pkg/instagram"
	"igengage/pkg/logger"
	"igengage/pkg/models"
	"igengage/pkg/ratelimit"
	"igengage/pkg/target"
)

// page is what one freshly opened iterator yields
type page struct {
	items []models.Interaction
	err   error
}

// fakeSource replays scripted pages. Each open consumes the next page; the
// last one repeats once the script runs out.
type fakeSource struct {
	mu       sync.Mutex
	post     *models.PostSummary
	postErrs []error
	pages    map[Phase][]page
	opened   map[Phase]int
	fetches  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		post:   &models.PostSummary{Shortcode: "ABC", MediaID: "1", OwnerUsername: "owner"},
		pages:  map[Phase][]page{},
		opened: map[Phase]int{},
	}
}

func (f *fakeSource) FetchPost(ctx context.Context, sc target.Shortcode) (*models.PostSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if len(f.postErrs) > 0 {
		err := f.postErrs[0]
		f.postErrs = f.postErrs[1:]
		return nil, err
	}
	return f.post, nil
}

func (f *fakeSource) Comments(post *models.PostSummary) instagram.Iterator {
	return f.open(PhaseComments)
}

func (f *fakeSource) Likes(post *models.PostSummary) instagram.Iterator {
	return f.open(PhaseLikes)
}

func (f *fakeSource) open(p Phase) instagram.Iterator {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.opened[p]
	f.opened[p]++

	script := f.pages[p]
	if len(script) == 0 {
		return &instagram.SliceIterator{}
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return &instagram.SliceIterator{Items: script[n].items, Err: script[n].err}
}

func interactions(kind models.Kind, n int) []models.Interaction {
	out := make([]models.Interaction, n)
	for i := range out {
		name := fmt.Sprintf("%s_%d", kind, i+1)
		out[i] = models.Interaction{Kind: kind, Username: name, ProfileURL: instagram.GetUserProfileURL(name)}
		if kind == models.KindComment {
			out[i].Text = "text " + name
		}
	}
	return out
}

type pacerCall struct {
	index     int
	forceLong bool
}

type fakePacer struct {
	calls []pacerCall
}

func (p *fakePacer) Delay(ctx context.Context, index int, forceLong bool) (time.Duration, error) {
	p.calls = append(p.calls, pacerCall{index, forceLong})
	return 0, ctx.Err()
}

type sleepLog struct {
	waits []time.Duration
	hook  func(n int) error
}

func (s *sleepLog) sleeper() ratelimit.Sleeper {
	return ratelimit.SleeperFunc(func(ctx context.Context, d time.Duration) error {
		s.waits = append(s.waits, d)
		if s.hook != nil {
			if err := s.hook(len(s.waits)); err != nil {
				return err
			}
		}
		return ctx.Err()
	})
}

type countingRefresher struct {
	calls int
	err   error
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.calls++
	return r.err
}

func testRetrievalConfig() config.RetrievalConfig {
	cfg := config.DefaultConfig().Retrieval
	cfg.MaxRetries = 3
	cfg.BackoffMin = 60 * time.Second
	cfg.BackoffMax = 90 * time.Second
	cfg.PhasePauseMin = 15 * time.Second
	cfg.PhasePauseMax = 20 * time.Second
	return cfg
}

func newTestController(src Source, opts ...Option) (*Controller, *fakePacer, *sleepLog) {
	pacer := &fakePacer{}
	sleeps := &sleepLog{}
	opts = append([]Option{
		WithSleeper(sleeps.sleeper()),
		WithRand(rand.New(rand.NewSource(7))),
		WithLogger(logger.NewTestLogger()),
	}, opts...)
	return NewController(src, pacer, testRetrievalConfig(), opts...), pacer, sleeps
}

func unbounded() models.Caps {
	return models.Caps{MaxLikes: models.Unbounded, MaxComments: models.Unbounded}
}

func TestCapBoundsEachPhase(t *testing.T) {
	for _, c := range []int{1, 3, 5, 8, 12} {
		t.Run(fmt.Sprintf("cap=%d", c), func(t *testing.T) {
			src := newFakeSource()
			src.pages[PhaseComments] = []page{{items: interactions(models.KindComment, 8)}}
			src.pages[PhaseLikes] = []page{{items: interactions(models.KindLike, 8)}}
			ctrl, pacer, _ := newTestController(src)

			caps := models.Caps{MaxLikes: models.Limit(c), MaxComments: models.Limit(c)}
			res, err := ctrl.FetchInteractions(context.Background(), "ABC", caps)
			require.NoError(t, err)

			want := c
			if want > 8 {
				want = 8
			}
			assert.Equal(t, want, res.Count(models.KindComment))
			assert.Equal(t, want, res.Count(models.KindLike))
			assert.True(t, res.Complete())

			// one forced break before the post, then one delay per item
			require.Len(t, pacer.calls, 1+2*want)
			assert.Equal(t, pacerCall{0, true}, pacer.calls[0])
			assert.Equal(t, pacerCall{1, false}, pacer.calls[1])
			assert.Equal(t, pacerCall{want, false}, pacer.calls[want])
		})
	}
}

func TestUnboundedCollectsUntilExhausted(t *testing.T) {
	src := newFakeSource()
	src.pages[PhaseComments] = []page{{items: interactions(models.KindComment, 25)}}
	src.pages[PhaseLikes] = []page{{items: interactions(models.KindLike, 31)}}
	ctrl, _, _ := newTestController(src)

	res, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.NoError(t, err)

	assert.Len(t, res.Interactions, 56)
	assert.Equal(t, 25, res.Count(models.KindComment))
	assert.Equal(t, 31, res.Count(models.KindLike))
	assert.NoError(t, res.Err())
}

func TestCommentsPrecedeLikes(t *testing.T) {
	src := newFakeSource()
	src.pages[PhaseComments] = []page{{items: interactions(models.KindComment, 2)}}
	src.pages[PhaseLikes] = []page{{items: interactions(models.KindLike, 2)}}
	ctrl, _, sleeps := newTestController(src)

	res, err := ctrl.FetchInteractions(context.Background(), "ABC", models.DefaultCaps())
	require.NoError(t, err)

	assert.Equal(t, []string{"comment_1", "comment_2", "like_1", "like_2"}, models.Usernames(res.Interactions))
	assert.Equal(t, "text comment_1", res.Interactions[0].Text)
	assert.Empty(t, res.Interactions[2].Text)

	require.Len(t, res.Phases, 2)
	assert.Equal(t, PhaseComments, res.Phases[0].Phase)
	assert.Equal(t, PhaseLikes, res.Phases[1].Phase)

	// the only sleep is the pause between phases
	require.Len(t, sleeps.waits, 1)
	assert.GreaterOrEqual(t, sleeps.waits[0], 15*time.Second)
	assert.LessOrEqual(t, sleeps.waits[0], 20*time.Second)
}

func TestAuthExpiredExhaustsRefreshCeiling(t *testing.T) {
	src := newFakeSource()
	src.pages[PhaseLikes] = []page{{err: errs.New(errs.KindAuthExpired, "login_required")}}
	refresher := &countingRefresher{}
	ctrl, _, _ := newTestController(src, WithRefresher(refresher))

	res, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.NoError(t, err)

	assert.Equal(t, 3, refresher.calls)
	likes, ok := res.Phase(PhaseLikes)
	require.True(t, ok)
	assert.Equal(t, StateFailed, likes.Outcome)
	assert.Equal(t, 3, likes.Retries)
	assert.Equal(t, 3, likes.Refreshes)
	assert.Equal(t, errs.KindAuthExpired, errs.KindOf(likes.Err))
	assert.Equal(t, 4, src.opened[PhaseLikes])
	assert.False(t, res.Complete())
}

func TestRateLimitedKeepsPartialResults(t *testing.T) {
	limited := errs.New(errs.KindPlatformRateLimited, "Please wait a few minutes")
	src := newFakeSource()
	src.pages[PhaseComments] = []page{
		{items: interactions(models.KindComment, 7), err: limited},
		{err: limited},
	}
	ctrl, _, sleeps := newTestController(src)

	res, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.NoError(t, err, "phase failures never escape as errors")
	require.NotNil(t, res)

	comments, _ := res.Phase(PhaseComments)
	assert.Equal(t, StateFailed, comments.Outcome)
	assert.Equal(t, 7, comments.Fetched)
	assert.Equal(t, 3, comments.Retries)
	assert.Equal(t, 7, res.Count(models.KindComment))
	assert.Equal(t, errs.KindPlatformRateLimited, errs.KindOf(res.Err()))

	// three scaled backoffs, then the inter-phase pause
	require.Len(t, sleeps.waits, 4)
	for i, w := range sleeps.waits[:3] {
		scale := time.Duration(i + 1)
		assert.GreaterOrEqual(t, w, 60*time.Second*scale, "backoff %d", i)
		assert.LessOrEqual(t, w, 90*time.Second*scale, "backoff %d", i)
	}
}

func TestTransientErrorsRestartPhase(t *testing.T) {
	src := newFakeSource()
	src.pages[PhaseComments] = []page{
		{items: interactions(models.KindComment, 2), err: errs.New(errs.KindTransientConnectivity, "reset")},
		{items: interactions(models.KindComment, 3)},
	}
	ctrl, _, _ := newTestController(src)

	res, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.NoError(t, err)

	comments, _ := res.Phase(PhaseComments)
	assert.Equal(t, StateCompleted, comments.Outcome)
	assert.Equal(t, 1, comments.Retries)
	// pagination restarts, so the first two are collected twice
	assert.Equal(t, []string{"comment_1", "comment_2", "comment_1", "comment_2", "comment_3"},
		models.Usernames(res.Interactions))
}

func TestCapHoldsAcrossRestart(t *testing.T) {
	src := newFakeSource()
	src.pages[PhaseLikes] = []page{
		{items: interactions(models.KindLike, 4), err: errs.New(errs.KindAuthExpired, "expired")},
		{items: interactions(models.KindLike, 10)},
	}
	refresher := &countingRefresher{}
	ctrl, _, _ := newTestController(src, WithRefresher(refresher))

	caps := models.Caps{MaxComments: 5, MaxLikes: 6}
	res, err := ctrl.FetchInteractions(context.Background(), "ABC", caps)
	require.NoError(t, err)

	likes, _ := res.Phase(PhaseLikes)
	assert.Equal(t, StateCompleted, likes.Outcome)
	assert.Equal(t, 6, likes.Fetched)
	assert.Equal(t, 1, refresher.calls)
}

func TestRefreshFailureEndsRun(t *testing.T) {
	src := newFakeSource()
	src.pages[PhaseComments] = []page{{items: interactions(models.KindComment, 1), err: errs.New(errs.KindAuthExpired, "expired")}}
	src.pages[PhaseLikes] = []page{{items: interactions(models.KindLike, 5)}}
	refresher := &countingRefresher{err: errs.New(errs.KindInvalidCredentials, "bad_password")}
	ctrl, _, sleeps := newTestController(src, WithRefresher(refresher))

	res, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.NoError(t, err)

	assert.Equal(t, 1, refresher.calls)
	require.Len(t, res.Phases, 2)
	assert.Equal(t, StateFailed, res.Phases[0].Outcome)
	assert.Equal(t, errs.KindInvalidCredentials, errs.KindOf(res.Phases[0].Err))
	assert.Equal(t, StateFailed, res.Phases[1].Outcome)
	assert.Zero(t, src.opened[PhaseLikes], "likes must not run after a terminal auth failure")
	assert.Len(t, res.Interactions, 1)
	assert.Empty(t, sleeps.waits)
}

func TestAuthExpiredWithoutRefresherFails(t *testing.T) {
	src := newFakeSource()
	src.pages[PhaseComments] = []page{{err: errs.New(errs.KindAuthExpired, "expired")}}
	ctrl, _, _ := newTestController(src)

	res, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.NoError(t, err)

	comments, _ := res.Phase(PhaseComments)
	assert.Equal(t, StateFailed, comments.Outcome)
	assert.Zero(t, comments.Retries)
	likes, _ := res.Phase(PhaseLikes)
	assert.Equal(t, StateCompleted, likes.Outcome)
}

func TestUnexpectedErrorIsNotRetried(t *testing.T) {
	src := newFakeSource()
	src.pages[PhaseComments] = []page{{items: interactions(models.KindComment, 3), err: errs.New(errs.KindUnexpected, "media not available")}}
	ctrl, _, sleeps := newTestController(src)

	res, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.NoError(t, err)

	comments, _ := res.Phase(PhaseComments)
	assert.Equal(t, StateFailed, comments.Outcome)
	assert.Equal(t, 3, comments.Fetched)
	assert.Zero(t, comments.Retries)
	assert.Equal(t, 1, src.opened[PhaseComments])
	assert.Len(t, sleeps.waits, 1)
}

func TestPostFetchRetried(t *testing.T) {
	src := newFakeSource()
	src.postErrs = []error{
		errs.New(errs.KindTransientConnectivity, "timeout"),
		errs.New(errs.KindAuthExpired, "expired"),
	}
	refresher := &countingRefresher{}
	ctrl, _, sleeps := newTestController(src, WithRefresher(refresher))

	res, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.NoError(t, err)

	assert.Equal(t, "owner", res.Post.OwnerUsername)
	assert.Equal(t, 3, src.fetches)
	assert.Equal(t, 1, refresher.calls)
	require.GreaterOrEqual(t, len(sleeps.waits), 2)
	assert.GreaterOrEqual(t, sleeps.waits[0], 60*time.Second)
	assert.GreaterOrEqual(t, sleeps.waits[1], 120*time.Second)
}

func TestPostFetchAuthExpiredHonorsRefreshCeiling(t *testing.T) {
	src := newFakeSource()
	for i := 0; i < 10; i++ {
		src.postErrs = append(src.postErrs, errs.New(errs.KindAuthExpired, "expired"))
	}
	refresher := &countingRefresher{}
	ctrl, _, _ := newTestController(src, WithRefresher(refresher))

	res, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.Error(t, err)

	assert.Nil(t, res)
	assert.Equal(t, errs.KindAuthExpired, errs.KindOf(err))
	assert.Equal(t, 4, src.fetches)
	assert.Equal(t, 3, refresher.calls)
}

func TestPostFetchFailure(t *testing.T) {
	src := newFakeSource()
	src.postErrs = []error{errs.New(errs.KindUnexpected, "media not found")}
	ctrl, _, _ := newTestController(src)

	res, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.Error(t, err)

	assert.Nil(t, res)
	assert.Equal(t, errs.KindUnexpected, errs.KindOf(err))
	assert.Equal(t, 1, src.fetches)
	assert.Zero(t, src.opened[PhaseComments])
}

func TestCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newFakeSource()
	src.pages[PhaseComments] = []page{{items: interactions(models.KindComment, 4), err: errs.New(errs.KindPlatformRateLimited, "429")}}
	ctrl, _, sleeps := newTestController(src)
	sleeps.hook = func(n int) error {
		cancel()
		return nil
	}

	res, err := ctrl.FetchInteractions(ctx, "ABC", unbounded())
	require.NoError(t, err)

	comments, _ := res.Phase(PhaseComments)
	assert.Equal(t, StateFailed, comments.Outcome)
	assert.True(t, errors.Is(comments.Err, context.Canceled))
	assert.Equal(t, 4, comments.Fetched)

	likes, _ := res.Phase(PhaseLikes)
	assert.Equal(t, StateFailed, likes.Outcome)
	assert.Zero(t, src.opened[PhaseLikes])
}

func TestResumeSkipsCompletedPhase(t *testing.T) {
	src := newFakeSource()
	src.pages[PhaseLikes] = []page{{items: interactions(models.KindLike, 2)}}
	ctrl, _, sleeps := newTestController(src)

	saved := interactions(models.KindComment, 3)
	res, err := ctrl.Fetch(context.Background(), Request{
		Shortcode: "ABC",
		Caps:      unbounded(),
		Completed: map[Phase][]models.Interaction{PhaseComments: saved},
	})
	require.NoError(t, err)

	assert.Zero(t, src.opened[PhaseComments])
	assert.Len(t, res.Interactions, 5)
	comments, _ := res.Phase(PhaseComments)
	assert.True(t, comments.Resumed)
	assert.Equal(t, 3, comments.Fetched)
	assert.Empty(t, sleeps.waits, "no pause when only one phase runs")
}

type recordingSink struct {
	phases []Phase
	counts []int
}

func (s *recordingSink) PhaseDone(post *models.PostSummary, phase Phase, items []models.Interaction) error {
	s.phases = append(s.phases, phase)
	s.counts = append(s.counts, len(items))
	return nil
}

func TestPhaseSinkSeesCompletedPhasesOnly(t *testing.T) {
	src := newFakeSource()
	src.pages[PhaseComments] = []page{{items: interactions(models.KindComment, 2)}}
	src.pages[PhaseLikes] = []page{{err: errs.New(errs.KindUnexpected, "boom")}}
	sink := &recordingSink{}
	ctrl, _, _ := newTestController(src, WithPhaseSink(sink))

	_, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.NoError(t, err)

	assert.Equal(t, []Phase{PhaseComments}, sink.phases)
	assert.Equal(t, []int{2}, sink.counts)
}

type panickingIterator struct{}

func (panickingIterator) Next(ctx context.Context) (models.Interaction, error) {
	panic("decoder exploded")
}

type panickingSource struct{ *fakeSource }

func (p panickingSource) Comments(post *models.PostSummary) instagram.Iterator {
	return panickingIterator{}
}

func TestPanicInPhaseBecomesUnexpected(t *testing.T) {
	ctrl, _, _ := newTestController(panickingSource{newFakeSource()})

	res, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.NoError(t, err)

	comments, _ := res.Phase(PhaseComments)
	assert.Equal(t, StateFailed, comments.Outcome)
	assert.Equal(t, errs.KindUnexpected, errs.KindOf(comments.Err))
	likes, _ := res.Phase(PhaseLikes)
	assert.Equal(t, StateCompleted, likes.Outcome)
}

func TestInvalidCapsRejected(t *testing.T) {
	ctrl, _, _ := newTestController(newFakeSource())

	_, err := ctrl.FetchInteractions(context.Background(), "ABC", models.Caps{MaxLikes: 0, MaxComments: 5})
	assert.Error(t, err)
}

type countingRecorder struct {
	items     map[string]int
	retries   int
	refreshes int
	outcomes  []string
}

func (r *countingRecorder) ItemFetched(phase string)   { r.items[phase]++ }
func (r *countingRecorder) Retry(phase, reason string) { r.retries++ }
func (r *countingRecorder) Refresh(ok bool)            { r.refreshes++ }
func (r *countingRecorder) PhaseFinished(phase, outcome string, d time.Duration) {
	r.outcomes = append(r.outcomes, phase+":"+outcome)
}

func TestRecorderObservesRun(t *testing.T) {
	src := newFakeSource()
	src.pages[PhaseComments] = []page{
		{items: interactions(models.KindComment, 1), err: errs.New(errs.KindAuthExpired, "expired")},
		{items: interactions(models.KindComment, 2)},
	}
	src.pages[PhaseLikes] = []page{{items: interactions(models.KindLike, 4)}}
	rec := &countingRecorder{items: map[string]int{}}
	ctrl, _, _ := newTestController(src, WithRecorder(rec), WithRefresher(&countingRefresher{}))

	_, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.NoError(t, err)

	assert.Equal(t, 3, rec.items["comments"])
	assert.Equal(t, 4, rec.items["likes"])
	assert.Equal(t, 1, rec.retries)
	assert.Equal(t, 1, rec.refreshes)
	assert.Equal(t, []string{"comments:completed", "likes:completed"}, rec.outcomes)
}

func TestRecordersFanOut(t *testing.T) {
	a := &countingRecorder{items: map[string]int{}}
	b := &countingRecorder{items: map[string]int{}}
	src := newFakeSource()
	src.pages[PhaseComments] = []page{{items: interactions(models.KindComment, 2)}}
	src.pages[PhaseLikes] = []page{{items: interactions(models.KindLike, 1)}}
	ctrl, _, _ := newTestController(src, WithRecorder(Recorders{a, b}))

	_, err := ctrl.FetchInteractions(context.Background(), "ABC", unbounded())
	require.NoError(t, err)

	for _, rec := range []*countingRecorder{a, b} {
		assert.Equal(t, 2, rec.items["comments"])
		assert.Equal(t, 1, rec.items["likes"])
		assert.Len(t, rec.outcomes, 2)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "rate_limited", StateRateLimited.String())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateAuthExpired.Terminal())
	assert.Equal(t, models.KindLike, PhaseLikes.Kind())
	assert.Equal(t, models.KindComment, PhaseComments.Kind())
}
