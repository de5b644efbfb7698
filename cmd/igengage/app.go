package main

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"igengage/pkg/checkpoint"
	"igengage/pkg/config"
	errs "igengage/pkg/errors"
	"igengage/pkg/export"
	"igengage/pkg/instagram"
	"igengage/pkg/logger"
	"igengage/pkg/metrics"
	"igengage/pkg/models"
	"igengage/pkg/ratelimit"
	"igengage/pkg/retrieval"
	"igengage/pkg/session"
	"igengage/pkg/target"
	"igengage/pkg/ui"
)

// app holds everything one CLI invocation needs
type app struct {
	cfg      *config.Config
	log      logger.Logger
	fs       afero.Fs
	out      *ui.Printer
	prompt   *ui.Prompter
	notifier *ui.Notifier
	metrics  *metrics.Collector
	client   *instagram.Client
	sessions *session.Manager
	pacer    *ratelimit.Pacer
	writer   *export.Writer
	account  string
}

func newApp(cfg *config.Config) (*app, error) {
	log := logger.GetLogger()
	fs := afero.NewOsFs()
	prompt := ui.Stdin()

	collector, err := metrics.NewCollector()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	client, err := instagram.NewClient(cfg.Instagram,
		instagram.WithLimiter(ratelimit.NewRequestBudget(cfg.RateLimit.RequestsPerMinute)),
		instagram.WithObserver(collector),
		instagram.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	store, err := session.NewStore(cfg.Session, fs, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	writer, err := export.NewWriter(fs, cfg.Output, export.WithWriterLogger(log))
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(client, store, cfg.Auth,
		session.WithCredentialProvider(session.EnvCredentials{Fallback: prompt}),
		session.WithSecondFactorProvider(prompt),
		session.WithLogger(log),
	)

	out := ui.Stdout(quiet)
	return &app{
		cfg:      cfg,
		log:      log,
		fs:       fs,
		out:      out,
		prompt:   prompt,
		notifier: ui.NewNotifier(out, notify),
		metrics:  collector,
		client:   client,
		sessions: sessions,
		pacer:    ratelimit.NewPacer(cfg.RateLimit, ratelimit.WithLogger(log)),
		writer:   writer,
	}, nil
}

// resolveAccount picks the account from args, flags, config, or a prompt
func (a *app) resolveAccount(ctx context.Context, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		a.account = args[0]
	} else if a.account == "" {
		a.account = a.cfg.Instagram.Account
	}
	if a.account == "" {
		name, err := a.prompt.Account(ctx)
		if err != nil {
			return "", err
		}
		a.account = name
	}
	a.account = instagram.SanitizeUsername(a.account)
	return a.account, nil
}

// login attaches a valid session for the account
func (a *app) login(ctx context.Context, forceNew bool) error {
	if _, err := a.resolveAccount(ctx, nil); err != nil {
		return err
	}
	if _, err := a.sessions.EnsureValid(ctx, a.account, instagram.Credentials{}, forceNew); err != nil {
		return fmt.Errorf("login as %s failed: %w", a.account, err)
	}
	a.out.Success("Logged in as @" + a.account)
	return nil
}

func (a *app) defaultCaps() models.Caps {
	return models.Caps{
		MaxLikes:    models.LimitFromInput(a.cfg.Retrieval.MaxLikes),
		MaxComments: models.LimitFromInput(a.cfg.Retrieval.MaxComments),
	}
}

type fetchOptions struct {
	caps   models.Caps
	format string
	resume bool
}

// fetch retrieves one post and exports whatever was collected. Phase
// failures are reported in the result; the error covers failures before
// any phase ran.
func (a *app) fetch(ctx context.Context, sc target.Shortcode, opts fetchOptions) (*retrieval.Result, string, error) {
	log := a.log.WithContext(ctx).WithField("shortcode", sc.String())
	progress := ui.NewProgress(a.out, opts.caps)

	copts := []retrieval.Option{
		retrieval.WithRefresher(retrieval.RefresherFunc(func(ctx context.Context) error {
			return a.sessions.Refresh(ctx, a.account)
		})),
		retrieval.WithRecorder(retrieval.Recorders{a.metrics, progress}),
		retrieval.WithLogger(log),
	}
	req := retrieval.Request{Shortcode: sc, Caps: opts.caps}

	var cp *checkpoint.Manager
	if a.cfg.Retrieval.CheckpointPhase {
		var err error
		cp, err = checkpoint.NewManager(a.fs, a.cfg.Retrieval.CheckpointDir, sc, log)
		if err != nil {
			return nil, "", err
		}
		if opts.resume {
			done, err := cp.Completed()
			if err != nil {
				log.WithError(err).Warn("Ignoring unreadable checkpoint")
			}
			req.Completed = done
		} else if err := cp.Delete(); err != nil {
			log.WithError(err).Warn("Could not clear old checkpoint")
		}
		copts = append(copts, retrieval.WithPhaseSink(cp))
	}

	if prev, err := a.writer.Existing(sc.String()); err == nil && len(prev) > 0 {
		log.WithField("previous", len(prev)).Info("Post was exported before")
	}

	a.out.Highlight(fmt.Sprintf("[FETCHING] %s (likes: %s, comments: %s)", sc.PostURL(), opts.caps.MaxLikes, opts.caps.MaxComments))
	res, err := retrieval.NewController(a.client, a.pacer, a.cfg.Retrieval, copts...).Fetch(ctx, req)
	if err != nil {
		return nil, "", err
	}

	path, err := a.writer.Write(opts.format, *res.Post, res.Interactions)
	if err != nil {
		return res, "", err
	}

	if cp != nil && res.Complete() {
		if err := cp.Delete(); err != nil {
			log.WithError(err).Warn("Could not remove checkpoint")
		}
	}

	a.out.Summary(res, path)
	if res.Complete() {
		a.notifier.Success(sc.String(), fmt.Sprintf("%d interactions exported", len(res.Interactions)))
	} else {
		a.notifier.Failure(sc.String(), "retrieval incomplete, partial export written")
	}
	return res, path, nil
}

// abortsRun reports whether err means no further post can succeed
func abortsRun(err error) bool {
	if err == nil {
		return false
	}
	return errs.IsCanceled(err) || errs.IsTerminal(errs.KindOf(err))
}

// close flushes the metrics textfile when one is configured
func (a *app) close() {
	path := a.cfg.Metrics.TextfilePath
	if path == "" {
		return
	}
	if err := a.metrics.WriteToTextfile(path); err != nil {
		a.log.WithError(err).Warn("Could not write metrics")
		return
	}
	a.log.WithField("path", path).Debug("Metrics written")
}

// hasCheckpoint reports whether an earlier run left completed phases
func (a *app) hasCheckpoint(sc target.Shortcode) bool {
	if !a.cfg.Retrieval.CheckpointPhase {
		return false
	}
	cp, err := checkpoint.NewManager(a.fs, a.cfg.Retrieval.CheckpointDir, sc, a.log)
	if err != nil {
		a.log.WithError(err).Warn("Could not open checkpoint directory")
		return false
	}
	return cp.Exists()
}
