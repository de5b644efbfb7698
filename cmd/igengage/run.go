package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	errs "igengage/pkg/errors"
	"igengage/pkg/target"
	"igengage/pkg/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive session",
	Long: `Log in, then keep asking for post URLs until you type 'exit'.

For every post you are asked how many likes and comments to collect;
press enter for the configured default or type 0 to collect everything.
An invalid URL is reported and the loop continues. A failed login ends
the session.`,
	Args: cobra.NoArgs,
	RunE: runInteractive,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.out.Banner()
	if err := a.login(ctx, false); err != nil {
		return err
	}

	for {
		raw, err := a.prompt.PromptTarget(ctx)
		if errors.Is(err, ui.ErrExit) {
			a.out.Success("Bye")
			return nil
		}
		if err != nil {
			return err
		}

		sc, err := target.Resolve(raw)
		if err != nil {
			a.out.Error("Invalid post URL", err)
			continue
		}

		err = recoverUnexpected(func() error { return a.runPost(ctx, sc) })
		if err == nil {
			continue
		}
		if errors.Is(err, ui.ErrExit) {
			a.out.Success("Bye")
			return nil
		}
		if abortsRun(err) {
			return err
		}
		a.log.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"shortcode": sc.String(),
			"kind":      string(errs.KindOf(err)),
		}).Error("Post retrieval failed")
		a.out.Error("Post retrieval failed", err)
	}
}

// runPost asks for caps, fetches one post and exports it
func (a *app) runPost(ctx context.Context, sc target.Shortcode) error {
	caps, err := a.prompt.PromptCaps(ctx, a.defaultCaps())
	if err != nil {
		return err
	}

	resume := false
	if a.hasCheckpoint(sc) {
		if resume, err = a.prompt.Confirm(ctx, "An interrupted run of this post was found. Resume it?"); err != nil {
			return err
		}
	}

	res, _, err := a.fetch(ctx, sc, fetchOptions{caps: caps, format: a.writer.DefaultFormat(), resume: resume})
	if err == nil && res != nil {
		err = res.Err()
	}
	return err
}
