package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"igengage/pkg/target"
)

var (
	maxLikes    int
	maxComments int
	format      string
	resume      bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <post-url>",
	Short: "Collect the likes and comments of one post",
	Long: `Collect the likes and comments of one post and export them.

Comments are collected first, then likes. Each phase stops at its cap;
use 0 to collect everything. Whatever was collected is exported even if a
phase fails, and the command then exits with status 1.`,
	Example: `  # Defaults from the config file (100 likes, 100 comments, xlsx)
  igengage fetch https://www.instagram.com/p/ABC123/

  # Every comment, 500 likes, as a username list
  igengage fetch https://www.instagram.com/reel/XYZ9/ --max-comments 0 --max-likes 500 --format txt

  # Continue after an interruption, skipping phases that finished
  igengage fetch https://www.instagram.com/p/ABC123/ --resume`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().IntVar(&maxLikes, "max-likes", 100, "maximum likes to collect, 0 for all")
	fetchCmd.Flags().IntVar(&maxComments, "max-comments", 100, "maximum comments to collect, 0 for all")
	fetchCmd.Flags().StringVarP(&format, "format", "f", "", "export format (xlsx, txt, json)")
	fetchCmd.Flags().BoolVar(&resume, "resume", false, "skip phases completed by an interrupted run")
}

func fetchFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("max-likes") {
		flags["max-likes"] = maxLikes
	}
	if cmd.Flags().Changed("max-comments") {
		flags["max-comments"] = maxComments
	}
	if format != "" {
		flags["format"] = format
	}
	return flags
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sc, err := target.Resolve(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(fetchFlags(cmd))
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.login(ctx, false); err != nil {
		return err
	}

	res, path, err := a.fetch(ctx, sc, fetchOptions{
		caps:   a.defaultCaps(),
		format: cfg.Output.Format,
		resume: resume,
	})
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		if path != "" {
			return fmt.Errorf("partial export written to %s: %w", path, err)
		}
		return err
	}
	return nil
}
