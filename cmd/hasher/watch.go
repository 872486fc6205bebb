package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jamesainslie/hasher/pkg/hasher/config"
	"github.com/jamesainslie/hasher/pkg/hasher/watch"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-verify a directory whenever it changes",
	Long: `Verify path against its manifest, then watch the tree and verify
again after every burst of changes. Changes to the manifest itself are
ignored. Stop with Ctrl+C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", config.DefaultDebounce, "quiet period before re-verifying")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}
	f, err := buildFilter()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	out := cmd.OutOrStdout()
	verifyOnce := func(ctx context.Context) error {
		result, err := check(ctx, root, false)
		if err != nil {
			return err
		}
		return printResult(out, result)
	}

	if err := verifyOnce(ctx); err != nil {
		return err
	}

	w, err := watch.New(f.Predicate())
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Watch(root); err != nil {
		return err
	}
	log.Info("watching", "root", root, "directories", len(w.Watched()), "debounce", cfg.Watch.Debounce)
	if !cfg.Quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", root)
	}

	w.Run(ctx, cfg.Watch.Debounce, func(ctx context.Context, changed []string) {
		log.Debug("re-verifying", "changed", len(changed))
		if !cfg.Quiet {
			fmt.Fprintf(out, "\n%s: %d paths changed\n", time.Now().Format(time.TimeOnly), len(changed))
		}
		if err := verifyOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error("verification failed", "error", err)
		}
	})

	return nil
}
