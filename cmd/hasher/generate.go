package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jamesainslie/hasher/pkg/hasher/types"
	"github.com/spf13/cobra"
)

var sizeCmd = &cobra.Command{
	Use:   "size [path]",
	Short: "Record the size of every file",
	Long: `Record the size in bytes of every file under path (default: the
configured default path) into size.hasher in that directory.

Any unreadable file or directory aborts the run; no manifest is written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd, args, types.Size)
	},
}

var xxh3Cmd = &cobra.Command{
	Use:   "xxh3 [path]",
	Short: "Record the XXH3-64 fingerprint of every file",
	Long: `Record the XXH3-64 fingerprint of the content of every file under
path (default: the configured default path) into xxh3.hasher in that
directory.

Any unreadable file or directory aborts the run; no manifest is written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd, args, types.Fingerprint)
	},
}

func init() {
	rootCmd.AddCommand(sizeCmd)
	rootCmd.AddCommand(xxh3Cmd)
}

// runGenerate builds the kind manifest for the root in args.
func runGenerate(cmd *cobra.Command, args []string, kind types.Kind) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	result, err := generate(ctx, kind, root, true)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), result)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
