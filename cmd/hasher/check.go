package main

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:     "check [path]",
	Aliases: []string{"verify"},
	Short:   "Verify a directory against its manifest",
	Long: `Verify every file listed in the manifest of path (size.hasher or
xxh3.hasher) and report each file whose recorded value no longer matches.

Missing files are reported but only counted as invalid with
--count-missing. Files not listed in the manifest are reported with
--untracked. The command exits 1 when any file is invalid.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	result, err := check(ctx, root, true)
	if err != nil {
		return err
	}
	if err := printResult(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Passed() {
		return errVerificationFailed
	}
	return nil
}
