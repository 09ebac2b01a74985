package cmd

import (
	"errors"
	"fmt"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// githubRepoSlug is the repository whose releases self-update installs.
const githubRepoSlug = "giantswarm/kubedeck"

// devVersion is the version of binaries built without release ldflags.
const devVersion = "dev"

// newSelfUpdateCmd creates the Cobra command that replaces the running binary
// with the latest GitHub release.
func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update kubedeck to the latest version",
		Long: `Checks the GitHub releases of kubedeck for a newer version and, if one
exists, replaces the current binary with it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd)
		},
	}
}

func runSelfUpdate(cmd *cobra.Command) error {
	current := rootCmd.Version
	if current == "" || current == devVersion {
		return errors.New("cannot self-update a development version; install a release build first")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(githubRepoSlug))
	if err != nil {
		return fmt.Errorf("failed to look up the latest release: %w", err)
	}
	if !found {
		return fmt.Errorf("no release found for %s", githubRepoSlug)
	}

	if latest.LessOrEqual(current) {
		_, _ = fmt.Fprintf(out, "kubedeck %s is already the latest version\n", current)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("failed to locate the running executable: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Updating kubedeck from %s to %s...\n", current, latest.Version())
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("failed to install release %s: %w", latest.Version(), err)
	}

	_, _ = fmt.Fprintf(out, "Updated to kubedeck %s\n", latest.Version())
	return nil
}
