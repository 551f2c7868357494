package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/skobkin/menulink/internal/app"
	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	var (
		short    bool
		check    bool
		endpoint string
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, app.BuildVersion())
			} else {
				fmt.Fprintf(out, "%s %s\n", app.Name, app.BuildString())
				fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
				fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
				fmt.Fprintf(out, "  Source:     %s\n", app.SourceURL)
			}
			if !check {
				return nil
			}

			result, err := app.NewUpdateChecker(app.UpdateCheckerOptions{Endpoint: endpoint}).Check(cmd.Context(), app.BuildVersion())
			if err != nil {
				return fmt.Errorf("check for updates: %w", err)
			}
			printUpdateCheck(cmd, result)

			return nil
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")
	cmd.Flags().BoolVar(&check, "check", false, "ask the release server whether a newer version exists")
	cmd.Flags().StringVar(&endpoint, "release-url", "", "release API to query")
	_ = cmd.Flags().MarkHidden("release-url")

	return cmd
}

func printUpdateCheck(cmd *cobra.Command, result app.UpdateCheck) {
	out := cmd.OutOrStdout()
	if !result.Available {
		fmt.Fprintf(out, "up to date (latest %s)\n", result.Latest.Version)
		return
	}

	fmt.Fprintf(out, "update available: %s -> %s\n", result.Current, result.Latest.Version)
	for _, rel := range result.Newer {
		published := ""
		if !rel.PublishedAt.IsZero() {
			published = " " + rel.PublishedAt.Format(time.DateOnly)
		}
		fmt.Fprintf(out, "  %s%s %s\n", rel.Version, published, rel.URL)
	}
}
