package deadlettercmder

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/deadletter"
)

type tailCommander struct {
	lines  int
	follow bool
	json   bool
}

func newTailCmd() *cobra.Command {
	cmder := &tailCommander{}

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent dead-letter entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := logPath(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, cmd.OutOrStdout(), path)
		},
	}

	cmd.Flags().IntVarP(&cmder.lines, "lines", "n", 10, "Number of entries to print")
	cmd.Flags().BoolVarP(&cmder.follow, "follow", "f", false, "Keep printing entries as they are appended")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print entries as JSON lines")

	return cmd
}

func (c *tailCommander) run(ctx context.Context, w io.Writer, path string) error {
	entries, err := deadletter.List(path)
	if err != nil {
		return err
	}

	if c.lines >= 0 && len(entries) > c.lines {
		entries = entries[len(entries)-c.lines:]
	}
	for _, e := range entries {
		if err := printEntry(w, e, c.json); err != nil {
			return err
		}
	}

	if !c.follow {
		return nil
	}

	if err := touch(path); err != nil {
		return err
	}

	err = deadletter.Follow(ctx, path, func(e deadletter.Entry) error {
		return printEntry(w, e, c.json)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// touch creates the log so there is something to follow before the first
// dead letter is written.
func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return err
	}
	return f.Close()
}
