package deadlettercmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/deadletter"
)

type listCommander struct {
	json      bool
	namespace string
}

func newListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every dead-letter entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := logPath(cmd)
			if err != nil {
				return err
			}
			return cmder.run(cmd.OutOrStdout(), path)
		},
	}

	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print entries as JSON lines")
	cmd.Flags().StringVarP(&cmder.namespace, "namespace", "n", "", "Only show entries for this namespace")

	return cmd
}

func (c *listCommander) run(w io.Writer, path string) error {
	entries, err := deadletter.List(path)
	if err != nil {
		return err
	}

	shown := 0
	for _, e := range entries {
		if c.namespace != "" && e.Namespace != c.namespace {
			continue
		}
		if err := printEntry(w, e, c.json); err != nil {
			return err
		}
		shown++
	}

	if shown == 0 && !c.json {
		fmt.Fprintf(w, "  %s %s\n", cliui.SuccessMark, cliui.DimStyle.Render("No dead-lettered writes."))
	}

	return nil
}
