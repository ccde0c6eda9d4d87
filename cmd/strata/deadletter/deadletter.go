// Package deadlettercmder provides commands for inspecting the dead-letter
// log: writes that exhausted their durable retries.
package deadlettercmder

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/deadletter"
	"github.com/papercomputeco/strata/pkg/dotdir"
	"github.com/papercomputeco/strata/pkg/utils"
)

const lastErrorWidth = 160

const deadLetterLongDesc string = `Inspect the dead-letter log.

A write is dead-lettered when the durable store rejected it on every retry.
The entry records the key, the version that was pending, a digest of the
payload and the last error. The pending value itself stays in the fast
tiers; flushing the key re-submits it.

  strata deadletter list              Print every entry
  strata deadletter tail -n 5         Print the most recent entries
  strata deadletter tail --follow     Stream new entries as they arrive`

const deadLetterShortDesc string = "Inspect writes that exhausted their retries"

func NewDeadLetterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletter",
		Aliases: []string{"dlq"},
		Short:   deadLetterShortDesc,
		Long:    deadLetterLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newTailCmd())

	return cmd
}

func logPath(cmd *cobra.Command) (string, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	return dotdir.NewManager().Path(configDir, deadletter.FileName)
}

func printEntry(w io.Writer, e deadletter.Entry, asJSON bool) error {
	if asJSON {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	_, err := fmt.Fprintf(w, "%s %s %s %s\n    %s\n",
		cliui.FailMark,
		cliui.DimStyle.Render(e.Timestamp.Format("2006-01-02 15:04:05")),
		cliui.KeyStyle.Render(e.Key),
		cliui.ValueStyle.Render(fmt.Sprintf("v%d after %d attempts", e.TargetVersion, e.Attempts)),
		cliui.WarnStyle.Render(utils.Truncate(e.LastError, lastErrorWidth)),
	)
	return err
}
