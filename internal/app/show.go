package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent observations.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rows, err := store.RecentDataStatus(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no observations found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tRemaining %\tRemaining MB\tRecorded")

	for _, row := range rows {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%d\t%s\n",
			row.DateTime.UTC().Format(time.RFC3339),
			row.RemainingPercentage,
			row.RemainingDataMB,
			row.CreatedAt.UTC().Format(time.RFC3339),
		)
	}

	return writer.Flush()
}
