/*
Package cli provides helpers shared by the luthien commands.

Output Formatting:

Command results are rendered as text, JSON, or CSV. Tabular results use
Table so every format can render them:

	t := &cli.Table{Headers: []string{"NAME", "TYPE"}}
	t.Append("root", "sequential")
	if err := cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, t); err != nil {
		return err
	}

Progress Reporting:

Bulk operations such as policy imports report progress per item:

	progress := cli.NewProgress(os.Stderr, "policies")
	progress.Start(len(records))
	for i, rec := range records {
		// import rec
		progress.Step(i + 1)
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
	// ctx is canceled on SIGINT or SIGTERM
*/
package cli
