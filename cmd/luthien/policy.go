package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"mercator-hq/luthien/pkg/cli"
	"mercator-hq/luthien/pkg/policy/loader"
	"mercator-hq/luthien/pkg/policy/store"
	"mercator-hq/luthien/pkg/telemetry/logging"

	"github.com/spf13/cobra"
)

var policyFlags struct {
	output string
	db     string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and manage policy configurations",
	Long: `Inspect the configured policy store and manage the SQLite store.

Subcommands:
  tree   - Build a policy and print its structure
  list   - List the configurations in the store
  import - Copy a YAML policy file into the SQLite store`,
}

var policyTreeCmd = &cobra.Command{
	Use:   "tree [name]",
	Short: "Print the structure of a policy tree",
	Long: `Build the named policy (the configured root when omitted) from the
configured store and print its structure.

Examples:
  luthien policy tree
  luthien policy tree guarded-chain -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPolicyTree,
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List policy configurations",
	Args:  cobra.NoArgs,
	RunE:  runPolicyList,
}

var policyImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a YAML policy file into the SQLite store",
	Long: `Read every policy from a YAML file and upsert it into the SQLite policy
store. The database defaults to policy.sqlite_path from the configuration.

Examples:
  luthien policy import policies.yaml
  luthien policy import policies.yaml --db /var/lib/luthien/policies.db`,
	Args: cobra.ExactArgs(1),
	RunE: runPolicyImport,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyTreeCmd, policyListCmd, policyImportCmd)

	policyCmd.PersistentFlags().StringVarP(&policyFlags.output, "output", "o", "text", "output format: text, json, csv")
	policyImportCmd.Flags().StringVar(&policyFlags.db, "db", "", "SQLite policy database (default policy.sqlite_path)")
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runPolicyTree(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(policyFlags.output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Audit.Backend = "memory"
	cfg.Telemetry.Tracing.Enabled = false

	name := cfg.Policy.Root
	if len(args) == 1 {
		name = args[0]
	}

	ctx := commandContext(cmd)
	comps, err := buildComponents(ctx, cfg, logging.Discard())
	if err != nil {
		return cli.NewCommandError("policy tree", err)
	}
	defer comps.Close()

	root, err := comps.loader().Load(ctx, name)
	if err != nil {
		return cli.NewCommandError("policy tree", err)
	}
	tree := loader.Describe(root)
	if format == cli.FormatText {
		return tree.Write(out(cmd))
	}
	return cli.NewFormatter(format).FormatTo(out(cmd), tree)
}

func runPolicyList(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(policyFlags.output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Audit.Backend = "memory"
	cfg.Telemetry.Tracing.Enabled = false

	ctx := commandContext(cmd)
	comps, err := buildComponents(ctx, cfg, logging.Discard())
	if err != nil {
		return cli.NewCommandError("policy list", err)
	}
	defer comps.Close()

	lister, ok := comps.store.(store.Lister)
	if !ok {
		return cli.NewCommandError("policy list", fmt.Errorf("store %q cannot list its records", cfg.Policy.Store))
	}
	records, err := lister.List(ctx)
	if err != nil {
		return cli.NewCommandError("policy list", err)
	}

	table := &cli.Table{Headers: []string{"NAME", "TYPE", "ACTIVE", "DESCRIPTION"}}
	for _, r := range records {
		table.Append(r.Name, r.Type, strconv.FormatBool(r.Active), r.Description)
	}
	return cli.NewFormatter(format).FormatTo(out(cmd), table)
}

func runPolicyImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return cli.NewCommandError("policy import", err)
	}
	records, err := store.ParseYAML(data)
	if err != nil {
		return cli.NewCommandError("policy import", err)
	}

	path := policyFlags.db
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Policy.SQLitePath
	}
	if err := ensureDir(path); err != nil {
		return cli.NewCommandError("policy import", err)
	}
	db, err := store.NewSQLiteStore(path)
	if err != nil {
		return cli.NewCommandError("policy import", err)
	}
	defer db.Close()

	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx := commandContext(cmd)
	progress := cli.NewProgress(cmd.ErrOrStderr(), "policies")
	progress.Start(len(names))
	for i, name := range names {
		if err := db.Put(ctx, records[name]); err != nil {
			progress.Fail(err)
			return cli.NewCommandError("policy import", fmt.Errorf("policy %q: %w", name, err))
		}
		progress.Step(i + 1)
	}
	progress.Finish()

	fmt.Fprintf(out(cmd), "✓ Imported %d policies into %s\n", len(names), path)
	return nil
}
