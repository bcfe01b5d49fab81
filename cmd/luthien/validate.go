package main

import (
	"fmt"

	"mercator-hq/luthien/pkg/cli"
	"mercator-hq/luthien/pkg/policy/loader"
	"mercator-hq/luthien/pkg/telemetry/logging"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and build the policy tree",
	Long: `Load the configuration, open the policy store, and build the root policy
tree exactly as "luthien run" would, without serving traffic.

Audit records are kept in memory while validating so no database is created.

Examples:
  luthien validate --config config.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w := out(cmd)
	fmt.Fprintln(w, "✓ Configuration valid")

	cfg.Audit.Backend = "memory"
	cfg.Telemetry.Tracing.Enabled = false

	ctx := commandContext(cmd)
	comps, err := buildComponents(ctx, cfg, logging.Discard())
	if err != nil {
		return cli.NewCommandError("validate", err)
	}
	defer comps.Close()

	root, err := comps.loader().Load(ctx, cfg.Policy.Root)
	if err != nil {
		return cli.NewCommandError("validate", err)
	}
	tree := loader.Describe(root)
	fmt.Fprintf(w, "✓ Policy tree %q built (%d policies)\n", cfg.Policy.Root, countNodes(tree))
	return tree.Write(w)
}

func countNodes(n loader.Node) int {
	total := 1
	for _, c := range n.Children {
		total += countNodes(c)
	}
	return total
}
