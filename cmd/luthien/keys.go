package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"mercator-hq/luthien/pkg/cli"
	"mercator-hq/luthien/pkg/security/auth"

	"github.com/spf13/cobra"
)

var keysFlags struct {
	db        string
	principal string
	name      string
	key       string
	output    string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage client API keys",
	Long: `Manage client keys in the SQLite credential store.

Only the SHA-256 hash of each key is stored. A generated key is printed once
and cannot be recovered later.

Subcommands:
  add     - Issue a key for a principal
  list    - List stored keys
  disable - Disable a key by hash
  hash    - Print the hash stored for a key

Examples:
  # Issue a new key for alice
  luthien keys add --principal alice --name laptop

  # Register an existing key
  luthien keys add --principal ci --key "$CI_PROXY_KEY"`,
}

var keysAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Issue a key for a principal",
	Args:  cobra.NoArgs,
	RunE:  runKeysAdd,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysDisableCmd = &cobra.Command{
	Use:   "disable <hash>",
	Short: "Disable a key by its hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysDisable,
}

var keysHashCmd = &cobra.Command{
	Use:   "hash <key>",
	Short: "Print the stored hash of a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(out(cmd), auth.HashKey(args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysAddCmd, keysListCmd, keysDisableCmd, keysHashCmd)

	keysCmd.PersistentFlags().StringVar(&keysFlags.db, "db", "", "SQLite credential database (default auth.sqlite_path)")
	keysAddCmd.Flags().StringVar(&keysFlags.principal, "principal", "", "principal the key belongs to")
	keysAddCmd.Flags().StringVar(&keysFlags.name, "name", "", "label for the key")
	keysAddCmd.Flags().StringVar(&keysFlags.key, "key", "", "register this key instead of generating one")
	keysListCmd.Flags().StringVarP(&keysFlags.output, "output", "o", "text", "output format: text, json, csv")
	_ = keysAddCmd.MarkFlagRequired("principal")
}

// openKeyStore opens the credential database named by --db or the config.
func openKeyStore() (*auth.SQLiteLookup, error) {
	path := keysFlags.db
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Auth.SQLitePath
	}
	if path == "" {
		return nil, cli.NewConfigError("auth.sqlite_path", "no credential database configured; set it or pass --db")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return auth.NewSQLiteLookup(path)
}

func runKeysAdd(cmd *cobra.Command, args []string) error {
	db, err := openKeyStore()
	if err != nil {
		return err
	}
	defer db.Close()

	key := keysFlags.key
	generated := key == ""
	if generated {
		if key, err = auth.GenerateKey(); err != nil {
			return cli.NewCommandError("keys add", err)
		}
	}
	if err := db.Add(commandContext(cmd), key, keysFlags.principal, keysFlags.name); err != nil {
		return cli.NewCommandError("keys add", err)
	}

	w := out(cmd)
	fmt.Fprintf(w, "Principal: %s\n", keysFlags.principal)
	fmt.Fprintf(w, "Hash:      %s\n", auth.HashKey(key))
	if generated {
		fmt.Fprintf(w, "Key:       %s\n", key)
		fmt.Fprintln(w, "\nStore this key now; it cannot be shown again.")
	}
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(keysFlags.output)
	if err != nil {
		return err
	}
	db, err := openKeyStore()
	if err != nil {
		return err
	}
	defer db.Close()

	keys, err := db.List(commandContext(cmd))
	if err != nil {
		return cli.NewCommandError("keys list", err)
	}
	table := &cli.Table{Headers: []string{"HASH", "PRINCIPAL", "NAME", "DISABLED", "CREATED"}}
	for _, k := range keys {
		table.Append(k.Hash, k.Principal, k.Name, strconv.FormatBool(k.Disabled), k.CreatedAt.Format(time.RFC3339))
	}
	return cli.NewFormatter(format).FormatTo(out(cmd), table)
}

func runKeysDisable(cmd *cobra.Command, args []string) error {
	db, err := openKeyStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SetDisabled(commandContext(cmd), args[0], true); err != nil {
		if errors.Is(err, auth.ErrInvalidKey) {
			return cli.NewCommandError("keys disable", fmt.Errorf("no key with hash %s", args[0]))
		}
		return cli.NewCommandError("keys disable", err)
	}
	fmt.Fprintf(out(cmd), "✓ Disabled %s\n", args[0])
	return nil
}
