package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/purchasebot/internal/config"
	"github.com/fyrsmithlabs/purchasebot/internal/identity"
	"github.com/fyrsmithlabs/purchasebot/internal/storage"
)

var linkApply bool

func init() {
	rootCmd.AddCommand(linkUsersCmd)
	linkUsersCmd.Flags().BoolVar(&linkApply, "apply", false, "Rewrite the historical files with the mapped names")
}

// linkUsersCmd maintains the user id to name mapping
var linkUsersCmd = &cobra.Command{
	Use:   "link-users",
	Short: "Map user ids in historical records to names",
	Long: `Collect every user id that historical records are attributed to and
add a placeholder entry for each unmapped id to
<storage.root>/user_id_mapping.json. Edit the file to replace the
placeholders with real names, then run again with --apply to rewrite
the historical JSON and CSV files.

Examples:
  # Update the mapping file
  purchasebot link-users

  # Relabel historical records using the mapping
  purchasebot link-users --apply`,
	Args: cobra.NoArgs,
	RunE: runLinkUsers,
}

func runLinkUsers(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.RequireStorage(); err != nil {
		return err
	}

	store, err := storage.NewStore(cfg.Storage.Root, storage.HistoricalLayout, nil)
	if err != nil {
		return err
	}
	users, err := identity.CollectUserIDs(store)
	if err != nil {
		return fmt.Errorf("collecting user ids: %w", err)
	}

	path := filepath.Join(cfg.Storage.Root, identity.MappingFile)
	mapping, err := identity.LoadMapping(path)
	if err != nil {
		return err
	}
	added := mapping.Merge(users)
	if err := mapping.Save(path); err != nil {
		return err
	}

	cmd.Printf("Found %d user ids in historical records\n", len(users))
	for _, u := range users {
		name := mapping[u.UserID]
		if identity.IsPlaceholder(name) {
			name += " (unmapped)"
		}
		cmd.Printf("  %s  %4d  %s\n", u.UserID, u.Requests, name)
	}
	cmd.Printf("Added %d new ids to %s\n", len(added), path)

	if !linkApply {
		cmd.Println("Edit the mapping, then run with --apply to relabel records.")
		return nil
	}
	n, err := mapping.Apply(store)
	if err != nil {
		return fmt.Errorf("applying mapping: %w", err)
	}
	cmd.Printf("Relabeled %d records\n", n)
	return nil
}
