package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tunedrift/tunedrift/internal/api"
	"github.com/tunedrift/tunedrift/internal/config"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the library database with the files on disk and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		// A one-off sync must not race a running server's watcher.
		cfg.Library.Watch = false

		log := newLogger(cfg, false)
		defer log.Close()

		db, err := openDatabase(cfg, log)
		if err != nil {
			return err
		}
		defer db.Close()

		server, err := api.NewServer(db.Conn(), nil, cfg, log.Logger)
		if err != nil {
			return err
		}

		result, err := server.Syncer().Sync(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, added %d, removed %d, skipped %d, failed %d in %s\n",
			result.Scanned, result.Added, result.Removed, result.Skipped, result.Failed, result.Duration.Round(1e6))
		return nil
	},
}
