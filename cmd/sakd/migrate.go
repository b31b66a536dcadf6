package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groblegark/sakd/internal/config"
	"github.com/groblegark/sakd/internal/store/postgres"
)

var migrateCheckCmd = &cobra.Command{
	Use:   "migrate-check",
	Short: "Connect to the database, apply pending migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Println("database schema is up to date")
		return nil
	},
}
