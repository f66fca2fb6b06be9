package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mhartlev/lending-ledger-go/ledger/postgresengine"
)

func newMigrateCommand(cfg *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger tables if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			pool, err := pgxpool.New(cmd.Context(), cfg.GetString(configKeyDatabaseDSN))
			if err != nil {
				return err
			}
			defer pool.Close()

			store, err := postgresengine.NewLedgerStoreFromPGXPool(pool, postgresengine.WithLogger(logger))
			if err != nil {
				return err
			}

			if err := store.CreateSchema(cmd.Context()); err != nil {
				return err
			}

			logger.Info("schema is up to date")

			return nil
		},
	}
}
