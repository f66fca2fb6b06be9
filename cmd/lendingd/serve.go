package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mhartlev/lending-ledger-go/activity"
	"github.com/mhartlev/lending-ledger-go/catalog"
	"github.com/mhartlev/lending-ledger-go/httpapi"
	"github.com/mhartlev/lending-ledger-go/ledger/postgresengine"
	"github.com/mhartlev/lending-ledger-go/overdue"
	"github.com/mhartlev/lending-ledger-go/rental"
)

const shutdownGracePeriod = 10 * time.Second

func newServeCommand(cfg *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the overdue scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *viper.Viper) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger()

	pool, err := pgxpool.New(ctx, cfg.GetString(configKeyDatabaseDSN))
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := postgresengine.NewLedgerStoreFromPGXPool(pool, postgresengine.WithLogger(logger))
	if err != nil {
		return err
	}

	rentalEngine := rental.NewEngine(store, rental.WithLogger(logger))
	catalogService := catalog.NewService(store, catalog.WithLogger(logger))
	recorder := activity.NewRecorder(store, activity.WithLogger(logger))

	scheduler, err := overdue.NewScheduler(
		store,
		overdue.NewLogNotifier(logger),
		overdue.WithLogger(logger),
		overdue.WithLoanPeriod(cfg.GetDuration(configKeyLoanPeriod)),
	)
	if err != nil {
		return err
	}

	handler := httpapi.NewHandler(
		rentalEngine,
		catalogService,
		httpapi.WithLogger(logger),
		httpapi.WithActivityRecorder(recorder),
	)

	server := &http.Server{
		Addr:              cfg.GetString(configKeyHTTPAddr),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("http server listening", "addr", server.Addr)

		if serveErr := server.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}

		return nil
	})

	group.Go(func() error {
		if runErr := scheduler.Run(groupCtx); !errors.Is(runErr, context.Canceled) {
			return runErr
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown complete")

	return nil
}
