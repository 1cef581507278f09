package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/awaistahir/smart-tariff/internal/batch"
	"github.com/awaistahir/smart-tariff/internal/config"
	"github.com/awaistahir/smart-tariff/internal/log"
	"github.com/awaistahir/smart-tariff/internal/store"
	"github.com/awaistahir/smart-tariff/internal/uiapi"
	"github.com/spf13/cobra"
)

func main() {
	var (
		port    int
		dbPath  string
		cfgFile string
	)

	rootCmd := &cobra.Command{
		Use:          "smart-tariffd",
		Short:        "SmartTariff HTTP API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			log.SetDefaultLogLevel(level)

			if dbPath == "" {
				dbPath = cfg.DBPath
			}
			if !cmd.Flags().Changed("port") {
				port = cfg.Port
			}

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
				return fmt.Errorf("creating database directory: %w", err)
			}
			st, err := store.NewStore(dbPath, loc)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			jobs := batch.NewManager()
			srv := &http.Server{
				Addr:    fmt.Sprintf(":%d", port),
				Handler: uiapi.NewServer(ctx, st, jobs, cfg.Settings()).Handler(),
			}

			log.Ctx(ctx).InfoContext(ctx, "SmartTariff API server starting",
				slog.Int("port", port),
				slog.String("db", dbPath),
				slog.String("timezone", loc.String()),
			)

			errc := make(chan error, 1)
			go func() {
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			log.Ctx(ctx).InfoContext(ctx, "shutting down")
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			// jobs observe ctx and stop between scenarios
			jobs.Wait()
			return nil
		},
	}

	rootCmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "database path (default from config)")
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.smarttariff/config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
