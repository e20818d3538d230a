package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evcraddock/visit-scheduler/internal/config"
	"github.com/evcraddock/visit-scheduler/internal/db"
	"github.com/evcraddock/visit-scheduler/internal/directory"
	"github.com/evcraddock/visit-scheduler/internal/logging"
	"github.com/evcraddock/visit-scheduler/internal/notify"
	"github.com/evcraddock/visit-scheduler/internal/schedule"
	"github.com/evcraddock/visit-scheduler/internal/visit"
	"github.com/evcraddock/visit-scheduler/internal/web"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling server",
		Long: `Start the HTTP API server.

Configuration comes from VS_* environment variables (VS_PORT, VS_DB,
VS_TIMEZONE, VS_WORKDAY_START, VS_WORKDAY_END, VS_SMTP_HOST, ...).
--port and --db override VS_PORT and VS_DB.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (default: $VS_PORT or 8080)")

	return cmd
}

func runServe(ctx context.Context, port int) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}
	if flagDB != "" {
		cfg.DB = flagDB
	}

	logging.Setup(cfg.DevMode, cfg.LogLevel)

	database, err := db.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer closeDB(database)

	notifier := notify.Multi{notify.Log{}}
	if cfg.SMTP.IsConfigured() {
		notifier = append(notifier, notify.NewSMTP(cfg.SMTP, cfg.Location))
	} else {
		slog.Info("SMTP not configured; notifications are logged only")
	}

	svc := schedule.New(visit.NewRepository(database), directory.NewStore(database), schedule.Options{
		Location:     cfg.Location,
		WorkdayStart: cfg.WorkdayStart,
		WorkdayEnd:   cfg.WorkdayEnd,
		SlotStep:     cfg.SlotStep,
		BulkParallel: cfg.BulkParallel,
		Notifier:     notifier,
		Logger:       slog.Default(),
	})
	defer svc.Close()

	if err := svc.Load(ctx); err != nil {
		return err
	}

	srv := web.NewServer(database, svc, web.Config{
		RequireAPIKey:  cfg.RequireAPIKey,
		RequestTimeout: cfg.RequestTimeout,
	})

	slog.Info("starting server",
		"addr", cfg.Addr(),
		"db", string(db.DialectFor(cfg.DB)),
		"timezone", cfg.Location.String(),
		"require_api_key", cfg.RequireAPIKey,
	)
	if !cfg.RequireAPIKey {
		slog.Warn("API key authentication is disabled")
	}
	return srv.ListenAndServe(ctx, cfg.Addr())
}
