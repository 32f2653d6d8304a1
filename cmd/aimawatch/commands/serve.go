package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"aimawatch-backend/lib/serviceutil"
	"aimawatch-backend/lib/telegram"
	"aimawatch-backend/lib/telemetry"
	"aimawatch-backend/services/bot"
	"aimawatch-backend/services/checker"
	"aimawatch-backend/services/scheduler"
	"aimawatch-backend/services/userstore"
	userstoredb "aimawatch-backend/services/userstore/db"
	"aimawatch-backend/services/web"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, the check scheduler and the web front-end.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := readConfig()

		t, err := telemetry.SetupFromEnv(ctx, "aimawatch")
		if errors.Is(err, os.ErrNotExist) {
			slog.InfoContext(ctx, "no telemetry.json5 found, otlp export disabled")
		} else if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer t.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)

		database, err := config.Database.OpenDB(userstoredb.Schema)
		if err != nil {
			serviceutil.Fatal("failed to open database", err)
		}

		aimaClient := newAimaClient(config)
		tg, err := telegram.NewClient(telegram.Options{Token: config.Telegram.Token})
		if err != nil {
			serviceutil.Fatal("failed to create telegram client", err)
		}
		me, err := tg.GetMe(ctx)
		if err != nil {
			serviceutil.Fatal("failed to reach the telegram api", err)
		}
		slog.InfoContext(ctx, "telegram bot authorized", "username", me.Username)

		store := userstore.NewService(database)
		checkerService := checker.NewService(aimaClient, store, tg, checker.Options{
			Secret: config.vaultSecret(),
			Alerts: checker.NewAlertMailer(config.Alerts),
		})

		sched := scheduler.NewService(store, checkerService, scheduler.Options{})
		sched.Start()
		defer sched.Stop()

		poller := telegram.NewPoller(tg, bot.NewService(tg, checkerService, store))
		go poller.Run(ctx)

		port := config.Web.Port
		if port == 0 {
			port = 8000
		}
		mux := http.NewServeMux()
		web.NewService(aimaClient).Register(mux)
		go serviceutil.StartHttpServer(port, mux)

		slog.InfoContext(ctx, "aimawatch running", "web_port", port)
		<-ctx.Done()
	},
}
