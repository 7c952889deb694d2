package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	root := &cobra.Command{
		Use:          "taskgram",
		Short:        "Telegram task bot with dialog flows and due-date reminders",
		SilenceUsage: true,
	}

	var configPath string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot daemon (Telegram polling + reminder worker)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", "", "config file path (default ~/.taskgram/config.json)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("taskgram", version)
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.validateServe(); err != nil {
		return err
	}

	defaultLogger = initLogger(cfg.Logging)
	defer defaultLogger.Close()

	logInfo("taskgram starting", "version", version, "stateDB", cfg.StateDB, "api", cfg.API.BaseURL)

	db, err := openStateDB(cfg.StateDB)
	if err != nil {
		return err
	}
	defer db.Close()

	gw := newGateway(cfg.API)
	store := newSessionStore(db)
	bot := newBot(cfg)
	sched := newReminderEngine(db, cfg.Reminders, bot.sendReminder)
	bot.engine = newEngine(cfg, gw, store, sched)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	bot.pollLoop(ctx)

	logInfo("shutting down")
	sched.Stop()
	return nil
}
