package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raykavin/alertnrun"
	"github.com/raykavin/alertnrun/pkg/config"
	"github.com/raykavin/alertnrun/pkg/notification"
	"github.com/raykavin/alertnrun/pkg/storage"
)

// Command line flags
var (
	// Whitelist command flags
	userID  int64
	isAdmin bool
)

func main() {
	// Create root command
	rootCmd := &cobra.Command{
		Use:     "alertnrun",
		Short:   "Telegram crypto price and indicator alert bot",
		Version: "1.0.0",
	}

	// Add commands
	rootCmd.AddCommand(buildRunCmd())
	rootCmd.AddCommand(buildWhitelistCmd())

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the alert bot",
		RunE:  runBot,
	}
}

func buildWhitelistCmd() *cobra.Command {
	whitelistCmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Register a Telegram user in the alert store",
		RunE:  runWhitelist,
	}

	// Add flags
	whitelistCmd.Flags().Int64VarP(&userID, "user", "u", 0, "Telegram user id")
	whitelistCmd.Flags().BoolVarP(&isAdmin, "admin", "a", false, "Grant admin rights")

	// Required flags
	whitelistCmd.MarkFlagRequired("user")

	return whitelistCmd
}

func runBot(cmd *cobra.Command, args []string) error {
	appConfig, err := config.LoadAppConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	options, err := buildBotOptions(appConfig)
	if err != nil {
		return err
	}

	bot, err := alertnrun.NewBot(ctx, appConfig.Settings, options...)
	if err != nil {
		return err
	}

	if appConfig.AdminID != 0 {
		if err := bot.Storage().WhitelistUser(appConfig.AdminID, true); err != nil {
			return err
		}
	}

	return bot.Run(ctx)
}

func buildBotOptions(appConfig *config.AppConfig) ([]alertnrun.Option, error) {
	store, err := storage.FromFile(appConfig.StoragePath)
	if err != nil {
		return nil, err
	}

	options := []alertnrun.Option{alertnrun.WithStorage(store)}

	if appConfig.Taapi.APIKey != "" {
		feed, err := alertnrun.NewIndicatorFeed(appConfig.Settings, appConfig.Taapi.APIKey, alertnrun.DefaultLog)
		if err != nil {
			return nil, err
		}
		options = append(options, alertnrun.WithIndicatorFeed(feed))
	}

	if appConfig.SMTP.EmailEnabled() {
		options = append(options, alertnrun.WithMailSender(notification.NewMail(notification.MailParams{
			SMTPServerAddress: appConfig.SMTP.ServerAddress,
			SMTPServerPort:    appConfig.SMTP.ServerPort,
			From:              appConfig.SMTP.From,
			Password:          appConfig.SMTP.Password,
		})))
	}

	return options, nil
}

func runWhitelist(cmd *cobra.Command, args []string) error {
	appConfig, err := config.LoadAppConfig()
	if err != nil {
		return err
	}

	store, err := storage.FromFile(appConfig.StoragePath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.WhitelistUser(userID, isAdmin); err != nil {
		return err
	}

	fmt.Printf("user %d whitelisted (admin: %v)\n", userID, isAdmin)
	return nil
}
