package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"medassist-chatbot/internal/app"
	"medassist-chatbot/internal/config"
	"medassist-chatbot/internal/console"
	"medassist-chatbot/internal/ingest"
	"medassist-chatbot/internal/relay"
	"medassist-chatbot/pkg"
)

var (
	configPath string
	sessionID  string
	sourceDir  string
	resetIndex bool

	cfg    *config.Config
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:           "medbot",
		Short:         "Multilingual medical information chatbot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			logger = app.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			slog.SetDefault(logger)
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and Twilio webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Serve(cmd.Context(), cfg, logger)
		},
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively in the terminal",
		RunE:  runChat,
	}

	indexCmd = &cobra.Command{
		Use:   "index [source dir]",
		Short: "Build the document index from .txt and .md files",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runIndex,
	}

	telegramCmd = &cobra.Command{
		Use:   "telegram",
		Short: "Relay Telegram messages to the chat API",
		RunE:  runTelegram,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("MEDBOT_CONFIG"), "path to a YAML config file")
	chatCmd.Flags().StringVar(&sessionID, "session", pkg.DefaultSessionID, "session id for the conversation")
	indexCmd.Flags().StringVar(&sourceDir, "source", "data", "directory with the documents to index")
	indexCmd.Flags().BoolVar(&resetIndex, "reset", false, "remove existing chunks before indexing")
	rootCmd.AddCommand(serveCmd, chatCmd, indexCmd, telegramCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	bot, err := app.BuildChatbot(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer bot.Close()

	c := &console.Console{
		Chat:      bot.Pipeline,
		SessionID: sessionID,
		In:        cmd.InOrStdin(),
		Out:       cmd.OutOrStdout(),
		Logger:    logger,
	}
	return c.Run(cmd.Context())
}

func runIndex(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(config.PurposeIndex); err != nil {
		return err
	}
	if len(args) == 1 {
		sourceDir = args[0]
	}
	ctx := cmd.Context()
	embedder, err := app.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	// The Postgres schema needs the vector size up front.
	probe, err := embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return fmt.Errorf("probe embedding dimension: %w", err)
	}
	idx, err := app.CreateIndex(ctx, cfg, len(probe), resetIndex, logger)
	if err != nil {
		return err
	}
	defer idx.Close()

	b := &ingest.Builder{
		Embedder:  embedder,
		Writer:    idx,
		Splitter:  ingest.NewSplitter(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap),
		BatchSize: cfg.Embedding.BatchSize,
		Logger:    logger,
	}
	stats, err := b.Build(ctx, sourceDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks from %d documents\n", stats.Chunks, stats.Documents)
	return nil
}

func runTelegram(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(config.PurposeRelay); err != nil {
		return err
	}
	api, err := relay.NewTelegramAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}
	logger.Info("starting telegram bot", "bot", api.Self.UserName)
	client := relay.NewAPIClient(cfg.Telegram.ChatAPIURL, cfg.Telegram.Timeout, logger)
	return relay.NewBot(api, client, logger).Run(cmd.Context())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
