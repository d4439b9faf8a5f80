package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prajwalprabhu/File-Chat/internal/api"
	"github.com/prajwalprabhu/File-Chat/internal/config"
	"github.com/prajwalprabhu/File-Chat/internal/db"
	"github.com/prajwalprabhu/File-Chat/internal/helper"
	"github.com/prajwalprabhu/File-Chat/internal/parser"
)

const configFilePath = "./configs/config.yaml"

var (
	cfgPath string
	ownerID int64
	chatID  int64
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "filechat",
	Short:         "Chat with your documents",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		helper.SetupLogger(cfg.Log)
		log.Debug().Str("path", cfgPath).Msg("Loaded config")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Upload and index documents for an owner",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask QUERY",
	Short: "Ask a question against an owner's documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var removeCmd = &cobra.Command{
	Use:   "remove FILENAME",
	Short: "Remove a document from an owner's index",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for an owner",
	RunE:  runToken,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", configFilePath, "path to the config file")

	for _, c := range []*cobra.Command{ingestCmd, askCmd, removeCmd, tokenCmd} {
		c.Flags().Int64Var(&ownerID, "owner", 0, "owner (user) id")
		_ = c.MarkFlagRequired("owner")
	}
	ingestCmd.Flags().Bool("index-only", false, "index the files in place without storing or recording them")
	ingestCmd.Flags().Bool("dry-run", false, "print the chunks without embedding or storing anything")
	askCmd.Flags().Int64Var(&chatID, "chat", 0, "chat id to continue, 0 starts a new chat")
	migrateCmd.Flags().Bool("reset", false, "drop every table first")

	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, removeCmd, tokenCmd, migrateCmd)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Server.JWTSecret == "" {
		return errors.New("server.jwt_secret is required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	server := api.NewApp(a.svc, []byte(cfg.Server.JWTSecret), cfg.Server.MaxUploadBytes)
	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		_ = server.Shutdown()
	}()

	log.Info().Str("addr", cfg.Server.ListenAddr).Msg("Server listening")
	return server.Listen(cfg.Server.ListenAddr)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	indexOnly, _ := cmd.Flags().GetBool("index-only")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	a, err := newApp(ctx, cfg, !indexOnly && !dryRun)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, path := range args {
		name := helper.SafeFileName(path)
		if !parser.Supported(name) {
			log.Warn().Str("file", path).Strs("supported", parser.SupportedExtensions()).Msg("Skipping unsupported file")
			continue
		}
		if dryRun {
			chunks, err := a.svc.Chunk(ctx, ownerID, path, name)
			if err != nil {
				return fmt.Errorf("error parsing %s: %w", path, err)
			}
			log.Info().Str("file", name).Int("chunks", len(chunks)).Msg("Parsed content")
			helper.PrettyPrint(chunks)
			continue
		}
		if indexOnly {
			indexPath, err := a.svc.ProcessUpload(ctx, ownerID, path, name)
			if err != nil {
				return fmt.Errorf("error indexing %s: %w", path, err)
			}
			log.Info().Str("file", name).Str("index", indexPath).Msg("Indexed")
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		rec, err := a.svc.Upload(ctx, ownerID, name, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("error uploading %s: %w", path, err)
		}
		log.Info().Int64("file_id", rec.ID).Str("file", rec.FileName).Int("chunks", rec.Chunks).Msg("Uploaded")
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	query := args[0]
	ex, err := a.svc.AnswerQuery(ctx, ownerID, chatID, query)
	if err != nil {
		return fmt.Errorf("error querying: %w", err)
	}

	log.Info().Int64("chat_id", ex.Chat.ID).Str("title", ex.Chat.Title).Msg("Chat: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Bool("no_documents", ex.NoDocuments).Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", ex.Answer.AttributedFile)

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", ex.Assistant.Markdown)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.svc.RemoveFile(ctx, ownerID, helper.SafeFileName(args[0]))
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.Server.JWTSecret == "" {
		return errors.New("server.jwt_secret is required")
	}
	token, err := api.IssueToken(ownerID, []byte(cfg.Server.JWTSecret), cfg.Server.TokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reset, _ := cmd.Flags().GetBool("reset")

	sqldb, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	bunDB := db.NewDB(sqldb, cfg.Database.Debug)
	defer bunDB.Close()

	if reset {
		log.Warn().Msg("Dropping all tables")
		if err := db.DropAll(ctx, bunDB); err != nil {
			return fmt.Errorf("error dropping tables: %w", err)
		}
	}
	if err := db.InitDB(ctx, bunDB); err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	log.Info().Msg("Database ready")
	return nil
}
