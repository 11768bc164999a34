package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knowledgehub/backend/internal/auth"
	"github.com/knowledgehub/backend/internal/config"
	"github.com/knowledgehub/backend/internal/database"
	"github.com/knowledgehub/backend/internal/docs"
	"github.com/knowledgehub/backend/internal/enrich"
	"github.com/knowledgehub/backend/internal/logging"
	"github.com/knowledgehub/backend/internal/server"
	"github.com/knowledgehub/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "knowledgehub-api",
		Short: "Knowledge Hub backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Bearer token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")
	cmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key (empty disables enrichment)")
	cmd.PersistentFlags().String("gemini-model", defaults.GetString("gemini.model"), "Gemini model name")
	cmd.PersistentFlags().Int("max-tags", defaults.GetInt("enrich.max_tags"), "Maximum AI-generated tags per document")
	cmd.PersistentFlags().Int("search-window", defaults.GetInt("search.window"), "Document window for semantic search and Q&A")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "gemini.api_key", "gemini-api-key")
	bindFlag(cmd, "gemini.model", "gemini-model")
	bindFlag(cmd, "enrich.max_tags", "max-tags")
	bindFlag(cmd, "search.window", "search-window")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "knowledgehub-auth",
		Audience:      "knowledgehub-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	enrichClient := enrich.NewClient(enrich.Config{
		APIKey:  appConfig.GeminiAPIKey,
		BaseURL: appConfig.GeminiBaseURL,
		Model:   appConfig.GeminiModel,
		MaxTags: appConfig.MaxTags,
		Logger:  logger,
	})
	if !enrichClient.Enabled() {
		logger.Warn("enrichment disabled: no Gemini API key configured")
	}

	idProvider := docs.NewUUIDProvider()

	usersService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
	})
	if err != nil {
		return err
	}

	store, err := docs.NewStore(db)
	if err != nil {
		return err
	}

	docsService, err := docs.NewService(docs.ServiceConfig{
		Store:        store,
		Enricher:     enrichClient,
		Directory:    usersService,
		IDProvider:   idProvider,
		Logger:       logger,
		SearchWindow: appConfig.SearchWindow,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenValidator: tokenIssuer,
		DocsService:    docsService,
		UsersService:   usersService,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
