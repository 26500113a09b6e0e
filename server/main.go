package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/ara/internal/auth"
	"github.com/devilmonastery/ara/internal/auth/account"
	"github.com/devilmonastery/ara/internal/auth/authority"
	"github.com/devilmonastery/ara/internal/auth/oidc"
	"github.com/devilmonastery/ara/internal/auth/provider"
	"github.com/devilmonastery/ara/internal/config"
	"github.com/devilmonastery/ara/internal/domain/entities"
	"github.com/devilmonastery/ara/internal/domain/services"
	"github.com/devilmonastery/ara/internal/pkg/idgen"
	"github.com/devilmonastery/ara/internal/pkg/logger"
	"github.com/devilmonastery/ara/internal/pkg/metrics"
	"github.com/devilmonastery/ara/migrations"
	"github.com/devilmonastery/ara/server/internal/handlers"
	"github.com/devilmonastery/ara/server/internal/middleware"
	"github.com/devilmonastery/ara/server/internal/session"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		forceVersion  int
		configPath    string
		logLevel      string
		logFile       string
		logToStderr   bool
		alsoLogStderr bool
		logFormat     string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "ARA login gateway",
		Long:  "The OAuth2/OIDC login gateway for ARA",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupServerLogging(logLevel, logFile, logToStderr, alsoLogStderr, logFormat)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath, forceVersion)
		},
	}

	cmd.Flags().IntVar(&forceVersion, "force-migration", -1, "Force migration version (use to fix dirty migration state)")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (optional)")

	// Add logging flags
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (if specified, logs to file instead of stderr)")
	cmd.PersistentFlags().BoolVar(&logToStderr, "logtostderr", false, "Log to stderr (default behavior unless --log-file specified)")
	cmd.PersistentFlags().BoolVar(&alsoLogStderr, "alsologtostderr", false, "Log to both file and stderr")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (text, json)")

	// Add subcommands
	cmd.AddCommand(newUserCommand(&configPath))

	return cmd
}

// setupServerLogging configures the global logger for the server
func setupServerLogging(logLevel, logFile string, logToStderr, alsoLogStderr bool, logFormat string) error {
	// Default to stderr logging unless file is specified
	if logFile == "" {
		logToStderr = true
	}

	cfg := logger.Config{
		Level:         logger.ParseLevel(logLevel),
		LogFile:       logFile,
		LogToStderr:   logToStderr,
		AlsoLogStderr: alsoLogStderr,
		Format:        logFormat,
	}

	globalLogger, err := logger.SetupLogger(cfg)
	if err != nil {
		return err
	}

	slog.SetDefault(globalLogger)
	return nil
}

func runServer(configPath string, forceVersion int) error {
	log := slog.Default().With("component", "server")
	log.Info("Starting server initialization")

	if err := idgen.Initialize(1); err != nil {
		return fmt.Errorf("failed to initialize ID generator: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if forceVersion >= 0 {
		if cfg.Database.Driver != config.DriverPostgres {
			return fmt.Errorf("--force-migration requires the postgres driver")
		}
		pgConn, err := connectPostgres(cfg, log)
		if err != nil {
			return err
		}
		defer pgConn.Close()

		log.Info("Force setting migration version", "version", forceVersion)
		if err := pgConn.ForceMigrationVersion(migrations.FS, forceVersion); err != nil {
			return fmt.Errorf("failed to force migration version: %w", err)
		}
		log.Info("Migration version forced, exiting", "version", forceVersion)
		return nil
	}

	registry, err := provider.NewRegistry(cfg.Auth.Providers)
	if err != nil {
		return fmt.Errorf("invalid provider configuration: %w", err)
	}
	mapper, err := authority.NewMapper(registry)
	if err != nil {
		return fmt.Errorf("invalid authority mapping: %w", err)
	}
	selector := account.NewSelector(registry)

	log.Info("Loaded authentication providers", "count", len(registry.List()))
	for _, p := range registry.List() {
		log.Info("Authentication provider configured",
			"code", p.Code,
			"type", p.Type,
			"client_id", p.Client.ClientID)
	}

	defaultScope, err := entities.ParseProjectScope(cfg.Auth.DefaultScope)
	if err != nil {
		return fmt.Errorf("invalid auth.default_scope: %w", err)
	}

	secret, err := sessionSecret(cfg, log)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions := services.NewSessionService(store.uow, services.SessionConfig{
		DefaultProject: cfg.Auth.DefaultProject,
		DefaultScope:   defaultScope,
		WriteTimeout:   cfg.Auth.WriteTimeout,
	})
	logins := services.NewLoginService(selector, mapper, sessions)

	httpClient := &http.Client{
		Timeout:   cfg.Auth.HTTPTimeout,
		Transport: metrics.NewIdPTransport(http.DefaultTransport),
	}
	discovery := oidc.NewDiscoveryCache(24*time.Hour, httpClient)
	clients := make(map[string]handlers.OAuthClient)
	for _, p := range registry.List() {
		clients[p.Code] = oidc.NewClient(p, oidc.Options{HTTPClient: httpClient, Discovery: discovery})
	}

	tokens := auth.NewJWTManager(string(secret), cfg.Session.Lifetime)
	sessionManager := session.NewManager(secret, cfg.Session.Lifetime, cfg.HTTP.SecureCookie)

	h := handlers.New(handlers.Options{
		Registry:    registry,
		Clients:     clients,
		Logins:      logins,
		Users:       services.NewUserService(store.uow, store.repos),
		Tokens:      tokens,
		Sessions:    sessionManager,
		Health:      store.health,
		FrontendURL: cfg.HTTP.FrontendURL,
		Logger:      slog.Default(),
	})
	router := h.Router(middleware.NewAuthMiddleware(sessionManager, tokens))

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.HTTP.Address(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Auth.HTTPTimeout*2 + cfg.Auth.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", "address", srv.Addr, "database", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	log.Info("Shutdown complete")
	return nil
}

// sessionSecret returns the configured secret. A local environment without
// one gets a random secret, so sessions do not survive a restart.
func sessionSecret(cfg *config.Config, log *slog.Logger) ([]byte, error) {
	if cfg.Session.Secret != "" {
		if len(cfg.Session.Secret) < 32 {
			return nil, fmt.Errorf("session.secret must be at least 32 bytes")
		}
		return []byte(cfg.Session.Secret), nil
	}
	if cfg.Environment != "local" {
		return nil, fmt.Errorf("session.secret is required outside the local environment")
	}

	log.Warn("session.secret not configured, using a random secret")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate session secret: %w", err)
	}
	return secret, nil
}
