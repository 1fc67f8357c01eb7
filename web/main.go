package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/tokengate/internal/auth"
	"github.com/devilmonastery/tokengate/internal/auth/oidc"
	"github.com/devilmonastery/tokengate/internal/config"
	"github.com/devilmonastery/tokengate/internal/pkg/logger"
	"github.com/devilmonastery/tokengate/internal/pkg/metrics"
	"github.com/devilmonastery/tokengate/web/internal/handlers"
	"github.com/devilmonastery/tokengate/web/internal/middleware"
	"github.com/devilmonastery/tokengate/web/internal/session"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type logFlags struct {
	level         string
	file          string
	alsoLogStderr bool
	format        string
}

func (f *logFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.level, "log-level", envOr("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&f.file, "log-file", "", "Log file path (if specified, logs to file instead of stderr)")
	cmd.PersistentFlags().BoolVar(&f.alsoLogStderr, "alsologtostderr", false, "Log to both file and stderr")
	cmd.PersistentFlags().StringVar(&f.format, "log-format", envOr("LOG_FORMAT", "json"), "Log format (text, json)")
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		logs       logFlags
	)

	serve := func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context(), configPath)
	}

	cmd := &cobra.Command{
		Use:           "web",
		Short:         "tokengate login service",
		Long:          "Delegated Google login that issues signed bearer credentials",
		Version:       handlers.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupWebLogging(logs)
		},
		RunE: serve,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (optional)")
	logs.register(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE:  serve,
	})
	cmd.AddCommand(newTokenCommand(&configPath))

	return cmd
}

// setupWebLogging configures the global logger for the web service
func setupWebLogging(flags logFlags) error {
	cfg := logger.Config{
		Level:         logger.ParseLevel(flags.level),
		LogFile:       flags.file,
		AlsoLogStderr: flags.alsoLogStderr,
		Format:        flags.format,
	}

	globalLogger, err := logger.SetupLogger(cfg)
	if err != nil {
		return err
	}

	// Set as default logger so all slog.Info/Warn/Error calls use our configured logger
	slog.SetDefault(globalLogger)

	return nil
}

// newTokenManager builds the credential signer from configuration
func newTokenManager(cfg *config.Config) (*auth.TokenManager, error) {
	return auth.NewTokenManager(cfg.Auth.JWT.Secret, cfg.Auth.JWT.Lifetime,
		auth.WithIssuer(cfg.Auth.JWT.Issuer),
		auth.WithLeeway(cfg.Auth.JWT.ClockSkew))
}

// flowSecret is the flow cookie key material; the signing secret stands in
// when no separate session secret is configured
func flowSecret(cfg *config.Config) []byte {
	if cfg.Auth.Session.Secret != "" {
		return []byte(cfg.Auth.Session.Secret)
	}
	return []byte(cfg.Auth.JWT.Secret)
}

func runServer(ctx context.Context, configPath string) error {
	log := slog.Default().With("component", "web")
	log.Info("starting tokengate web service", slog.String("version", handlers.Version))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration; any error is fatal
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	tokenManager, err := newTokenManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize token manager: %w", err)
	}

	// Provider discovery happens once, at startup
	discoverCtx, cancel := context.WithTimeout(ctx, cfg.Auth.Provider.HTTPTimeout)
	provider, err := oidc.New(discoverCtx, cfg.Auth.Provider)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to initialize identity provider: %w", err)
	}
	log.Info("identity provider configured",
		slog.String("name", provider.Name()),
		slog.String("issuer", cfg.Auth.Provider.Issuer),
		slog.String("client_id", cfg.Auth.Provider.ClientID),
		slog.String("callback_url", cfg.Auth.Provider.CallbackURL))

	flow, err := session.NewManager(flowSecret(cfg), cfg.Auth.Session.FlowTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize flow sessions: %w", err)
	}
	transport := session.NewCookieTransport(cfg.Auth.Cookie.Name, cfg.Auth.Cookie.Domain, cfg.Auth.CookieMaxAge())

	h := handlers.New(provider, tokenManager, transport, flow, cfg.FrontendURL, slog.Default())
	authMw := middleware.NewAuthMiddleware(tokenManager, slog.Default())

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr(),
		Handler:           handlers.NewRouter(h, authMw, slog.Default()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsSrv *http.Server
	if addr := cfg.Server.MetricsAddr(); addr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}

		go func() {
			log.Info("starting metrics server", slog.String("address", addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server",
			slog.String("address", srv.Addr),
			slog.String("frontend_url", cfg.FrontendURL),
			slog.Duration("credential_lifetime", tokenManager.Lifetime()))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve HTTP: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", slog.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
