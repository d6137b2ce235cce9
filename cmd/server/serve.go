package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/cognivyu/cognivyu/internal/api"
	"github.com/cognivyu/cognivyu/internal/auth"
	"github.com/cognivyu/cognivyu/internal/chat"
	"github.com/cognivyu/cognivyu/internal/config"
	"github.com/cognivyu/cognivyu/internal/domain"
	"github.com/cognivyu/cognivyu/internal/identity"
	"github.com/cognivyu/cognivyu/internal/llm"
	"github.com/cognivyu/cognivyu/internal/mail"
	"github.com/cognivyu/cognivyu/internal/middleware"
	"github.com/cognivyu/cognivyu/internal/probe"
	"github.com/cognivyu/cognivyu/internal/rag"
	"github.com/cognivyu/cognivyu/internal/socket"
	"github.com/cognivyu/cognivyu/internal/store"
	"github.com/cognivyu/cognivyu/internal/vector"
	"github.com/cognivyu/cognivyu/web"
)

const rateLimiterIdle = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, WebSocket and gRPC health servers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.DB.Driver, "llm_provider", cfg.LLM.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.Open(cfg.DB.Driver, cfg.DB.Path, cfg.DB.URL)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	completer, err := llm.New(ctx, llmConfig(cfg))
	if err != nil {
		return fmt.Errorf("initialize completion backend: %w", err)
	}

	vectors, err := newVectorStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := vectors.Close(); closeErr != nil {
			slog.Error("Failed to close vector store", "error", closeErr)
		}
	}()

	chatService := chat.NewService(
		rag.NewClassifier(completer, catalog),
		rag.NewRetriever(vectors, catalog),
		rag.NewGenerator(completer),
		repo,
		catalog,
	)

	// Accounts.
	mailQueue := mail.NewQueue(newMailSender(cfg), cfg.Mail.QueueSize)
	issuer := identity.NewIssuer(cfg.Auth.SecretKey, cfg.Auth.TokenTTL)
	accounts := auth.NewService(repo, issuer, mailQueue, cfg.PublicURL)

	var google api.GoogleOAuth
	if provider := auth.NewGoogleProvider(cfg.Auth.GoogleClientID, cfg.Auth.GoogleClientSecret, cfg.GoogleRedirectURL()); provider != nil {
		google = provider
		slog.Info("Google sign-in enabled")
	}

	// Initialize handlers.
	checks := map[string]api.HealthCheck{
		"database": repo.Ping,
		"vector":   vectors.HealthCheck,
	}
	sm := socket.NewSessionManager()
	healthHandler := api.NewHealthHandler(checks)
	authHandler := api.NewAuthHandler(accounts, google, !cfg.IsDevelopment())
	chatHandler := api.NewChatHandler(chatService)
	wsHandler := socket.NewWebSocketHandler(chatService, sm, api.AskErrorStatus, cfg.AllowedOrigin, cfg.IsDevelopment())

	// One bucket per user, shared by POST /ask and WebSocket ask frames.
	var askLimit func(http.Handler) http.Handler
	if cfg.AskRatePerMinute > 0 {
		limiter := middleware.NewRateLimiter(cfg.AskRatePerMinute, cfg.AskBurst, rateLimiterIdle)
		askLimit = limiter.Middleware(userKey)
		wsHandler.SetLimiter(limiter)
		startLimiterEviction(ctx, limiter)
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RedactQuery(identity.TokenQueryParam, "code", "state"))
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{cfg.AllowedOrigin}))

	// Public routes.
	healthHandler.RegisterHealth(r)
	authHandler.RegisterRoutes(r)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(issuer, repo))
		r.Get("/users/me", api.Me)
		chatHandler.RegisterRoutes(r, askLimit)
	})

	// Browsers cannot set headers on a WebSocket handshake, so only this route
	// takes the token from the query string.
	r.With(identity.Middleware(issuer, repo, identity.WithQueryToken())).Get("/ws/chat", wsHandler.ServeHTTP)

	// Embedded UI.
	ui := web.Handler()
	r.Handle("/", ui)
	r.Handle("/static/*", ui)

	// Create server. WebSocket connections are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Background workers.
	auth.StartJanitor(ctx, repo, cfg.Auth.UnverifiedTTL)
	if cfg.GRPCHealthPort != "" {
		probeChecks := make(map[string]probe.Check, len(checks))
		for name, check := range checks {
			probeChecks[name] = probe.Check(check)
		}
		go func() {
			if err := probe.NewServer(probeChecks, 0).Serve(ctx, net.JoinHostPort("", cfg.GRPCHealthPort)); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal.
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("Closing chat sessions", "count", sm.Count())
	sm.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := mailQueue.Close(shutdownCtx); err != nil {
		slog.Warn("Mail queue not drained", "error", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}

func loadCatalog(cfg *config.Config) (*domain.Catalog, error) {
	if cfg.DomainCatalogPath == "" {
		return domain.DefaultCatalog(), nil
	}
	catalog, err := domain.LoadCatalog(cfg.DomainCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load domain catalog: %w", err)
	}
	slog.Info("Domain catalog loaded", "path", cfg.DomainCatalogPath, "domains", len(catalog.Labels()))
	return catalog, nil
}

func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		Provider:      cfg.LLM.Provider,
		APIKey:        cfg.LLM.APIKey,
		BaseURL:       cfg.LLM.BaseURL,
		Model:         cfg.LLM.Model,
		GeminiAPIKey:  cfg.LLM.GeminiAPIKey,
		GeminiModel:   cfg.LLM.GeminiModel,
		GeminiBaseURL: cfg.LLM.GeminiBaseURL,
	}
}

func newVectorStore(cfg *config.Config) (*vector.Store, error) {
	embedder, err := llm.NewEmbedder(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model)
	if err != nil {
		return nil, err
	}
	vectors, err := vector.NewStore(vector.Config{
		Host:        cfg.Qdrant.Host,
		Port:        cfg.Qdrant.Port,
		APIKey:      cfg.Qdrant.APIKey,
		UseTLS:      cfg.Qdrant.UseTLS,
		Collection:  cfg.Qdrant.Collection,
		ContentKey:  cfg.Qdrant.ContentKey,
		MetadataKey: cfg.Qdrant.MetadataKey,
	}, embedder)
	if err != nil {
		return nil, fmt.Errorf("initialize vector store: %w", err)
	}
	return vectors, nil
}

func newMailSender(cfg *config.Config) mail.Sender {
	if cfg.Mail.Server == "" {
		slog.Warn("MAIL_SERVER not set, verification emails will only be logged")
		return mail.LogSender{}
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.Server,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		StartTLS: cfg.Mail.StartTLS,
	})
	if err != nil {
		slog.Error("Failed to configure SMTP, verification emails will only be logged", "error", err)
		return mail.LogSender{}
	}
	return sender
}

func userKey(r *http.Request) string {
	id := identity.UserIDFromContext(r.Context())
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func startLimiterEviction(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(rateLimiterIdle)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := limiter.Evict(); n > 0 {
					slog.Debug("Evicted idle rate limit buckets", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
