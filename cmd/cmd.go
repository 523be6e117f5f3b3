package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devlink-backend/internal/cache"
	"devlink-backend/internal/config"
	"devlink-backend/internal/handlers"
	"devlink-backend/internal/repository"
	"devlink-backend/internal/services"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func Run() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level, cfg.Log.Console)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Apply schema migrations
	if err := repository.Migrate(cfg.Database.MigrationURL()); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Connect to database
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)
	chatRepo := repository.NewChatRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	// Optional collaborators stay nil interfaces when unconfigured
	var profileCache services.ProfileCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Profile cache unavailable, continuing without it")
		} else {
			profileCache = cache.NewProfileCache(rdb, cache.DefaultTTL)
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Profile cache enabled")
		}
	}

	awsCfg, err := services.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS configuration")
	}

	var avatars services.AvatarResolver
	if cfg.AWS.S3Bucket != "" {
		avatars = services.NewAvatarService(awsCfg, cfg.AWS.S3Bucket, cfg.AWS.Endpoint)
	}

	// Initialize services
	userService := services.NewUserService(userRepo, profileCache, avatars, cfg.JWT.Secret)
	notifier := buildNotifier(cfg, awsCfg, userService)

	wsHub := services.NewWSHub()
	connectionService := services.NewConnectionService(connectionRepo, userService, notifier)
	chatService := services.NewChatService(services.NewChatGate(connectionRepo), chatRepo, userService, wsHub)
	paymentService := services.NewPaymentService(
		paymentRepo,
		userService,
		services.NewRazorpayClient(cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.KeySecret),
		cfg.Payment.KeyID,
		cfg.Payment.Currency,
		cfg.Payment.WebhookSecret,
	)

	router := handlers.NewRouter(handlers.Services{
		Users:       userService,
		Connections: connectionService,
		Chat:        chatService,
		Payments:    paymentService,
		Hub:         wsHub,
	}, cfg.Server.AllowedOrigins)

	// Create HTTP server. No WriteTimeout: websocket connections are long-lived
	// and protected routes carry their own request timeout.
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if cfg.Digest.Enabled {
		if notifier == nil {
			log.Warn().Msg("Digest enabled but no notification channel is configured, skipping")
		} else {
			digest, err := services.NewDigestScheduler(connectionRepo, notifier, cfg.Digest.Schedule)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create digest scheduler")
			}
			g.Go(func() error { return digest.Start(gctx) })
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		// Close WebSocket connections before draining HTTP
		wsHub.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Server exited")
}

// buildNotifier combines every configured delivery channel. Returns nil when
// none is configured.
func buildNotifier(cfg *config.Config, awsCfg aws.Config, lookup services.ContactLookup) services.Notifier {
	var channels []services.Notifier

	if cfg.AWS.SenderEmail != "" {
		channels = append(channels, services.NewEmailNotifier(sesv2.NewFromConfig(awsCfg), cfg.AWS.SenderEmail, lookup))
		log.Info().Str("from", cfg.AWS.SenderEmail).Msg("Email notifications enabled")
	}

	if cfg.APNs.KeyFile != "" {
		push, err := services.NewPushNotifier(
			cfg.APNs.KeyFile,
			cfg.APNs.KeyID,
			cfg.APNs.TeamID,
			cfg.APNs.Topic,
			cfg.APNs.Production,
			lookup,
		)
		if err != nil {
			log.Error().Err(err).Msg("Push notifications disabled")
		} else {
			channels = append(channels, push)
			log.Info().Str("topic", cfg.APNs.Topic).Msg("Push notifications enabled")
		}
	}

	if len(channels) == 0 {
		return nil
	}
	return services.NewMultiNotifier(channels...)
}

// setupLogger configures zerolog logger
func setupLogger(level string, console bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
