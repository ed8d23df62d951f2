package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "vectorsync-backend/cmd/api"
	authUsecase "vectorsync-backend/internal/auth/usecase"
	"vectorsync-backend/internal/notification"
	"vectorsync-backend/pkg/config"
	"vectorsync-backend/pkg/logger"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	configFile string
	cfg        *config.Config
	appLogger  *slog.Logger
	logCleanup func()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "vectorsync",
		Short:        "Keeps a vector index in sync with a user's Nextcloud content",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			var err error
			cfg, err = config.Load(configFile)
			if err != nil {
				return err
			}
			appLogger, logCleanup = logger.New(logger.Config{
				Level:    cfg.LogLevel,
				Format:   cfg.LogFormat,
				FilePath: cfg.LogFile,
			})
			slog.SetDefault(appLogger)
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logCleanup != nil {
				logCleanup()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional config file (yaml, toml or json)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScanOnceCmd())
	cmd.AddCommand(newGrantCmd())
	cmd.AddCommand(newIssueTokenCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scanner, processors and optional Pub/Sub ingester",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer a.close()

	handler := api.NewHandler(api.Deps{
		AuthUsecase:     a.authUsecase,
		SettingsUsecase: a.settings,
		Ingester:        a.ingester,
		Queue:           a.queue,
		Processor:       a.processor,
		WebhookSecret:   cfg.WebhookSecret,
		Embedding:       a.embedding,
		Logger:          appLogger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scanner.Run(gctx) })
	g.Go(func() error { return a.processor.Run(gctx) })
	g.Go(func() error { return handler.Start(gctx, ":"+cfg.Port) })
	g.Go(func() error { return a.closeQueueOnDone(gctx) })

	// Only start Pub/Sub if project ID is configured
	if cfg.GoogleProjectID != "" {
		notifService, err := notification.NewService(ctx, notification.Config{
			ProjectID:    cfg.GoogleProjectID,
			TopicName:    pubsubTopic(cfg.GooglePubSubTopic),
			Subscription: cfg.GooglePubSubSubscription,
			Credentials:  cfg.GoogleCredentials,
		}, a.ingester, appLogger)
		if err != nil {
			return fmt.Errorf("failed to initialize notification service: %w", err)
		}
		defer func() { _ = notifService.Close() }()
		g.Go(func() error { return notifService.Start(gctx) })
	} else {
		appLogger.Info("GOOGLE_PROJECT_ID not configured, Pub/Sub ingestion disabled")
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	appLogger.Info("shutdown complete", "processor", a.processor.Stats())
	return err
}

func newScanOnceCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "scan-once",
		Short: "Run one scan pass, process every resulting task, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, appLogger)
			if err != nil {
				return err
			}
			defer a.close()

			err = a.scanOnce(ctx, user)

			stats := a.processor.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d failed=%d retried=%d\n", stats.Processed, stats.Failed, stats.Retried)
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Scan only this user")
	return cmd
}

// newGrantCmd stores a content-service grant for a user, for setups without a consent UI
func newGrantCmd() *cobra.Command {
	var (
		user         string
		accessToken  string
		refreshToken string
		expiresIn    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Store an OAuth2 grant for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg, appLogger)
			if err != nil {
				return err
			}
			defer a.close()

			token := &oauth2.Token{
				AccessToken:  accessToken,
				RefreshToken: refreshToken,
				TokenType:    "Bearer",
			}
			if expiresIn > 0 {
				token.Expiry = time.Now().Add(expiresIn)
			}
			if err := a.tokenRepo.SaveToken(user, token); err != nil {
				return err
			}
			a.tokens.Invalidate(user)
			fmt.Fprintf(cmd.OutOrStdout(), "stored grant for %s\n", user)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User id")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "Access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Access token lifetime; zero means it never expires")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("access-token")
	return cmd
}

// newIssueTokenCmd prints an API token for a user, for local testing of the settings API
func newIssueTokenCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Print a JWT for the settings API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := authUsecase.NewAuthUsecase(cfg.JWTSecret, cfg.JWTAccessExpiry).GenerateAccessToken(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "vectorsync version %s\n", version)
			return err
		},
	}
}
