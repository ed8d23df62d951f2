package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	authdomain "vectorsync-backend/internal/auth/domain"
	authRepo "vectorsync-backend/internal/auth/repository"
	authUsecase "vectorsync-backend/internal/auth/usecase"
	syncdomain "vectorsync-backend/internal/sync/domain"
	"vectorsync-backend/internal/sync/queue"
	syncRepo "vectorsync-backend/internal/sync/repository"
	syncUsecase "vectorsync-backend/internal/sync/usecase"
	"vectorsync-backend/pkg/chroma"
	"vectorsync-backend/pkg/chunker"
	"vectorsync-backend/pkg/config"
	"vectorsync-backend/pkg/database"
	"vectorsync-backend/pkg/embedding"
	"vectorsync-backend/pkg/memstore"
	"vectorsync-backend/pkg/nextcloud"

	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// app holds every long-lived component of the process
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB

	tokenRepo   authRepo.TokenRepository
	authUsecase authUsecase.AuthUsecase
	tokens      *authUsecase.TokenProvider

	queue     *queue.Queue
	embedding embedding.Config
	store     syncUsecase.VectorStore
	scanner   *syncUsecase.Scanner
	processor *syncUsecase.ProcessorPool
	ingester  *syncUsecase.Ingester
	settings  syncUsecase.SettingsUsecase
}

// newApp wires the engine. Call close when done.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := database.NewConnection(cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db, &syncdomain.SyncSettings{}, &authdomain.UserToken{}); err != nil {
		_ = database.Close(db)
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, db: db}
	if err := a.wire(ctx); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	// Repositories
	settingsRepo := syncRepo.NewSettingsRepository(a.db)
	a.tokenRepo = authRepo.NewTokenRepository(a.db)

	// Auth
	a.authUsecase = authUsecase.NewAuthUsecase(cfg.JWTSecret, cfg.JWTAccessExpiry)
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.OAuthAuthURL,
			TokenURL: cfg.OAuthTokenURL,
		},
	}
	a.tokens = authUsecase.NewTokenProvider(a.tokenRepo, oauthConfig, cfg.TokenCacheTTL, a.logger)

	// Content service
	if cfg.NextcloudURL == "" {
		a.logger.Warn("NEXTCLOUD_URL not set, content requests will fail")
	}
	ncClient := nextcloud.NewClient(cfg.NextcloudURL, cfg.ContentTimeout, nil, a.logger)
	kinds := syncdomain.NewKindRegistry(
		nextcloud.NewNotesHandler(ncClient, cfg.NotesFolder),
		nextcloud.NewTablesHandler(ncClient),
	)

	// Embeddings
	a.embedding = embedding.Config{
		Provider:      embedding.ProviderType(cfg.EmbeddingProvider),
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	}
	embedder, err := embedding.New(a.embedding)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding service: %w", err)
	}
	a.embedding.Provider = embedder.Provider()
	a.logger.Info("embedding service initialized", "provider", embedder.Provider())

	// Vector store
	switch cfg.VectorStore {
	case "memory":
		a.logger.Warn("using in-memory vector store, the index is lost on restart")
		a.store = memstore.New()
	default:
		storeCtx, cancel := context.WithTimeout(ctx, cfg.VectorStoreTimeout)
		defer cancel()
		store, err := chroma.NewChromaClient(storeCtx, chroma.Options{
			BaseURL:    cfg.ChromaURL,
			APIKey:     cfg.ChromaAPIKey,
			Tenant:     cfg.ChromaTenant,
			Database:   cfg.ChromaDatabase,
			Collection: cfg.ChromaCollection,
		}, embedder.EmbeddingFunction(), a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Chroma client: %w", err)
		}
		a.store = store
	}

	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return err
	}

	// Engine
	a.queue = queue.New(cfg.QueueCapacity)
	a.scanner = syncUsecase.NewScanner(settingsRepo, a.tokens, kinds, a.store, a.queue, syncUsecase.ScannerConfig{
		Interval:    cfg.ScanInterval,
		UserTimeout: cfg.ScanUserTimeout,
	}, a.logger)
	a.processor = syncUsecase.NewProcessorPool(a.queue, kinds, a.tokens, embedder, a.store, ch, settingsRepo, syncUsecase.ProcessorConfig{
		Workers:            cfg.ProcessorCount,
		PollTimeout:        cfg.PollTimeout,
		ContentTimeout:     cfg.ContentTimeout,
		EmbedTimeout:       cfg.EmbedTimeout,
		VectorStoreTimeout: cfg.VectorStoreTimeout,
		RetryBaseDelay:     cfg.RetryBaseDelay,
		MaxRetries:         cfg.RetryMaxAttempts,
		MaxDocumentChars:   cfg.MaxDocumentChars,
	}, a.logger)
	a.ingester = syncUsecase.NewIngester(syncUsecase.NewEventMapper(cfg.NotesFolder, a.logger), a.queue, a.logger)
	a.settings = syncUsecase.NewSettingsUsecase(settingsRepo, a.store, a.queue, a.scanner, cfg.VectorStoreTimeout, a.logger)
	return nil
}

// pubsubTopic extracts the short topic name from a full resource name if necessary
func pubsubTopic(name string) string {
	if parts := strings.Split(name, "/"); len(parts) > 1 {
		return parts[len(parts)-1]
	}
	return name
}

// scanOnce runs one scan pass, for one user or all enabled users, while the
// workers consume. The backlog left after the pass is drained before it returns.
func (a *app) scanOnce(ctx context.Context, user string) error {
	procCtx, cancelProc := context.WithCancel(ctx)
	procDone := make(chan struct{})
	go func() {
		defer close(procDone)
		_ = a.processor.Run(procCtx)
	}()

	var err error
	if user != "" {
		_, err = a.scanner.ScanUser(ctx, user)
	} else {
		err = a.scanner.ScanAll(ctx)
	}

	// Workers finish the task in hand before returning
	cancelProc()
	<-procDone
	if err != nil {
		return err
	}
	return a.processor.Drain(ctx)
}

// closeQueueOnDone closes the queue as soon as ctx ends, so producers are refused
// while in-flight tasks finish.
func (a *app) closeQueueOnDone(ctx context.Context) error {
	<-ctx.Done()
	a.queue.Close()
	return nil
}

func (a *app) close() {
	a.queue.Close()
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}
