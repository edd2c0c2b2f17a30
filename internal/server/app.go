// Package server builds the orchestrator's dependency graph and runs the
// HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/content-orchestrator/internal/api"
	"github.com/JakeFAU/content-orchestrator/internal/backlink"
	"github.com/JakeFAU/content-orchestrator/internal/clock/system"
	"github.com/JakeFAU/content-orchestrator/internal/config"
	"github.com/JakeFAU/content-orchestrator/internal/content"
	"github.com/JakeFAU/content-orchestrator/internal/fetch"
	"github.com/JakeFAU/content-orchestrator/internal/id/uuid"
	"github.com/JakeFAU/content-orchestrator/internal/imagegen"
	"github.com/JakeFAU/content-orchestrator/internal/leads"
	"github.com/JakeFAU/content-orchestrator/internal/llm"
	"github.com/JakeFAU/content-orchestrator/internal/lobstr"
	"github.com/JakeFAU/content-orchestrator/internal/metrics"
	"github.com/JakeFAU/content-orchestrator/internal/pipeline"
	"github.com/JakeFAU/content-orchestrator/internal/progress"
	progresssinks "github.com/JakeFAU/content-orchestrator/internal/progress/sinks"
	"github.com/JakeFAU/content-orchestrator/internal/prompt"
	memorypublisher "github.com/JakeFAU/content-orchestrator/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/content-orchestrator/internal/publisher/pubsub"
	"github.com/JakeFAU/content-orchestrator/internal/scraper"
	gcsstorage "github.com/JakeFAU/content-orchestrator/internal/storage/gcs"
	localstorage "github.com/JakeFAU/content-orchestrator/internal/storage/local"
	memorystorage "github.com/JakeFAU/content-orchestrator/internal/storage/memory"
	pgstore "github.com/JakeFAU/content-orchestrator/internal/storage/postgres"
	s3storage "github.com/JakeFAU/content-orchestrator/internal/storage/s3"
)

const shutdownTimeout = 30 * time.Second

// contentStore is everything the article workflow persists through.
type contentStore interface {
	content.ContextStore
	content.ExecutionStore
	content.ArticleStore
	content.UsageLogger
}

// leadStore is everything the scrape state machine persists through.
type leadStore interface {
	leads.RunStore
	leads.LeadStore
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	pipeline  *pipeline.Pipeline
	scraper   *scraper.Service
	reporter  *progress.Reporter
	backlinks *backlink.Dispatcher

	pool         *pgxpool.Pool
	pubsubClient *pubsub.Client
	topic        *pubsub.Topic
	storage      *storage.Client
	headless     *fetch.HeadlessFetcher
}

// Build creates the application's dependencies. Progress collectors are
// registered on reg. API keys are not read here; each adapter resolves its
// key when it makes a call.
func Build(ctx context.Context, cfg config.Config, reg prometheus.Registerer, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("database", cfg.Database.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
	)

	contents, runs, err := app.setupDatabase(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	blobs, err := app.setupStorage(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err := app.setupProgress(contents, reg); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	app.backlinks = backlink.NewDispatcher(publisher, cfg.Pipeline.BacklinkTimeout(), logger)

	if err := app.setupPipeline(contents, blobs); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	app.scraper = NewScraper(cfg, runs, logger)

	app.apiServer = api.NewServer(cfg, api.Deps{
		Workflow:   app.pipeline,
		Scraper:    app.scraper,
		Executions: contents,
		Ready:      app.ready,
	}, logger)
	return app, nil
}

// NewScraper wires the scrape state machine against the Lobstr.io API.
func NewScraper(cfg config.Config, store leadStore, logger *zap.Logger) *scraper.Service {
	secrets := config.NewSecrets()
	clock := system.New()
	ids := uuid.New()
	client := lobstr.New(lobstr.Config{
		BaseURL:       cfg.Lobstr.BaseURL,
		APIKey:        secrets.Key(cfg.Lobstr.APIKeyEnv),
		RatePerSecond: cfg.Lobstr.RatePerSecond,
	}, nil)
	return scraper.NewService(scraper.Config{
		SquidID:           cfg.Lobstr.SquidID,
		MaxPerSearch:      cfg.Lobstr.MaxResultsPerSearch,
		DeleteParallelism: cfg.Lobstr.DeleteParallelism,
	}, client, store, store, scraper.NewLeaser(cfg.Lobstr.LeaseTTL(), clock, ids), clock, ids, logger)
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server and blocks until ctx is canceled or a signal
// arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close drains background work and releases clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.pipeline != nil {
		if err := a.pipeline.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for background work: %w", err))
		}
	}
	if a.backlinks != nil {
		if err := a.backlinks.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for backlink dispatch: %w", err))
		}
	}
	if a.reporter != nil {
		if err := a.reporter.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close reporter: %w", err))
		}
	}
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.topic != nil {
		a.topic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) ready(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) (contentStore, leadStore, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, using in-memory stores")
		return memorystorage.NewContentStore(), memorystorage.NewLeadStore(), nil
	}
	pool, err := pgstore.Open(ctx, pgstore.Config{
		DSN:      a.cfg.Database.DSN,
		MaxConns: int32(a.cfg.Database.MaxConns),
		MinConns: int32(a.cfg.Database.MinConns),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres init failed: %w", err)
	}
	a.pool = pool
	a.logger.Info("postgres pool initialized", zap.Int("max_conns", a.cfg.Database.MaxConns))
	return pgstore.NewContentStore(pool), pgstore.NewLeadStore(pool), nil
}

func (a *App) setupStorage(ctx context.Context) (content.BlobStore, error) {
	sc := a.cfg.Storage
	switch sc.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: sc.Bucket, PublicBaseURL: sc.PublicBaseURL})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS storage backend", zap.String("bucket", sc.Bucket))
		return blobs, nil
	case "s3":
		blobs, err := s3storage.New(ctx, s3storage.Config{
			Bucket:        sc.Bucket,
			Region:        sc.S3Region,
			Endpoint:      sc.S3Endpoint,
			PublicBaseURL: sc.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 blob store init failed: %w", err)
		}
		a.logger.Info("using S3 storage backend", zap.String("bucket", sc.Bucket), zap.String("endpoint", sc.S3Endpoint))
		return blobs, nil
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: sc.LocalDir, PublicBaseURL: sc.PublicBaseURL})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", sc.LocalDir))
		return blobs, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(sc.PublicBaseURL), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (backlink.Publisher, error) {
	pc := a.cfg.PubSub
	if pc.ProjectID == "" || pc.BacklinkTopic == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, pc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.topic = client.Topic(pc.BacklinkTopic)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", pc.ProjectID),
		zap.String("topic", pc.BacklinkTopic))
	return gcppublisher.New(a.topic), nil
}

func (a *App) setupProgress(store content.ExecutionStore, reg prometheus.Registerer) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	a.reporter = progress.NewReporter(progress.Config{
		SinkTimeout: a.cfg.Pipeline.StatusTimeout(),
		Logger:      a.logger.Named("progress"),
		Clock:       system.New(),
	},
		progresssinks.NewStoreSink(store),
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	)
	return nil
}

func (a *App) setupPipeline(store contentStore, blobs content.BlobStore) error {
	secrets := config.NewSecrets()
	catalog, err := prompt.DefaultCatalog()
	if err != nil {
		return fmt.Errorf("prompt catalog init failed: %w", err)
	}

	completer := llm.New(llm.Config{
		BaseURL:     a.cfg.LLM.BaseURL,
		Model:       a.cfg.LLM.Model,
		APIKey:      secrets.Key(a.cfg.LLM.APIKeyEnv),
		Referer:     a.cfg.LLM.Referer,
		Title:       a.cfg.LLM.Title,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Temperature: a.cfg.LLM.Temp,
	}, nil)

	var images content.ImageService
	if a.cfg.Image.Enabled {
		gen := imagegen.NewClient(imagegen.ClientConfig{
			BaseURL: a.cfg.Image.BaseURL,
			Model:   a.cfg.Image.Model,
			Size:    a.cfg.Image.Size,
			APIKey:  secrets.Key(a.cfg.Image.APIKeyEnv),
		}, nil)
		images = imagegen.NewService(gen, catalog, blobs, uuid.New(), a.cfg.Storage.Prefix, a.logger)
	}

	fc := a.cfg.Fetch
	probe := fetch.NewProbe(fetch.ProbeConfig{UserAgent: fc.UserAgent, Timeout: fc.Timeout()})
	var headless fetch.Fetcher
	if fc.HeadlessEnabled {
		h, err := fetch.NewHeadless(fetch.HeadlessConfig{
			MaxParallel:       fc.HeadlessMaxParallel,
			UserAgent:         fc.UserAgent,
			NavigationTimeout: fc.Timeout(),
		})
		if err != nil {
			a.logger.Warn("headless fetcher init failed, continuing without rendering", zap.Error(err))
		} else {
			a.headless = h
			headless = h
		}
	}
	references := fetch.NewService(probe, headless, fetch.NewHeuristic(fc.PromotionThreshold), fc.MaxTextChars, a.logger)

	p, err := pipeline.New(pipeline.Config{
		Model:           a.cfg.LLM.Model,
		MaxTokens:       a.cfg.LLM.MaxTokens,
		Temperature:     a.cfg.LLM.Temp,
		MinArticleChars: a.cfg.Pipeline.MinArticleChars,
		MetaMaxChars:    a.cfg.Pipeline.MetaMaxChars,
		PostStatus:      a.cfg.Pipeline.PostStatus,
	}, pipeline.Deps{
		Completer:  completer,
		Prompts:    catalog,
		Context:    store,
		Executions: store,
		Articles:   store,
		Usage:      store,
		References: references,
		Images:     images,
		Backlinks:  a.backlinks,
		Progress:   a.reporter,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}
	a.pipeline = p
	return nil
}
