package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/asknotes/internal/handler"
	"github.com/xxxsen/asknotes/internal/job"
	"github.com/xxxsen/asknotes/internal/middleware"
	"github.com/xxxsen/asknotes/internal/schedule"
	"github.com/xxxsen/asknotes/internal/watcher"
)

const apiPrefix = "/api/v1"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "asknotes",
		Short: "subject scoped question answering over your notes",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(a)
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "clear the index and the upload archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.catalog.Reset(cmd.Context())
		},
	}

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "ingest every archived upload again",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()
			reports, err := a.ingest.ReindexArchive(cmd.Context())
			for _, r := range reports {
				logutil.GetLogger(cmd.Context()).Info("reindexed",
					zap.String("subject_id", r.SubjectID),
					zap.String("file_name", r.FileName),
					zap.Int("chunks_created", r.ChunksCreated),
				)
			}
			return err
		},
	}

	var watchDir string
	var initial bool
	var debounce time.Duration
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "ingest files dropped into <dir>/<subject>/",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watchDir == "" {
				return fmt.Errorf("--dir is required")
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()
			return runWatcher(a, watchDir, initial, debounce)
		},
	}
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "directory holding one sub directory per subject")
	watchCmd.Flags().BoolVar(&initial, "initial", false, "ingest existing files before watching")
	watchCmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "quiet period before a changed file is ingested")

	rootCmd.AddCommand(runCmd, resetCmd, reindexCmd, watchCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(a *app) error {
	cfg := a.cfg
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("index", a.index.Name()),
		zap.String("file_store", cfg.FileStore.Type),
	)
	maxUpload := int64(cfg.RAG.MaxUploadMB) * 1024 * 1024
	deps := handler.RouterDeps{
		Upload:    handler.NewUploadHandler(a.ingest, maxUpload),
		Chat:      handler.NewChatHandler(a.qa, maxUpload),
		Quiz:      handler.NewQuizHandler(a.quiz),
		Catalog:   handler.NewCatalogHandler(a.catalog, a.ingest.MaxSubjects()),
		RateLimit: time.Duration(cfg.RateLimitSeconds) * time.Second,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		apiPrefix,
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{apiPrefix + "/voice-chat"})),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if a.cache != nil {
		cleanup := job.NewEmbeddingCacheCleanupJob(a.cache, cfg.Schedule.EmbedCacheMaxAgeDays)
		if err := scheduler.AddJob(cleanup, cfg.Schedule.EmbedCacheCleanup); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func runWatcher(a *app, dir string, initial bool, debounce time.Duration) error {
	ingest := func(ctx context.Context, subjectID, fileName string, data []byte) error {
		_, err := a.ingest.Ingest(ctx, subjectID, fileName, data)
		return err
	}
	w, err := watcher.New(dir, ingest, debounce)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if initial {
		if err := w.Initial(ctx); err != nil {
			return fmt.Errorf("initial scan: %w", err)
		}
	}
	return w.Run(ctx)
}
