package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/asknotes/internal/activity"
	"github.com/xxxsen/asknotes/internal/ai"
	"github.com/xxxsen/asknotes/internal/config"
	"github.com/xxxsen/asknotes/internal/db"
	"github.com/xxxsen/asknotes/internal/embedcache"
	"github.com/xxxsen/asknotes/internal/filestore"
	"github.com/xxxsen/asknotes/internal/index"
	"github.com/xxxsen/asknotes/internal/repo"
	"github.com/xxxsen/asknotes/internal/service"
	"github.com/xxxsen/asknotes/internal/speech"
)

type app struct {
	cfg     *config.Config
	db      *sql.DB
	index   index.IIndex
	store   filestore.Store
	sink    activity.Sink
	cache   *repo.EmbeddingCacheRepo
	ingest  *service.IngestService
	qa      *service.QAService
	quiz    *service.QuizService
	catalog *service.CatalogService
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

// newApp wires storage, providers and services. withModels=false skips the
// ai and speech providers for maintenance commands that never call them.
func newApp(cfg *config.Config, withModels bool) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	if cfg.Database.Enabled() {
		if a.db, err = db.Open(cfg.Database); err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := db.ApplyMigrations(context.Background(), a.db); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		a.cache = repo.NewEmbeddingCacheRepo(a.db)
	}
	if a.index, err = index.New(cfg.Index.Type, cfg.Index.Data); err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	if a.store, err = filestore.New(cfg.FileStore); err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}
	if a.sink, err = activity.New(cfg.Activity.Type); err != nil {
		return nil, err
	}
	a.catalog = service.NewCatalogService(a.index, a.store, a.sink)
	if !withModels {
		ok = true
		return a, nil
	}

	embedder, err := buildEmbedder(cfg, a.cache)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.AI.Timeout) * time.Second
	answerGen, err := buildGenerator(cfg, cfg.AI.Answer)
	if err != nil {
		return nil, fmt.Errorf("init answer generator: %w", err)
	}
	voiceGen, err := buildGenerator(cfg, cfg.AI.Voice)
	if err != nil {
		return nil, fmt.Errorf("init voice generator: %w", err)
	}
	quizGen, err := buildGenerator(cfg, cfg.AI.Quiz)
	if err != nil {
		return nil, fmt.Errorf("init quiz generator: %w", err)
	}

	a.ingest = service.NewIngestService(embedder, a.index, a.store, a.sink, service.IngestConfig{
		MaxSubjects:  config.MaxSubjects,
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		Workers:      cfg.RAG.EmbedWorkers,
	})
	synthCfg := service.SynthesizerConfig{
		HistoryTurns: cfg.RAG.HistoryTurns,
		Temperature:  cfg.AI.AnswerTemperature,
		Timeout:      timeout,
	}
	opts := []service.QAOption{
		service.WithVoiceSynthesizer(service.NewVoiceSynthesizer(voiceGen, synthCfg)),
		service.WithActivitySink(a.sink),
	}
	transcriber, tts, err := buildSpeech(cfg)
	if err != nil {
		return nil, err
	}
	if transcriber != nil || tts != nil {
		opts = append(opts, service.WithSpeech(transcriber, tts))
	}
	retriever := service.NewRetriever(embedder, a.index, cfg.RAG.TopK, cfg.RAG.SimilarityFloor)
	a.qa = service.NewQAService(retriever, service.NewAnswerSynthesizer(answerGen, synthCfg), opts...)
	a.quiz = service.NewQuizService(a.index, quizGen, a.sink, service.QuizConfig{
		Pool:        cfg.RAG.QuizPool,
		Sample:      cfg.RAG.QuizSample,
		Temperature: cfg.AI.QuizTemperature,
		Timeout:     timeout,
	})
	ok = true
	return a, nil
}

func (a *app) Close() {
	if a.index != nil {
		_ = a.index.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func buildEmbedder(cfg *config.Config, cache *repo.EmbeddingCacheRepo) (ai.IEmbedder, error) {
	entry := cfg.AI.Embed
	if entry.Provider == "" || entry.Model == "" {
		return nil, fmt.Errorf("ai.embed provider and model are required")
	}
	pc, _ := cfg.Provider(entry.Provider)
	provider, err := ai.NewEmbedProvider(pc.Type, pc.Data)
	if err != nil {
		return nil, fmt.Errorf("init embed provider %s: %w", entry.Provider, err)
	}
	embedder := ai.NewEmbedder(provider, entry.Model)
	if cfg.AI.EmbedCache.DB && cache != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cache)
	}
	if cfg.AI.EmbedCache.LRUSize > 0 {
		ttl := time.Duration(cfg.AI.EmbedCache.LRUTTLMinutes) * time.Minute
		embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.EmbedCache.LRUSize, ttl)
	}
	logutil.GetLogger(context.Background()).Info("embedder ready", zap.String("model", embedder.ModelName()))
	return embedder, nil
}

func buildGenerator(cfg *config.Config, entries []config.ModelEntry) (ai.IGenerator, error) {
	items := make([]ai.GeneratorEntry, 0, len(entries))
	for _, e := range entries {
		pc, _ := cfg.Provider(e.Provider)
		provider, err := ai.NewProvider(pc.Type, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init provider %s: %w", e.Provider, err)
		}
		items = append(items, ai.GeneratorEntry{
			Name:      e.Provider + ":" + e.Model,
			Generator: ai.NewGenerator(provider, e.Model),
		})
	}
	return ai.NewGroupGenerator(items), nil
}

func buildSpeech(cfg *config.Config) (speech.ITranscriber, speech.ISynthesizer, error) {
	var transcriber speech.ITranscriber
	var tts speech.ISynthesizer
	var err error
	if t := cfg.Speech.Transcriber; t.Type != "" {
		if transcriber, err = speech.NewTranscriber(t.Type, t.Data); err != nil {
			return nil, nil, fmt.Errorf("init transcriber: %w", err)
		}
	}
	if s := cfg.Speech.Synthesizer; s.Type != "" {
		if tts, err = speech.NewSynthesizer(s.Type, s.Data); err != nil {
			return nil, nil, fmt.Errorf("init synthesizer: %w", err)
		}
	}
	return transcriber, tts, nil
}
