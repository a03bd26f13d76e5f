package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/asknotes/internal/activity"
	"github.com/xxxsen/asknotes/internal/ai"
	"github.com/xxxsen/asknotes/internal/chunker"
	"github.com/xxxsen/asknotes/internal/filestore"
	"github.com/xxxsen/asknotes/internal/index"
	"github.com/xxxsen/asknotes/internal/model"
	"github.com/xxxsen/asknotes/internal/parser"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
)

const DefaultMaxSubjects = 3

type IngestConfig struct {
	MaxSubjects  int
	ChunkSize    int
	ChunkOverlap int
	Workers      int
}

// IngestService runs parse, segment, split, embed and upsert for one file.
type IngestService struct {
	embedder ai.IEmbedder
	index    index.IIndex
	store    filestore.Store
	sink     activity.Sink
	splitter *chunker.Splitter
	cfg      IngestConfig

	admitMu  sync.Mutex
	reserved map[string]int
	locksMu  sync.Mutex
	locks    map[string]*sync.Mutex
}

func NewIngestService(embedder ai.IEmbedder, idx index.IIndex, store filestore.Store, sink activity.Sink, cfg IngestConfig) *IngestService {
	if cfg.MaxSubjects <= 0 {
		cfg.MaxSubjects = DefaultMaxSubjects
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if sink == nil {
		sink = activity.NopSink{}
	}
	return &IngestService{
		embedder: embedder,
		index:    idx,
		store:    store,
		sink:     sink,
		splitter: chunker.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		cfg:      cfg,
		reserved: make(map[string]int),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *IngestService) MaxSubjects() int {
	return s.cfg.MaxSubjects
}

// admit reserves subjectID for the duration of an ingestion so concurrent
// uploads cannot push the subject count past the limit.
func (s *IngestService) admit(ctx context.Context, subjectID string) (func(), error) {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(stats)+len(s.reserved))
	for _, st := range stats {
		known[st.SubjectID] = true
	}
	for id := range s.reserved {
		known[id] = true
	}
	if !known[subjectID] && len(known) >= s.cfg.MaxSubjects {
		return nil, fmt.Errorf("%w: at most %d subjects are allowed", appErr.ErrSubjectLimitExceeded, s.cfg.MaxSubjects)
	}
	s.reserved[subjectID]++
	return func() {
		s.admitMu.Lock()
		defer s.admitMu.Unlock()
		s.reserved[subjectID]--
		if s.reserved[subjectID] <= 0 {
			delete(s.reserved, subjectID)
		}
	}, nil
}

func (s *IngestService) subjectLock(subjectID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[subjectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[subjectID] = l
	}
	return l
}

// Ingest indexes one uploaded file into subjectID.
func (s *IngestService) Ingest(ctx context.Context, subjectID, fileName string, data []byte) (*model.IngestReport, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject_id is required", appErr.ErrInvalid)
	}
	if strings.ContainsAny(subjectID, `/\`) {
		return nil, fmt.Errorf("%w: subject_id must not contain path separators", appErr.ErrInvalid)
	}
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: file name is required", appErr.ErrInvalid)
	}
	if _, err := parser.Category(fileName); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", appErr.ErrUnsupportedFormat, fileName)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("subject_id", subjectID), zap.String("file_name", fileName))

	release, err := s.admit(ctx, subjectID)
	if err != nil {
		logger.Warn("ingestion rejected", zap.Error(err))
		return nil, err
	}
	defer release()
	lock := s.subjectLock(subjectID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := parser.Parse(fileName, data)
	if err != nil {
		logger.Warn("parse document failed", zap.Error(err))
		return nil, err
	}
	doc.SubjectID = subjectID
	paragraphs, chunks := s.splitter.ChunkDocument(doc)
	logger.Info("document chunked",
		zap.Int("pages", len(doc.Pages)),
		zap.Int("paragraphs", len(paragraphs)),
		zap.Int("chunks", len(chunks)),
	)

	storedIDs, failed, lastErr := s.indexChunks(ctx, chunks)
	stored := len(storedIDs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if stored == 0 && failed > 0 {
		logger.Error("no chunk could be indexed", zap.Int("failed", failed), zap.Error(lastErr))
		return nil, lastErr
	}
	// chunks of an earlier version of the file that this run did not rewrite
	removed, err := s.index.DeleteFile(ctx, subjectID, fileName, storedIDs...)
	if err != nil {
		logger.Error("prune stale chunks failed", zap.Error(err))
		return nil, err
	}
	if removed > 0 {
		logger.Info("stale chunks removed", zap.Int("removed", removed))
	}
	if s.store != nil {
		if err := s.store.Save(ctx, filestore.Key(subjectID, fileName), data); err != nil {
			logger.Warn("archive upload failed", zap.Error(err))
		}
	}
	s.sink.Emit(ctx, activity.Event{SubjectID: subjectID, Kind: activity.KindIngested, Time: time.Now()})
	logger.Info("document ingested", zap.Int("chunks_created", stored), zap.Int("failed_chunks", failed))
	return &model.IngestReport{
		FileName:       fileName,
		SubjectID:      subjectID,
		FilesProcessed: 1,
		PagesProcessed: len(doc.Pages),
		ChunksCreated:  stored,
		FailedChunks:   failed,
	}, nil
}

// indexChunks embeds and upserts chunks concurrently and returns the ids
// stored. A failing chunk is counted and does not stop the others.
func (s *IngestService) indexChunks(ctx context.Context, chunks []model.Chunk) ([]string, int, error) {
	var failed int64
	var mu sync.Mutex
	var lastErr error
	stored := make([]string, 0, len(chunks))
	now := time.Now().UnixMilli()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range chunks {
		c := chunks[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			err := s.indexChunk(gctx, &c, now)
			if err == nil {
				mu.Lock()
				stored = append(stored, c.ID)
				mu.Unlock()
				return nil
			}
			atomic.AddInt64(&failed, 1)
			mu.Lock()
			lastErr = err
			mu.Unlock()
			logutil.GetLogger(ctx).Warn("index chunk failed", zap.String("chunk_id", c.ID), zap.Error(err))
			return nil
		})
	}
	_ = g.Wait()
	return stored, int(failed), lastErr
}

func (s *IngestService) indexChunk(ctx context.Context, c *model.Chunk, now int64) error {
	vector, err := s.embedder.Embed(ctx, c.Text, ai.TaskRetrievalDocument)
	if err != nil {
		return embedError(err)
	}
	c.Embedding = vector
	c.Ctime = now
	return s.index.Upsert(ctx, c)
}

// ReindexArchive ingests every archived file again. Stable chunk ids turn this
// into an overwrite, and chunks the new run no longer produces are dropped.
func (s *IngestService) ReindexArchive(ctx context.Context) ([]*model.IngestReport, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: file_store is not configured", appErr.ErrInvalid)
	}
	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]*model.IngestReport, 0, len(keys))
	var errs []error
	for _, key := range keys {
		subjectID, fileName, err := filestore.SplitKey(key)
		if err != nil {
			continue
		}
		data, err := s.readArchive(ctx, key)
		if appErr.IsNotFound(err) {
			logutil.GetLogger(ctx).Warn("archived file vanished before reindex", zap.String("key", key))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", key, err))
			continue
		}
		report, err := s.Ingest(ctx, subjectID, fileName, data)
		if err != nil {
			errs = append(errs, fmt.Errorf("ingest %s: %w", key, err))
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

func (s *IngestService) readArchive(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
