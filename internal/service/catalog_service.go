package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/asknotes/internal/activity"
	"github.com/xxxsen/asknotes/internal/filestore"
	"github.com/xxxsen/asknotes/internal/index"
	"github.com/xxxsen/asknotes/internal/model"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
)

// CatalogService lists and clears indexed content.
type CatalogService struct {
	index index.IIndex
	store filestore.Store
	sink  activity.Sink
}

func NewCatalogService(idx index.IIndex, store filestore.Store, sink activity.Sink) *CatalogService {
	if sink == nil {
		sink = activity.NopSink{}
	}
	return &CatalogService{index: idx, store: store, sink: sink}
}

func (s *CatalogService) Subjects(ctx context.Context) ([]model.SubjectStats, error) {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []model.SubjectStats{}
	}
	return stats, nil
}

func (s *CatalogService) Files(ctx context.Context, subjectID string) ([]model.FileStats, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject_id is required", appErr.ErrInvalid)
	}
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range stats {
		if st.SubjectID == subjectID {
			return st.Files, nil
		}
	}
	return []model.FileStats{}, nil
}

// Reset irreversibly clears the index and the upload archive.
func (s *CatalogService) Reset(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	if err := s.index.Reset(ctx); err != nil {
		logger.Error("reset index failed", zap.Error(err))
		return err
	}
	if s.store != nil {
		if err := s.store.Purge(ctx); err != nil {
			logger.Error("purge archive failed", zap.Error(err))
			return err
		}
	}
	logger.Info("all indexed content cleared")
	s.sink.Emit(ctx, activity.Event{Kind: activity.KindReset, Time: time.Now()})
	return nil
}
