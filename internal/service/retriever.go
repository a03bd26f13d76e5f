package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/asknotes/internal/ai"
	"github.com/xxxsen/asknotes/internal/index"
	"github.com/xxxsen/asknotes/internal/model"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
)

const (
	DefaultTopK            = 8
	DefaultSimilarityFloor = 0.15
)

// Retriever finds the chunks of one subject most similar to a query.
type Retriever struct {
	embedder ai.IEmbedder
	index    index.IIndex
	topK     int
	floor    float64
}

func NewRetriever(embedder ai.IEmbedder, idx index.IIndex, topK int, floor float64) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if floor <= 0 {
		floor = DefaultSimilarityFloor
	}
	return &Retriever{embedder: embedder, index: idx, topK: topK, floor: floor}
}

// Retrieve returns gated chunks sorted by score. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query, subjectID string) ([]model.RetrievedChunk, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("subject_id", subjectID))
	vector, err := r.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		logger.Error("embed query failed", zap.Error(err))
		return nil, embedError(err)
	}
	hits, err := r.index.Search(ctx, vector, subjectID, r.topK)
	if err != nil {
		logger.Error("search index failed", zap.Error(err))
		return nil, err
	}
	out := make([]model.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		logger.Debug("retrieved chunk",
			zap.String("chunk_id", hit.ID),
			zap.String("file_name", hit.FileName),
			zap.Float64("score", hit.Score),
		)
		if hit.SubjectID != subjectID {
			logger.Warn("index returned chunk of another subject", zap.String("chunk_id", hit.ID), zap.String("other_subject", hit.SubjectID))
			continue
		}
		if hit.Score < r.floor {
			continue
		}
		out = append(out, hit)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > r.topK {
		out = out[:r.topK]
	}
	logger.Info("retrieval finished", zap.Int("hits", len(hits)), zap.Int("passed", len(out)))
	return out, nil
}

// embedError classifies embedding failures as index failures unless they
// already carry a kind.
func embedError(err error) error {
	if errors.Is(err, appErr.ErrIndexUnavailable) || errors.Is(err, appErr.ErrInvalid) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: embedding: %v", appErr.ErrIndexUnavailable, err)
}
