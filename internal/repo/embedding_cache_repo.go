package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/asknotes/internal/model"
	"github.com/xxxsen/asknotes/internal/pkg/dbutil"
)

const embeddingCacheTable = "embedding_cache"

// EmbeddingCacheRepo backs the db embedding cache on the embedding_cache table.
type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	where := map[string]interface{}{
		"model_name":   modelName,
		"task_type":    taskType,
		"content_hash": contentHash,
		"_limit":       []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect(embeddingCacheTable, where, []string{"embedding"})
	if err != nil {
		return nil, false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var vec pgvector.Vector
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&vec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query embedding cache: %w", err)
	}
	return vec.Slice(), true, nil
}

// Save upserts the entry; a later save of the same key refreshes vector and ctime.
func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.CachedEmbedding) error {
	if item.Dimension() == 0 {
		return fmt.Errorf("empty embedding for %s/%s", item.ModelName, item.TaskType)
	}
	data := map[string]interface{}{
		"model_name":   item.ModelName,
		"task_type":    item.TaskType,
		"content_hash": item.ContentHash,
		"embedding":    pgvector.NewVector(item.Vector),
		"ctime":        item.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert(embeddingCacheTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr += " ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET embedding = EXCLUDED.embedding, ctime = EXCLUDED.ctime"
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("save embedding cache: %w", err)
	}
	return nil
}

// DeleteBefore removes entries written before cutoff (unix seconds).
func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	where := map[string]interface{}{"ctime <": cutoff}
	sqlStr, args, err := builder.BuildDelete(embeddingCacheTable, where)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("purge embedding cache: %w", err)
	}
	return res.RowsAffected()
}
