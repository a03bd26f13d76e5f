package index

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/asknotes/internal/db"
	"github.com/xxxsen/asknotes/internal/model"
	"github.com/xxxsen/asknotes/internal/pkg/dbutil"
)

type pgvectorConfig struct {
	DSN       string `json:"dsn"`
	Table     string `json:"table"`
	Dimension int    `json:"dimension"`
}

var tableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type pgvectorIndex struct {
	db        *sql.DB
	table     string
	subjects  string
	dimension int
	guard     dimensionGuard
}

func NewPGVector(cfg pgvectorConfig) (IIndex, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("pgvector index dimension is required")
	}
	if cfg.Table == "" {
		cfg.Table = "asknotes_chunks"
	}
	if !tableNameRegex.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid pgvector table name: %s", cfg.Table)
	}
	conn, err := db.OpenDSN(cfg.DSN)
	if err != nil {
		return nil, unavailable("open postgres", err)
	}
	idx := &pgvectorIndex{
		db:        conn,
		table:     cfg.Table,
		subjects:  cfg.Table + "_subjects",
		dimension: cfg.Dimension,
	}
	idx.guard.reset(cfg.Dimension)
	if err := idx.migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, unavailable("init pgvector schema", err)
	}
	return idx, nil
}

func (p *pgvectorIndex) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			subject_id TEXT PRIMARY KEY,
			ctime BIGINT NOT NULL
		)`, p.subjects),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			page_number INTEGER NOT NULL,
			line_start INTEGER NOT NULL,
			line_end INTEGER NOT NULL,
			paragraph_index INTEGER NOT NULL,
			window_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			embedding vector(%d) NOT NULL,
			ctime BIGINT NOT NULL
		)`, p.table, p.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_subject ON %s (subject_id)`, p.table, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *pgvectorIndex) Name() string {
	return "pgvector"
}

func (p *pgvectorIndex) Upsert(ctx context.Context, chunk *model.Chunk) error {
	if err := p.guard.check(chunk.Embedding); err != nil {
		return err
	}
	now := chunk.Ctime
	if now == 0 {
		now = time.Now().UnixMilli()
	}
	if _, err := p.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (subject_id, ctime) VALUES ($1, $2) ON CONFLICT (subject_id) DO NOTHING`, p.subjects),
		chunk.SubjectID, time.Now().UnixNano()); err != nil {
		return unavailable("upsert subject", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, subject_id, file_name, page_number, line_start, line_end,
			paragraph_index, window_index, text, token_count, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			subject_id = EXCLUDED.subject_id,
			file_name = EXCLUDED.file_name,
			page_number = EXCLUDED.page_number,
			line_start = EXCLUDED.line_start,
			line_end = EXCLUDED.line_end,
			paragraph_index = EXCLUDED.paragraph_index,
			window_index = EXCLUDED.window_index,
			text = EXCLUDED.text,
			token_count = EXCLUDED.token_count,
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`, p.table)
	if _, err := p.db.ExecContext(ctx, query,
		chunk.ID, chunk.SubjectID, chunk.FileName, chunk.PageNumber, chunk.LineStart, chunk.LineEnd,
		chunk.ParagraphIndex, chunk.WindowIndex, chunk.Text, chunk.TokenCount,
		pgvector.NewVector(chunk.Embedding), now,
	); err != nil {
		return unavailable("upsert chunk", err)
	}
	return nil
}

func scanChunk(scan func(dest ...interface{}) error, extra ...interface{}) (model.Chunk, error) {
	var c model.Chunk
	var vec pgvector.Vector
	dest := []interface{}{&c.ID, &c.SubjectID, &c.FileName, &c.PageNumber, &c.LineStart, &c.LineEnd,
		&c.ParagraphIndex, &c.WindowIndex, &c.Text, &c.TokenCount, &vec, &c.Ctime}
	if err := scan(append(dest, extra...)...); err != nil {
		return c, err
	}
	c.Embedding = vec.Slice()
	return c, nil
}

func (p *pgvectorIndex) Search(ctx context.Context, vector []float32, subjectID string, topK int) ([]model.RetrievedChunk, error) {
	if topK <= 0 {
		topK = 8
	}
	query := fmt.Sprintf(`
		SELECT id, subject_id, file_name, page_number, line_start, line_end,
			paragraph_index, window_index, text, token_count, embedding, ctime,
			1 - (embedding <=> $1) AS score
		FROM %s
		WHERE subject_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, p.table)
	rows, err := p.db.QueryContext(ctx, query, pgvector.NewVector(vector), subjectID, topK)
	if err != nil {
		return nil, unavailable("search", err)
	}
	defer rows.Close()
	var out []model.RetrievedChunk
	for rows.Next() {
		var score float64
		c, err := scanChunk(rows.Scan, &score)
		if err != nil {
			return nil, err
		}
		out = append(out, model.RetrievedChunk{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByScore(out)
	return out, nil
}

func (p *pgvectorIndex) Scroll(ctx context.Context, subjectID string, limit int) ([]model.Chunk, error) {
	where := map[string]interface{}{"subject_id": subjectID}
	if limit > 0 {
		where["_limit"] = []uint{0, uint(limit)}
	}
	sqlStr, args, err := builder.BuildSelect(p.table, where, chunkColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := p.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, unavailable("scroll", err)
	}
	defer rows.Close()
	var out []model.Chunk
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *pgvectorIndex) DeleteFile(ctx context.Context, subjectID, fileName string, keep ...string) (int, error) {
	sqlStr, args, err := builder.BuildDelete(p.table, fileWhere(subjectID, fileName, keep))
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := p.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, unavailable("delete file chunks", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *pgvectorIndex) Stats(ctx context.Context) ([]model.SubjectStats, error) {
	query := fmt.Sprintf(`
		SELECT c.subject_id, c.file_name, COUNT(*), s.ctime
		FROM %s c JOIN %s s ON s.subject_id = c.subject_id
		GROUP BY c.subject_id, c.file_name, s.ctime
		ORDER BY s.ctime, c.file_name
	`, p.table, p.subjects)
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("stats", err)
	}
	defer rows.Close()
	b := newStatsBuilder()
	for rows.Next() {
		var subject, file string
		var n int
		var ctime int64
		if err := rows.Scan(&subject, &file, &n, &ctime); err != nil {
			return nil, err
		}
		b.add(subject, file, ctime, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b.build(), nil
}

func (p *pgvectorIndex) Reset(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE %s, %s", p.table, p.subjects)); err != nil {
		return unavailable("reset", err)
	}
	return nil
}

func (p *pgvectorIndex) Close() error {
	return p.db.Close()
}

func init() {
	Register("pgvector", func(args interface{}) (IIndex, error) {
		cfg := pgvectorConfig{}
		if err := decodeConfig(args, &cfg); err != nil {
			return nil, err
		}
		return NewPGVector(cfg)
	})
}
