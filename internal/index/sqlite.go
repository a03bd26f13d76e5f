package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/didi/gendry/builder"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xxxsen/asknotes/internal/model"
)

type sqliteConfig struct {
	Path string `json:"path"`
}

var chunkColumns = []string{
	"id", "subject_id", "file_name", "page_number", "line_start", "line_end",
	"paragraph_index", "window_index", "text", "token_count", "embedding", "ctime",
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS subjects (
	subject_id TEXT PRIMARY KEY,
	ctime INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
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
	embedding BLOB NOT NULL,
	ctime INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_subject ON chunks (subject_id);
`

// sqliteIndex keeps vectors as JSON blobs and scores them in process. A single
// connection serialises writers.
type sqliteIndex struct {
	db    *sql.DB
	guard dimensionGuard
}

func NewSQLite(path string) (IIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite index path is required")
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, unavailable("open sqlite", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range strings.Split(sqliteSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, unavailable("init sqlite schema", err)
		}
	}
	idx := &sqliteIndex{db: db}
	var blob []byte
	row := db.QueryRow("SELECT embedding FROM chunks LIMIT 1")
	if err := row.Scan(&blob); err == nil {
		var vec []float32
		if json.Unmarshal(blob, &vec) == nil {
			idx.guard.reset(len(vec))
		}
	}
	return idx, nil
}

func (s *sqliteIndex) Name() string {
	return "sqlite"
}

func (s *sqliteIndex) Upsert(ctx context.Context, chunk *model.Chunk) error {
	if err := s.guard.check(chunk.Embedding); err != nil {
		return err
	}
	blob, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return err
	}
	now := chunk.Ctime
	if now == 0 {
		now = time.Now().UnixMilli()
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO subjects (subject_id, ctime) VALUES (?, ?)", chunk.SubjectID, now); err != nil {
		return unavailable("upsert subject", err)
	}
	data := map[string]interface{}{
		"id":              chunk.ID,
		"subject_id":      chunk.SubjectID,
		"file_name":       chunk.FileName,
		"page_number":     chunk.PageNumber,
		"line_start":      chunk.LineStart,
		"line_end":        chunk.LineEnd,
		"paragraph_index": chunk.ParagraphIndex,
		"window_index":    chunk.WindowIndex,
		"text":            chunk.Text,
		"token_count":     chunk.TokenCount,
		"embedding":       blob,
		"ctime":           now,
	}
	sqlStr, args, err := builder.BuildInsert("chunks", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr = strings.Replace(sqlStr, "INSERT INTO", "INSERT OR REPLACE INTO", 1)
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return unavailable("upsert chunk", err)
	}
	return nil
}

func (s *sqliteIndex) query(ctx context.Context, where map[string]interface{}) ([]model.Chunk, error) {
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkColumns)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, unavailable("query chunks", err)
	}
	defer rows.Close()
	var out []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.SubjectID, &c.FileName, &c.PageNumber, &c.LineStart, &c.LineEnd,
			&c.ParagraphIndex, &c.WindowIndex, &c.Text, &c.TokenCount, &blob, &c.Ctime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(blob, &c.Embedding); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteIndex) Search(ctx context.Context, vector []float32, subjectID string, topK int) ([]model.RetrievedChunk, error) {
	chunks, err := s.query(ctx, map[string]interface{}{"subject_id": subjectID})
	if err != nil {
		return nil, err
	}
	out := make([]model.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, model.RetrievedChunk{Chunk: c, Score: cosine(vector, c.Embedding)})
	}
	sortByScore(out)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *sqliteIndex) Scroll(ctx context.Context, subjectID string, limit int) ([]model.Chunk, error) {
	where := map[string]interface{}{"subject_id": subjectID}
	if limit > 0 {
		where["_limit"] = []uint{0, uint(limit)}
	}
	return s.query(ctx, where)
}

func (s *sqliteIndex) DeleteFile(ctx context.Context, subjectID, fileName string, keep ...string) (int, error) {
	sqlStr, args, err := builder.BuildDelete("chunks", fileWhere(subjectID, fileName, keep))
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, unavailable("delete file chunks", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqliteIndex) Stats(ctx context.Context) ([]model.SubjectStats, error) {
	const query = `
		SELECT c.subject_id, c.file_name, COUNT(*), s.rowid
		FROM chunks c JOIN subjects s ON s.subject_id = c.subject_id
		GROUP BY c.subject_id, c.file_name
		ORDER BY s.rowid, c.file_name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("stats", err)
	}
	defer rows.Close()
	b := newStatsBuilder()
	for rows.Next() {
		var subject, file string
		var n int
		var seq int64
		if err := rows.Scan(&subject, &file, &n, &seq); err != nil {
			return nil, err
		}
		b.add(subject, file, seq, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b.build(), nil
}

func (s *sqliteIndex) Reset(ctx context.Context) error {
	for _, stmt := range []string{"DELETE FROM chunks", "DELETE FROM subjects"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return unavailable("reset", err)
		}
	}
	s.guard.reset(0)
	return nil
}

func (s *sqliteIndex) Close() error {
	return s.db.Close()
}

func init() {
	Register("sqlite", func(args interface{}) (IIndex, error) {
		cfg := &sqliteConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		return NewSQLite(cfg.Path)
	})
}
