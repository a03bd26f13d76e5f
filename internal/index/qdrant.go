package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xxxsen/asknotes/internal/model"
)

type qdrantConfig struct {
	URL        string `json:"url"`
	APIKey     string `json:"api_key"`
	Collection string `json:"collection"`
	Dimension  int    `json:"dimension"`
	Timeout    int    `json:"timeout"`
}

// qdrantIndex talks to the qdrant REST api. Points carry the chunk as payload.
type qdrantIndex struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
	guard      dimensionGuard
}

type qdrantPoint struct {
	ID      string          `json:"id"`
	Vector  []float32       `json:"vector,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Score   float64         `json:"score,omitempty"`
}

type qdrantStatusError struct {
	method string
	path   string
	code   int
	body   string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: status %d: %s", e.method, e.path, e.code, e.body)
}

func NewQdrant(cfg qdrantConfig) (IIndex, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant index dimension is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "asknotes"
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	q := &qdrantIndex{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}
	q.guard.reset(cfg.Dimension)
	if err := q.ensureCollection(context.Background()); err != nil {
		return nil, unavailable("init qdrant collection", err)
	}
	return q, nil
}

func (q *qdrantIndex) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.url+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &qdrantStatusError{method: method, path: path, code: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (q *qdrantIndex) collectionPath() string {
	return "/collections/" + q.collection
}

func (q *qdrantIndex) ensureCollection(ctx context.Context) error {
	err := q.do(ctx, http.MethodGet, q.collectionPath(), nil, nil)
	if err == nil {
		return nil
	}
	se, ok := err.(*qdrantStatusError)
	if !ok || se.code != http.StatusNotFound {
		return err
	}
	create := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.dimension,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, q.collectionPath(), create, nil); err != nil {
		return err
	}
	payloadIndex := map[string]interface{}{
		"field_name":   "subject_id",
		"field_schema": "keyword",
	}
	return q.do(ctx, http.MethodPut, q.collectionPath()+"/index?wait=true", payloadIndex, nil)
}

func (q *qdrantIndex) Name() string {
	return "qdrant"
}

func subjectFilter(subjectID string) map[string]interface{} {
	return map[string]interface{}{
		"must": []interface{}{
			map[string]interface{}{
				"key":   "subject_id",
				"match": map[string]interface{}{"value": subjectID},
			},
		},
	}
}

func (q *qdrantIndex) Upsert(ctx context.Context, chunk *model.Chunk) error {
	if err := q.guard.check(chunk.Embedding); err != nil {
		return err
	}
	c := *chunk
	if c.Ctime == 0 {
		c.Ctime = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	body := map[string]interface{}{
		"points": []qdrantPoint{{ID: c.ID, Vector: c.Embedding, Payload: payload}},
	}
	if err := q.do(ctx, http.MethodPut, q.collectionPath()+"/points?wait=true", body, nil); err != nil {
		return unavailable("upsert chunk", err)
	}
	return nil
}

func decodePoint(p qdrantPoint) (model.Chunk, error) {
	var c model.Chunk
	if err := json.Unmarshal(p.Payload, &c); err != nil {
		return c, fmt.Errorf("decode qdrant payload: %w", err)
	}
	c.Embedding = p.Vector
	return c, nil
}

func (q *qdrantIndex) Search(ctx context.Context, vector []float32, subjectID string, topK int) ([]model.RetrievedChunk, error) {
	if topK <= 0 {
		topK = 8
	}
	req := map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"filter":       subjectFilter(subjectID),
	}
	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, q.collectionPath()+"/points/search", req, &resp); err != nil {
		return nil, unavailable("search", err)
	}
	out := make([]model.RetrievedChunk, 0, len(resp.Result))
	for _, p := range resp.Result {
		c, err := decodePoint(p)
		if err != nil {
			return nil, err
		}
		// the server side filter is trusted but never relied upon
		if c.SubjectID != subjectID {
			continue
		}
		out = append(out, model.RetrievedChunk{Chunk: c, Score: p.Score})
	}
	sortByScore(out)
	return out, nil
}

// scroll pages through points matching filter. limit <= 0 reads everything.
func (q *qdrantIndex) scroll(ctx context.Context, filter map[string]interface{}, limit int, withVector bool) ([]model.Chunk, error) {
	const pageSize = 256
	var out []model.Chunk
	var offset interface{}
	for {
		n := pageSize
		if limit > 0 && limit-len(out) < n {
			n = limit - len(out)
		}
		req := map[string]interface{}{
			"limit":        n,
			"with_payload": true,
			"with_vector":  withVector,
		}
		if filter != nil {
			req["filter"] = filter
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []qdrantPoint `json:"points"`
				NextPageOffset interface{}   `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := q.do(ctx, http.MethodPost, q.collectionPath()+"/points/scroll", req, &resp); err != nil {
			return nil, unavailable("scroll", err)
		}
		for _, p := range resp.Result.Points {
			c, err := decodePoint(p)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		offset = resp.Result.NextPageOffset
		if offset == nil || len(resp.Result.Points) == 0 || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
	}
}

func (q *qdrantIndex) Scroll(ctx context.Context, subjectID string, limit int) ([]model.Chunk, error) {
	return q.scroll(ctx, subjectFilter(subjectID), limit, true)
}

func (q *qdrantIndex) DeleteFile(ctx context.Context, subjectID, fileName string, keep ...string) (int, error) {
	filter := subjectFilter(subjectID)
	filter["must"] = append(filter["must"].([]interface{}), map[string]interface{}{
		"key":   "file_name",
		"match": map[string]interface{}{"value": fileName},
	})
	chunks, err := q.scroll(ctx, filter, 0, false)
	if err != nil {
		return 0, err
	}
	kept := keepSet(keep)
	stale := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := kept[c.ID]; !ok {
			stale = append(stale, c.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	body := map[string]interface{}{"points": stale}
	if err := q.do(ctx, http.MethodPost, q.collectionPath()+"/points/delete?wait=true", body, nil); err != nil {
		return 0, unavailable("delete file chunks", err)
	}
	return len(stale), nil
}

func (q *qdrantIndex) Stats(ctx context.Context) ([]model.SubjectStats, error) {
	chunks, err := q.scroll(ctx, nil, 0, false)
	if err != nil {
		return nil, err
	}
	b := newStatsBuilder()
	for _, c := range chunks {
		b.add(c.SubjectID, c.FileName, c.Ctime, 1)
	}
	return b.build(), nil
}

func (q *qdrantIndex) Reset(ctx context.Context) error {
	if err := q.do(ctx, http.MethodDelete, q.collectionPath(), nil, nil); err != nil {
		return unavailable("drop collection", err)
	}
	if err := q.ensureCollection(ctx); err != nil {
		return unavailable("recreate collection", err)
	}
	return nil
}

func (q *qdrantIndex) Close() error {
	return nil
}

func init() {
	Register("qdrant", func(args interface{}) (IIndex, error) {
		cfg := qdrantConfig{}
		if err := decodeConfig(args, &cfg); err != nil {
			return nil, err
		}
		return NewQdrant(cfg)
	})
}
