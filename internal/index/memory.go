package index

import (
	"context"
	"sync"

	"github.com/xxxsen/asknotes/internal/model"
)

type memoryIndex struct {
	mu       sync.RWMutex
	guard    dimensionGuard
	chunks   map[string]model.Chunk
	bySubj   map[string]map[string]struct{}
	seq      int64
	firstUse map[string]int64
}

// NewMemory returns an index held entirely in process memory.
func NewMemory() IIndex {
	return &memoryIndex{
		chunks:   make(map[string]model.Chunk),
		bySubj:   make(map[string]map[string]struct{}),
		firstUse: make(map[string]int64),
	}
}

func (m *memoryIndex) Name() string {
	return "memory"
}

func (m *memoryIndex) Upsert(ctx context.Context, chunk *model.Chunk) error {
	if err := m.guard.check(chunk.Embedding); err != nil {
		return err
	}
	c := *chunk
	c.Embedding = append([]float32(nil), chunk.Embedding...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.chunks[c.ID]; ok && old.SubjectID != c.SubjectID {
		delete(m.bySubj[old.SubjectID], c.ID)
	}
	ids, ok := m.bySubj[c.SubjectID]
	if !ok {
		ids = make(map[string]struct{})
		m.bySubj[c.SubjectID] = ids
	}
	if _, ok := m.firstUse[c.SubjectID]; !ok {
		m.seq++
		m.firstUse[c.SubjectID] = m.seq
	}
	ids[c.ID] = struct{}{}
	m.chunks[c.ID] = c
	return nil
}

func (m *memoryIndex) Search(ctx context.Context, vector []float32, subjectID string, topK int) ([]model.RetrievedChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.bySubj[subjectID]
	out := make([]model.RetrievedChunk, 0, len(ids))
	for id := range ids {
		c := m.chunks[id]
		out = append(out, model.RetrievedChunk{Chunk: c, Score: cosine(vector, c.Embedding)})
	}
	sortByScore(out)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *memoryIndex) Scroll(ctx context.Context, subjectID string, limit int) ([]model.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.bySubj[subjectID]
	out := make([]model.Chunk, 0, len(ids))
	for id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, m.chunks[id])
	}
	return out, nil
}

func (m *memoryIndex) DeleteFile(ctx context.Context, subjectID, fileName string, keep ...string) (int, error) {
	kept := keepSet(keep)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id := range m.bySubj[subjectID] {
		if m.chunks[id].FileName != fileName {
			continue
		}
		if _, ok := kept[id]; ok {
			continue
		}
		delete(m.bySubj[subjectID], id)
		delete(m.chunks, id)
		removed++
	}
	return removed, nil
}

func (m *memoryIndex) Stats(ctx context.Context) ([]model.SubjectStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b := newStatsBuilder()
	for subject, ids := range m.bySubj {
		if len(ids) == 0 {
			continue
		}
		for id := range ids {
			c := m.chunks[id]
			b.add(subject, c.FileName, m.firstUse[subject], 1)
		}
	}
	return b.build(), nil
}

func (m *memoryIndex) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = make(map[string]model.Chunk)
	m.bySubj = make(map[string]map[string]struct{})
	m.firstUse = make(map[string]int64)
	m.guard.reset(0)
	return nil
}

func (m *memoryIndex) Close() error {
	return nil
}

func init() {
	Register("memory", func(args interface{}) (IIndex, error) {
		return NewMemory(), nil
	})
}
