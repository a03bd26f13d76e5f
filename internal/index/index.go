package index

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/asknotes/internal/model"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
)

// IIndex is the subject partitioned vector store. Implementations are safe for
// concurrent use and idempotent on chunk id.
type IIndex interface {
	Name() string
	Upsert(ctx context.Context, chunk *model.Chunk) error
	// Search returns chunks of subjectID only, best first.
	Search(ctx context.Context, vector []float32, subjectID string, topK int) ([]model.RetrievedChunk, error)
	Scroll(ctx context.Context, subjectID string, limit int) ([]model.Chunk, error)
	// DeleteFile removes the chunks of one subject file whose id is not in
	// keep and returns how many were removed.
	DeleteFile(ctx context.Context, subjectID, fileName string, keep ...string) (int, error)
	// Stats lists subjects in order of first use.
	Stats(ctx context.Context) ([]model.SubjectStats, error)
	Reset(ctx context.Context) error
	Close() error
}

type Factory func(args interface{}) (IIndex, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func New(name string, args interface{}) (IIndex, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported index type: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode index config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode index config: %w", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", appErr.ErrIndexUnavailable, op, err)
}

// dimensionGuard pins the vector size, either configured or learned from the
// first vector written.
type dimensionGuard struct {
	mu  sync.Mutex
	dim int
}

func (g *dimensionGuard) check(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty embedding", appErr.ErrInvalid)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dim == 0 {
		g.dim = len(vector)
		return nil
	}
	if g.dim != len(vector) {
		return fmt.Errorf("%w: embedding dimension %d, index expects %d", appErr.ErrInvalid, len(vector), g.dim)
	}
	return nil
}

func (g *dimensionGuard) reset(configured int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dim = configured
}

// fileWhere selects the chunks of one subject file outside keep, in gendry form.
func fileWhere(subjectID, fileName string, keep []string) map[string]interface{} {
	where := map[string]interface{}{
		"subject_id": subjectID,
		"file_name":  fileName,
	}
	if len(keep) > 0 {
		ids := make([]interface{}, 0, len(keep))
		for _, id := range keep {
			ids = append(ids, id)
		}
		where["id not in"] = ids
	}
	return where
}

func keepSet(keep []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		set[id] = struct{}{}
	}
	return set
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortByScore(items []model.RetrievedChunk) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}

// statsBuilder folds chunk rows into per subject, per file counts.
type statsBuilder struct {
	order    []string
	subjects map[string]*model.SubjectStats
	files    map[string]map[string]int
}

func newStatsBuilder() *statsBuilder {
	return &statsBuilder{
		subjects: make(map[string]*model.SubjectStats),
		files:    make(map[string]map[string]int),
	}
}

func (b *statsBuilder) add(subjectID, fileName string, ctime int64, n int) {
	s, ok := b.subjects[subjectID]
	if !ok {
		s = &model.SubjectStats{SubjectID: subjectID, Ctime: ctime}
		b.subjects[subjectID] = s
		b.files[subjectID] = make(map[string]int)
		b.order = append(b.order, subjectID)
	}
	if ctime < s.Ctime {
		s.Ctime = ctime
	}
	s.Chunks += n
	if _, ok := b.files[subjectID][fileName]; !ok {
		s.Files = append(s.Files, model.FileStats{FileName: fileName})
	}
	b.files[subjectID][fileName] += n
}

func (b *statsBuilder) build() []model.SubjectStats {
	out := make([]model.SubjectStats, 0, len(b.order))
	for _, id := range b.order {
		s := b.subjects[id]
		for i := range s.Files {
			s.Files[i].Chunks = b.files[id][s.Files[i].FileName]
		}
		sort.SliceStable(s.Files, func(i, j int) bool {
			return s.Files[i].FileName < s.Files[j].FileName
		})
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Ctime < out[j].Ctime
	})
	return out
}
