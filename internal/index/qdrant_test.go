package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeQdrant implements the handful of endpoints the index uses.
type fakeQdrant struct {
	mu      sync.Mutex
	exists  bool
	indexed bool
	points  map[string]qdrantPoint
	order   []string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/collections/notes":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":{}}`))
	case r.Method == http.MethodPut && path == "/collections/notes":
		f.exists = true
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.Method == http.MethodDelete && path == "/collections/notes":
		f.exists = false
		f.points = map[string]qdrantPoint{}
		f.order = nil
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.Method == http.MethodPut && path == "/collections/notes/index":
		f.indexed = true
		_, _ = w.Write([]byte(`{"result":{}}`))
	case r.Method == http.MethodPut && path == "/collections/notes/points":
		var body struct {
			Points []qdrantPoint `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			if _, ok := f.points[p.ID]; !ok {
				f.order = append(f.order, p.ID)
			}
			f.points[p.ID] = p
		}
		_, _ = w.Write([]byte(`{"result":{}}`))
	case r.Method == http.MethodPost && path == "/collections/notes/points/search":
		var body struct {
			Vector []float32              `json:"vector"`
			Limit  int                    `json:"limit"`
			Filter map[string]interface{} `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		subject := filterSubject(body.Filter)
		var out []qdrantPoint
		for _, id := range f.order {
			p := f.points[id]
			if payloadSubject(p) != subject {
				continue
			}
			out = append(out, qdrantPoint{ID: p.ID, Payload: p.Payload, Score: cosine(body.Vector, p.Vector)})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		if len(out) > body.Limit {
			out = out[:body.Limit]
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": out})
	case r.Method == http.MethodPost && path == "/collections/notes/points/scroll":
		var body struct {
			Limit  int                    `json:"limit"`
			Offset *int                   `json:"offset"`
			Filter map[string]interface{} `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		conds := filterConditions(body.Filter)
		var matched []qdrantPoint
		for _, id := range f.order {
			p := f.points[id]
			if !payloadMatches(p, conds) {
				continue
			}
			matched = append(matched, p)
		}
		start := 0
		if body.Offset != nil {
			start = *body.Offset
		}
		end := start + body.Limit
		var next interface{}
		if end < len(matched) {
			next = end
		} else {
			end = len(matched)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"points": matched[start:end], "next_page_offset": next},
		})
	case r.Method == http.MethodPost && path == "/collections/notes/points/delete":
		var body struct {
			Points []string `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, id := range body.Points {
			delete(f.points, id)
			for i, o := range f.order {
				if o == id {
					f.order = append(f.order[:i], f.order[i+1:]...)
					break
				}
			}
		}
		_, _ = w.Write([]byte(`{"result":{}}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func filterConditions(filter map[string]interface{}) map[string]string {
	conds := map[string]string{}
	if filter == nil {
		return conds
	}
	raw, _ := json.Marshal(filter)
	var f struct {
		Must []struct {
			Key   string `json:"key"`
			Match struct {
				Value string `json:"value"`
			} `json:"match"`
		} `json:"must"`
	}
	_ = json.Unmarshal(raw, &f)
	for _, m := range f.Must {
		conds[m.Key] = m.Match.Value
	}
	return conds
}

func filterSubject(filter map[string]interface{}) string {
	return filterConditions(filter)["subject_id"]
}

func payloadMatches(p qdrantPoint, conds map[string]string) bool {
	var payload map[string]interface{}
	_ = json.Unmarshal(p.Payload, &payload)
	for key, want := range conds {
		if got, _ := payload[key].(string); got != want {
			return false
		}
	}
	return true
}

func payloadSubject(p qdrantPoint) string {
	var c struct {
		SubjectID string `json:"subject_id"`
	}
	_ = json.Unmarshal(p.Payload, &c)
	return c.SubjectID
}

func TestQdrantIndex(t *testing.T) {
	fake := &fakeQdrant{points: map[string]qdrantPoint{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	idx, err := New("qdrant", map[string]interface{}{"url": srv.URL, "collection": "notes", "dimension": 3})
	require.NoError(t, err)
	require.True(t, fake.exists)
	require.True(t, fake.indexed)
	runIndexSuite(t, idx)
}

func TestQdrantRejectsWrongDimension(t *testing.T) {
	fake := &fakeQdrant{points: map[string]qdrantPoint{}, exists: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	idx, err := NewQdrant(qdrantConfig{URL: srv.URL, Collection: "notes", Dimension: 4})
	require.NoError(t, err)
	err = idx.Upsert(context.Background(), testChunk("bio", "a.txt", 1, []float32{1, 2, 3}))
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "dimension"))
}

func TestQdrantUnavailable(t *testing.T) {
	_, err := NewQdrant(qdrantConfig{URL: "http://127.0.0.1:1", Collection: "notes", Dimension: 3, Timeout: 1})
	require.Error(t, err)
}
