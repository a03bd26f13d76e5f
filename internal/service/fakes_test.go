package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/xxxsen/asknotes/internal/activity"
	"github.com/xxxsen/asknotes/internal/ai"
	"github.com/xxxsen/asknotes/internal/speech"
)

// topicEmbedder maps text onto one axis per known keyword so similarity is
// predictable in tests.
type topicEmbedder struct {
	topics []string
	failOn string
	calls  int64
}

func newTopicEmbedder(topics ...string) *topicEmbedder {
	return &topicEmbedder{topics: topics}
}

func (e *topicEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	atomic.AddInt64(&e.calls, 1)
	lower := strings.ToLower(text)
	if e.failOn != "" && strings.Contains(lower, e.failOn) {
		return nil, &ai.StatusError{Provider: "fake", Code: 500, Body: "embed failed"}
	}
	vec := make([]float32, len(e.topics)+1)
	matched := false
	for i, topic := range e.topics {
		if strings.Contains(lower, topic) {
			vec[i] = 1
			matched = true
		}
	}
	if !matched {
		vec[len(e.topics)] = 1
	}
	return vec, nil
}

func (e *topicEmbedder) ModelName() string {
	return "fake:topics"
}

type scriptedGenerator struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []*ai.GenerateRequest
}

func (g *scriptedGenerator) Generate(ctx context.Context, req *ai.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := len(g.requests)
	g.requests = append(g.requests, req)
	if idx < len(g.errs) && g.errs[idx] != nil {
		return "", g.errs[idx]
	}
	if len(g.replies) == 0 {
		return "", nil
	}
	if idx >= len(g.replies) {
		idx = len(g.replies) - 1
	}
	return g.replies[idx], nil
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return f.text, f.err
}

type fakeTTS struct {
	err  error
	text string
}

func (f *fakeTTS) Name() string { return "fake" }

func (f *fakeTTS) Synthesize(ctx context.Context, text string) (*speech.Audio, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.text = text
	return &speech.Audio{Data: []byte("mp3:" + text), MIMEType: "audio/mpeg"}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []activity.Event
}

func (s *recordingSink) Emit(ctx context.Context, ev activity.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) kinds() []activity.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]activity.Kind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}
