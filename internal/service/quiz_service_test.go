package service

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/asknotes/internal/activity"
	"github.com/xxxsen/asknotes/internal/index"
	"github.com/xxxsen/asknotes/internal/model"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
)

const validQuiz = `{
  "mcqs": [
    {"question": "What does photosynthesis produce?", "options": ["A) Light", "B) Chemical energy", "C) Heat", "D) Water"], "correct_answer": "b", "explanation": "Light becomes chemical energy.", "citation": "notes.txt, Page 1"}
  ],
  "short_answer": [
    {"question": "Name the powerhouse of the cell.", "expected_answer": "Mitochondria", "citation": "notes.txt, Page 1"}
  ]
}`

func seedQuizIndex(t *testing.T, n int) index.IIndex {
	t.Helper()
	idx := index.NewMemory()
	for i := 0; i < n; i++ {
		require.NoError(t, idx.Upsert(context.Background(), &model.Chunk{
			ID:         fmt.Sprintf("c%d", i),
			SubjectID:  "biology",
			FileName:   "notes.txt",
			PageNumber: i + 1,
			Text:       fmt.Sprintf("Fact number %d about cells.", i),
			Embedding:  []float32{1, float32(i)},
		}))
	}
	return idx
}

func TestQuizGenerateParsesJSON(t *testing.T) {
	idx := seedQuizIndex(t, 4)
	gen := &scriptedGenerator{replies: []string{validQuiz}}
	sink := &recordingSink{}
	temp := float32(0.7)
	svc := NewQuizService(idx, gen, sink, QuizConfig{Temperature: &temp})

	res, err := svc.Generate(context.Background(), "biology")
	require.NoError(t, err)
	require.True(t, res.Parsed())
	require.Len(t, res.Quiz.MCQs, 1)
	require.Equal(t, "B", res.Quiz.MCQs[0].CorrectAnswer)
	require.Len(t, res.Quiz.ShortAnswers, 1)
	require.Equal(t, []activity.Kind{activity.KindQuizGenerated}, sink.kinds())

	req := gen.requests[0]
	require.True(t, req.JSON)
	require.NotNil(t, req.Temperature)
	require.InDelta(t, 0.7, *req.Temperature, 1e-6)
	prompt := req.Messages[0].Content
	for i := 0; i < 4; i++ {
		require.Contains(t, prompt, fmt.Sprintf("[notes.txt, Page %d]:", i+1))
	}
	// fewer chunks than the sample size still asks for the full quiz
	require.Contains(t, prompt, "5 Multiple Choice")
	require.Contains(t, prompt, "3 Short Answer")
}

func TestQuizGenerateStripsFences(t *testing.T) {
	idx := seedQuizIndex(t, 2)
	gen := &scriptedGenerator{replies: []string{"Here you go:\n```json\n" + validQuiz + "\n```"}}
	svc := NewQuizService(idx, gen, nil, QuizConfig{})

	res, err := svc.Generate(context.Background(), "biology")
	require.NoError(t, err)
	require.True(t, res.Parsed())
}

func TestQuizGenerateUnparsedFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"prose", "I cannot produce JSON today."},
		{"three options", `{"mcqs":[{"question":"q","options":["a","b","c"],"correct_answer":"A"}],"short_answer":[]}`},
		{"bad letter", `{"mcqs":[{"question":"q","options":["a","b","c","d"],"correct_answer":"E"}]}`},
		{"empty", `{"mcqs":[],"short_answer":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{replies: []string{tt.reply}}
			svc := NewQuizService(seedQuizIndex(t, 1), gen, nil, QuizConfig{})
			res, err := svc.Generate(context.Background(), "biology")
			require.NoError(t, err)
			require.False(t, res.Parsed())
			require.Equal(t, tt.reply, res.Raw)
			require.NotEmpty(t, res.Reason)
			require.Equal(t, 1, gen.calls())
		})
	}
}

func TestQuizGenerateEmptySubject(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{validQuiz}}
	svc := NewQuizService(seedQuizIndex(t, 3), gen, nil, QuizConfig{})

	_, err := svc.Generate(context.Background(), "history")
	require.ErrorIs(t, err, appErr.ErrInsufficientContent)
	require.Zero(t, gen.calls())

	_, err = svc.Generate(context.Background(), "")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestQuizGenerationFailure(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{fmt.Errorf("quota")}}
	svc := NewQuizService(seedQuizIndex(t, 3), gen, nil, QuizConfig{})
	_, err := svc.Generate(context.Background(), "biology")
	require.ErrorIs(t, err, appErr.ErrGeneration)
}

func TestQuizSampleWithoutReplacement(t *testing.T) {
	svc := NewQuizService(index.NewMemory(), nil, nil, QuizConfig{})
	svc.SetRand(rand.New(rand.NewSource(7)))
	chunks := make([]model.Chunk, 30)
	for i := range chunks {
		chunks[i] = model.Chunk{ID: fmt.Sprintf("c%d", i)}
	}
	picked := svc.sample(chunks, 10)
	require.Len(t, picked, 10)
	seen := map[string]bool{}
	for _, c := range picked {
		require.False(t, seen[c.ID])
		seen[c.ID] = true
	}
	require.Len(t, svc.sample(chunks[:4], 10), 4)
}

func TestStripFences(t *testing.T) {
	require.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, stripFences("noise {\"a\":1} trailing"))
	require.Equal(t, "plain", stripFences("plain"))
}
