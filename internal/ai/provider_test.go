package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAIGenerateRequestShape(t *testing.T) {
	var got openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  hello  "}}]}`))
	}))
	defer srv.Close()

	p, err := NewProvider("openai", map[string]interface{}{"api_key": "k", "base_url": srv.URL})
	require.NoError(t, err)
	req := UserPrompt("be brief", "hi").WithTemperature(0.1)
	req.JSON = true
	out, err := NewGenerator(p, "m1").Generate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "hello", out)
	require.Equal(t, "m1", got.Model)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "be brief", got.Messages[0].Content)
	require.NotNil(t, got.Temperature)
	require.InDelta(t, 0.1, *got.Temperature, 1e-6)
	require.NotNil(t, got.ResponseFormat)
	require.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestOpenAIStatusErrorIsTransient(t *testing.T) {
	code := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	p, err := NewEmbedProvider("openai", map[string]interface{}{"api_key": "k", "base_url": srv.URL})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), "e", "text", TaskRetrievalQuery)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusTooManyRequests, se.Code)
	require.True(t, IsTransient(err))

	code = http.StatusBadRequest
	_, err = p.Embed(context.Background(), "e", "text", TaskRetrievalQuery)
	require.Error(t, err)
	require.False(t, IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	require.False(t, IsTransient(nil))
	require.True(t, IsTransient(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	require.True(t, IsTransient(&StatusError{Code: 503}))
	require.False(t, IsTransient(&StatusError{Code: 401}))
	require.False(t, IsTransient(errors.New("boom")))
}

func TestMissingAPIKeyUnavailable(t *testing.T) {
	p, err := NewProvider("openrouter", map[string]interface{}{})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "m", UserPrompt("", "x"))
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestUnknownProvider(t *testing.T) {
	_, err := NewProvider("nope", map[string]interface{}{})
	require.Error(t, err)
	_, err = NewEmbedProvider("openrouter", map[string]interface{}{})
	require.Error(t, err)
}

type stubGenerator struct {
	out   string
	err   error
	calls int
}

func (s *stubGenerator) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	s.calls++
	return s.out, s.err
}

func TestGroupGeneratorFailover(t *testing.T) {
	first := &stubGenerator{err: errors.New("down")}
	second := &stubGenerator{out: "ok"}
	g := NewGroupGenerator([]GeneratorEntry{{Name: "a", Generator: first}, {Name: "b", Generator: second}})
	out, err := g.Generate(context.Background(), UserPrompt("", "q"))
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)

	single := &stubGenerator{out: "x"}
	require.Equal(t, single, NewGroupGenerator([]GeneratorEntry{{Name: "s", Generator: single}}))
	require.Nil(t, NewGroupGenerator(nil))
}
