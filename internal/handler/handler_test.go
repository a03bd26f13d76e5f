package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/asknotes/internal/ai"
	"github.com/xxxsen/asknotes/internal/index"
	"github.com/xxxsen/asknotes/internal/model"
	"github.com/xxxsen/asknotes/internal/pkg/errcode"
	"github.com/xxxsen/asknotes/internal/service"
	"github.com/xxxsen/asknotes/internal/speech"
)

type keywordEmbedder struct{}

func (keywordEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if strings.Contains(strings.ToLower(text), "photosynthesis") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (keywordEmbedder) ModelName() string { return "fake" }

type fixedGenerator struct {
	reply string
}

func (g fixedGenerator) Generate(ctx context.Context, req *ai.GenerateRequest) (string, error) {
	return g.reply, nil
}

type fixedTranscriber struct{}

func (fixedTranscriber) Name() string { return "fake" }

func (fixedTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return "what is photosynthesis", nil
}

type fixedTTS struct{}

func (fixedTTS) Name() string { return "fake" }

func (fixedTTS) Synthesize(ctx context.Context, text string) (*speech.Audio, error) {
	return &speech.Audio{Data: []byte("ID3-audio"), MIMEType: "audio/mpeg"}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T, quizReply string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	idx := index.NewMemory()
	emb := keywordEmbedder{}
	gen := fixedGenerator{reply: "Plants turn light into energy [bio.txt, Page 1]."}
	ingest := service.NewIngestService(emb, idx, nil, nil, service.IngestConfig{MaxSubjects: 3})
	retriever := service.NewRetriever(emb, idx, 8, 0.15)
	qa := service.NewQAService(retriever, service.NewAnswerSynthesizer(gen, service.SynthesizerConfig{}),
		service.WithSpeech(fixedTranscriber{}, fixedTTS{}),
		service.WithVoiceSynthesizer(service.NewVoiceSynthesizer(gen, service.SynthesizerConfig{})))
	quiz := service.NewQuizService(idx, fixedGenerator{reply: quizReply}, nil, service.QuizConfig{})
	catalog := service.NewCatalogService(idx, nil, nil)

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), RouterDeps{
		Upload:  NewUploadHandler(ingest, 1024),
		Chat:    NewChatHandler(qa, 1024),
		Quiz:    NewQuizHandler(quiz),
		Catalog: NewCatalogHandler(catalog, ingest.MaxSubjects()),
	})
	return r
}

func doRequest(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var env envelope
	if strings.HasPrefix(resp.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	}
	return resp, env
}

func multipartRequest(t *testing.T, path, fileField, fileName string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(method, path string, payload interface{}) *http.Request {
	data, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func upload(t *testing.T, h http.Handler, subject, name, content string) envelope {
	t.Helper()
	_, env := doRequest(t, h, multipartRequest(t, "/api/v1/upload", "file", name, []byte(content), map[string]string{"subject_id": subject}))
	return env
}

func TestUploadAndChat(t *testing.T) {
	r := setupRouter(t, "")
	env := upload(t, r, "biology", "bio.txt", "Photosynthesis makes sugar from light.\n\nCells have walls.")
	require.Equal(t, 0, env.Code)
	var report uploadResponse
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.Equal(t, "biology", report.SubjectID)
	require.Equal(t, 2, report.ChunksCreated)
	require.Equal(t, 1, report.PagesProcessed)

	_, env = doRequest(t, r, jsonRequest(http.MethodPost, "/api/v1/chat", map[string]interface{}{
		"query": "Explain photosynthesis", "subject_id": "biology", "history": []interface{}{},
	}))
	require.Equal(t, 0, env.Code)
	var chat chatResponse
	require.NoError(t, json.Unmarshal(env.Data, &chat))
	require.Equal(t, model.ConfidenceHigh, chat.Confidence)
	require.Len(t, chat.Citations, 1)
	require.Equal(t, "bio.txt", chat.Citations[0].FileName)

	_, env = doRequest(t, r, jsonRequest(http.MethodPost, "/api/v1/chat", map[string]interface{}{
		"query": "Explain photosynthesis", "subject_id": "history",
	}))
	require.NoError(t, json.Unmarshal(env.Data, &chat))
	require.Equal(t, "Not found in your notes for history", chat.Answer)
	require.Equal(t, model.ConfidenceLow, chat.Confidence)
	require.Empty(t, chat.Citations)
}

func TestUploadRejections(t *testing.T) {
	r := setupRouter(t, "")
	env := upload(t, r, "biology", "notes.docx", "data")
	require.Equal(t, errcode.ErrUnsupportedFormat, env.Code)

	env = upload(t, r, "biology", "empty.txt", "")
	require.Equal(t, errcode.ErrUnsupportedFormat, env.Code)

	env = upload(t, r, "biology", "big.txt", strings.Repeat("a", 2048))
	require.Equal(t, errcode.ErrInvalidFile, env.Code)

	_, env = doRequest(t, r, multipartRequest(t, "/api/v1/upload", "", "", nil, map[string]string{"subject_id": "biology"}))
	require.Equal(t, errcode.ErrInvalidFile, env.Code)

	for _, subject := range []string{"a", "b", "c"} {
		require.Equal(t, 0, upload(t, r, subject, "n.txt", "Some text.").Code)
	}
	env = upload(t, r, "d", "n.txt", "Some text.")
	require.Equal(t, errcode.ErrSubjectLimitExceeded, env.Code)
	require.Contains(t, env.Message, "at most 3 subjects")
}

func TestChatInvalidRequest(t *testing.T) {
	r := setupRouter(t, "")
	_, env := doRequest(t, r, jsonRequest(http.MethodPost, "/api/v1/chat", map[string]string{"query": "", "subject_id": "biology"}))
	require.Equal(t, errcode.ErrInvalid, env.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	_, env = doRequest(t, r, req)
	require.Equal(t, errcode.ErrInvalid, env.Code)
}

func TestVoiceChat(t *testing.T) {
	r := setupRouter(t, "")
	upload(t, r, "biology", "bio.txt", "Photosynthesis makes sugar from light.")

	req := multipartRequest(t, "/api/v1/voice-chat", "audio_file", "q.webm", []byte("webm"), map[string]string{
		"subject_id": "biology",
		"history":    "not json",
	})
	resp, _ := doRequest(t, r, req)
	require.Equal(t, "audio/mpeg", resp.Header().Get("Content-Type"))
	require.Equal(t, "ID3-audio", resp.Body.String())

	transcript, err := url.PathUnescape(resp.Header().Get("X-Transcript"))
	require.NoError(t, err)
	require.Equal(t, "what is photosynthesis", transcript)
	require.Equal(t, "High", resp.Header().Get("X-Confidence"))
	raw, err := url.PathUnescape(resp.Header().Get("X-Citations"))
	require.NoError(t, err)
	var cites []model.Citation
	require.NoError(t, json.Unmarshal([]byte(raw), &cites))
	require.Len(t, cites, 1)
	require.Contains(t, resp.Header().Get("Access-Control-Expose-Headers"), "X-Answer")

	_, env := doRequest(t, r, multipartRequest(t, "/api/v1/voice-chat", "", "", nil, map[string]string{"subject_id": "biology"}))
	require.Equal(t, errcode.ErrInvalidFile, env.Code)
}

func TestQuizEndpoints(t *testing.T) {
	quiz := `{"mcqs":[{"question":"q","options":["A) a","B) b","C) c","D) d"],"correct_answer":"A","explanation":"e","citation":"bio.txt, Page 1"}],"short_answer":[]}`
	r := setupRouter(t, quiz)

	_, env := doRequest(t, r, jsonRequest(http.MethodPost, "/api/v1/study_mode", map[string]string{"subject_id": "biology"}))
	require.Equal(t, errcode.ErrInsufficientContent, env.Code)

	upload(t, r, "biology", "bio.txt", "Photosynthesis makes sugar from light.")
	_, env = doRequest(t, r, jsonRequest(http.MethodPost, "/api/v1/quiz", map[string]string{"subject_id": "biology"}))
	require.Equal(t, 0, env.Code)
	var resp quizResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Len(t, resp.MCQs, 1)
	require.Empty(t, resp.ShortAnswers)
	require.Nil(t, resp.Error)
	require.Nil(t, resp.RawResponse)
}

func TestQuizUnparsedPayload(t *testing.T) {
	r := setupRouter(t, "no json here")
	upload(t, r, "biology", "bio.txt", "Photosynthesis makes sugar from light.")
	_, env := doRequest(t, r, jsonRequest(http.MethodPost, "/api/v1/study_mode", map[string]string{"subject_id": "biology"}))
	require.Equal(t, 0, env.Code)
	var resp quizResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.NotNil(t, resp.Error)
	require.NotNil(t, resp.RawResponse)
	require.Equal(t, "no json here", *resp.RawResponse)
	require.Empty(t, resp.MCQs)
}

func TestCatalogEndpoints(t *testing.T) {
	r := setupRouter(t, "")
	upload(t, r, "biology", "bio.txt", "Photosynthesis makes sugar from light.\n\nCells have walls.")
	upload(t, r, "history", "rome.txt", "Rome was founded.")

	_, env := doRequest(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/subjects", nil))
	var subjects subjectsResponse
	require.NoError(t, json.Unmarshal(env.Data, &subjects))
	require.Equal(t, 3, subjects.MaxSubjects)
	require.Len(t, subjects.Subjects, 2)
	require.Equal(t, "biology", subjects.Subjects[0].SubjectID)
	require.Equal(t, 2, subjects.Subjects[0].Chunks)

	_, env = doRequest(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/files/biology", nil))
	var files filesResponse
	require.NoError(t, json.Unmarshal(env.Data, &files))
	require.Len(t, files.Files, 1)
	require.Equal(t, "bio.txt", files.Files[0].FileName)

	_, env = doRequest(t, r, httptest.NewRequest(http.MethodDelete, "/api/v1/reset", nil))
	require.Equal(t, 0, env.Code)
	_, env = doRequest(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/subjects", nil))
	require.NoError(t, json.Unmarshal(env.Data, &subjects))
	require.Empty(t, subjects.Subjects)

	_, env = doRequest(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.JSONEq(t, `{"status":"ok"}`, string(env.Data))
}

func TestFormatUploadLimit(t *testing.T) {
	require.Equal(t, "0MB", formatUploadLimit(0))
	require.Equal(t, "50MB", formatUploadLimit(50*1024*1024))
	require.Equal(t, "512KB", formatUploadLimit(512*1024))
	require.Equal(t, "100B", formatUploadLimit(100))
}
