package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/asknotes/internal/model"
	"github.com/xxxsen/asknotes/internal/pkg/errcode"
	"github.com/xxxsen/asknotes/internal/pkg/response"
	"github.com/xxxsen/asknotes/internal/service"
)

type ChatHandler struct {
	qa           *service.QAService
	maxAudioSize int64
}

func NewChatHandler(qa *service.QAService, maxAudioSize int64) *ChatHandler {
	return &ChatHandler{qa: qa, maxAudioSize: maxAudioSize}
}

type chatRequest struct {
	Query     string                   `json:"query"`
	SubjectID string                   `json:"subject_id"`
	History   []model.ConversationTurn `json:"history"`
}

type chatResponse struct {
	Answer     string           `json:"answer"`
	Citations  []model.Citation `json:"citations"`
	Confidence model.Confidence `json:"confidence"`
	SubjectID  string           `json:"subject_id"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	answer, err := h.qa.Ask(c.Request.Context(), req.Query, req.SubjectID, req.History)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, chatResponse{
		Answer:     answer.Text,
		Citations:  answer.Citations,
		Confidence: answer.Confidence,
		SubjectID:  answer.SubjectID,
	})
}

var voiceHeaders = []string{"X-Transcript", "X-Answer", "X-Citations", "X-Confidence"}

// VoiceChat answers with the synthesized audio as the body and the text
// result in URL-encoded headers.
func (h *ChatHandler) VoiceChat(c *gin.Context) {
	file, err := c.FormFile("audio_file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "audio_file is required")
		return
	}
	if h.maxAudioSize > 0 && file.Size > h.maxAudioSize {
		response.Error(c, errcode.ErrInvalidFile, "audio too large (max "+formatUploadLimit(h.maxAudioSize)+")")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open audio")
		return
	}
	defer opened.Close()
	audio, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to read audio")
		return
	}
	history := parseHistory(c, c.PostForm("history"))
	mimeType := file.Header.Get("Content-Type")

	res, err := h.qa.AskVoice(c.Request.Context(), audio, mimeType, c.PostForm("subject_id"), history)
	if err != nil {
		handleError(c, err)
		return
	}
	citations, err := json.Marshal(res.Answer.Citations)
	if err != nil {
		handleError(c, err)
		return
	}
	contentType := res.Audio.MIMEType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	c.DataFromReader(http.StatusOK, int64(len(res.Audio.Data)), contentType, bytes.NewReader(res.Audio.Data), map[string]string{
		"X-Transcript":                  url.PathEscape(res.Transcript),
		"X-Answer":                      url.PathEscape(res.Answer.Text),
		"X-Citations":                   url.PathEscape(string(citations)),
		"X-Confidence":                  url.PathEscape(string(res.Answer.Confidence)),
		"Access-Control-Expose-Headers": strings.Join(voiceHeaders, ", "),
	})
}

// parseHistory treats malformed history as no history.
func parseHistory(c *gin.Context, raw string) []model.ConversationTurn {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var history []model.ConversationTurn
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		logutil.GetLogger(c.Request.Context()).Warn("ignore malformed history", zap.Error(err))
		return nil
	}
	return history
}
