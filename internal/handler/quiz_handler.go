package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/asknotes/internal/model"
	"github.com/xxxsen/asknotes/internal/pkg/errcode"
	"github.com/xxxsen/asknotes/internal/pkg/response"
	"github.com/xxxsen/asknotes/internal/service"
)

type QuizHandler struct {
	quiz *service.QuizService
}

func NewQuizHandler(quiz *service.QuizService) *QuizHandler {
	return &QuizHandler{quiz: quiz}
}

type quizRequest struct {
	SubjectID string `json:"subject_id"`
}

type quizResponse struct {
	SubjectID    string              `json:"subject_id"`
	MCQs         []model.MCQ         `json:"mcqs"`
	ShortAnswers []model.ShortAnswer `json:"short_answer"`
	Error        *string             `json:"error"`
	RawResponse  *string             `json:"raw_response"`
}

func (h *QuizHandler) Generate(c *gin.Context) {
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.quiz.Generate(c.Request.Context(), req.SubjectID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, toQuizResponse(result))
}

func toQuizResponse(result *model.QuizResult) quizResponse {
	resp := quizResponse{
		SubjectID:    result.SubjectID,
		MCQs:         []model.MCQ{},
		ShortAnswers: []model.ShortAnswer{},
	}
	if !result.Parsed() {
		reason, raw := result.Reason, result.Raw
		resp.Error = &reason
		resp.RawResponse = &raw
		return resp
	}
	if result.Quiz.MCQs != nil {
		resp.MCQs = result.Quiz.MCQs
	}
	if result.Quiz.ShortAnswers != nil {
		resp.ShortAnswers = result.Quiz.ShortAnswers
	}
	return resp
}
