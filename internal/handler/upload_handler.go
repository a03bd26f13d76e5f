package handler

import (
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/asknotes/internal/pkg/errcode"
	"github.com/xxxsen/asknotes/internal/pkg/response"
	"github.com/xxxsen/asknotes/internal/service"
)

type UploadHandler struct {
	ingest        *service.IngestService
	maxUploadSize int64
}

func NewUploadHandler(ingest *service.IngestService, maxUploadSize int64) *UploadHandler {
	return &UploadHandler{ingest: ingest, maxUploadSize: maxUploadSize}
}

type uploadResponse struct {
	Message        string `json:"message"`
	FileName       string `json:"file_name"`
	SubjectID      string `json:"subject_id"`
	FilesProcessed int    `json:"files_processed"`
	PagesProcessed int    `json:"pages_processed"`
	ChunksCreated  int    `json:"chunks_created"`
	FailedChunks   int    `json:"failed_chunks"`
}

func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		response.Error(c, errcode.ErrInvalidFile, "file too large (max "+formatUploadLimit(h.maxUploadSize)+")")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to read file")
		return
	}

	subjectID := strings.TrimSpace(c.PostForm("subject_id"))
	report, err := h.ingest.Ingest(c.Request.Context(), subjectID, file.Filename, data)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, uploadResponse{
		Message:        fmt.Sprintf("Indexed %s into %s", report.FileName, report.SubjectID),
		FileName:       report.FileName,
		SubjectID:      report.SubjectID,
		FilesProcessed: report.FilesProcessed,
		PagesProcessed: report.PagesProcessed,
		ChunksCreated:  report.ChunksCreated,
		FailedChunks:   report.FailedChunks,
	})
}
