package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/asknotes/internal/model"
	"github.com/xxxsen/asknotes/internal/pkg/response"
	"github.com/xxxsen/asknotes/internal/service"
)

type CatalogHandler struct {
	catalog     *service.CatalogService
	maxSubjects int
}

func NewCatalogHandler(catalog *service.CatalogService, maxSubjects int) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, maxSubjects: maxSubjects}
}

type subjectsResponse struct {
	Subjects    []model.SubjectStats `json:"subjects"`
	MaxSubjects int                  `json:"max_subjects"`
}

type filesResponse struct {
	SubjectID string            `json:"subject_id"`
	Files     []model.FileStats `json:"files"`
}

func (h *CatalogHandler) Subjects(c *gin.Context) {
	subjects, err := h.catalog.Subjects(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, subjectsResponse{Subjects: subjects, MaxSubjects: h.maxSubjects})
}

func (h *CatalogHandler) Files(c *gin.Context) {
	subjectID := strings.TrimSpace(c.Param("subject_id"))
	files, err := h.catalog.Files(c.Request.Context(), subjectID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, filesResponse{SubjectID: subjectID, Files: files})
}

func (h *CatalogHandler) Reset(c *gin.Context) {
	if err := h.catalog.Reset(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "All indexed notes have been cleared"})
}

func (h *CatalogHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
