package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
	"github.com/xxxsen/asknotes/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get("request_id")
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("kind", appErr.Kind(err)),
		zap.Error(err),
	)
	if appErr.IsUserCorrectable(err) {
		logger.Warn("request rejected")
	} else {
		logger.Error("request failed")
	}
	response.FromError(c, err)
}
