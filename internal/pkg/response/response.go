package response

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/xxxsen/asknotes/internal/pkg/errcode"
	appErr "github.com/xxxsen/asknotes/internal/pkg/errors"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func AsCodeErr(code uint32, msg string) error {
	return codeErr{code: code, msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, AsCodeErr(uint32(code), message))
}

var codeTable = []struct {
	err  error
	code int
}{
	{appErr.ErrUnsupportedFormat, errcode.ErrUnsupportedFormat},
	{appErr.ErrSubjectLimitExceeded, errcode.ErrSubjectLimitExceeded},
	{appErr.ErrIndexUnavailable, errcode.ErrIndexUnavailable},
	{appErr.ErrGeneration, errcode.ErrGeneration},
	{appErr.ErrTranscription, errcode.ErrTranscription},
	{appErr.ErrSynthesis, errcode.ErrSynthesis},
	{appErr.ErrInsufficientContent, errcode.ErrInsufficientContent},
	{appErr.ErrNotFound, errcode.ErrNotFound},
	{appErr.ErrInvalid, errcode.ErrInvalid},
	{appErr.ErrTooMany, errcode.ErrTooMany},
}

// CodeOf maps an error to its response code, errcode.ErrInternal when unclassified.
func CodeOf(err error) int {
	for _, item := range codeTable {
		if errors.Is(err, item.err) {
			return item.code
		}
	}
	return errcode.ErrInternal
}

// FromError renders err with its taxonomy code. Unclassified errors never leak their text.
func FromError(c *gin.Context, err error) {
	code := CodeOf(err)
	if code == errcode.ErrInternal {
		Error(c, code, "internal error")
		return
	}
	Error(c, code, err.Error())
}
