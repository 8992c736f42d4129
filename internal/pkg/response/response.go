package response

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/xxxsen/likegate/internal/pkg/errcode"
	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
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

// Error replies with HTTP 200 and the failure carried in the envelope code.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, AsCodeErr(uint32(code), message))
}

// ErrorFrom maps a service error onto its envelope code and a message that
// is safe to show callers. Unknown errors are reported as internal.
func ErrorFrom(c *gin.Context, err error) {
	code, msg := Classify(err)
	Error(c, code, msg)
}

func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, appErr.ErrForbidden):
		return errcode.ErrForbidden, "forbidden"
	case errors.Is(err, appErr.ErrNotFound):
		return errcode.ErrNotFound, "not found"
	case errors.Is(err, appErr.ErrInvalid):
		return errcode.ErrInvalid, "invalid request"
	case errors.Is(err, appErr.ErrConflict):
		return errcode.ErrConflict, "conflict"
	case errors.Is(err, appErr.ErrExternal):
		return errcode.ErrExternal, "upstream service error"
	default:
		return errcode.ErrInternal, "internal error"
	}
}
