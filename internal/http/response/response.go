package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coverage-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondErr answers with the status and code of an *apierr.Error in err's
// chain, or a 500 when there is none. The error is also attached to c for the
// request log.
func RespondErr(c *gin.Context, err error) {
	status, code := apierr.StatusOf(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError && code == apierr.CodeInternal {
		// Unmapped errors may carry internals; keep them in the log only.
		RespondError(c, status, code, errors.New(http.StatusText(status)))
		return
	}
	RespondError(c, status, code, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
