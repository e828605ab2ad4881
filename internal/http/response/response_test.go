package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coverage-backend/internal/platform/apierr"
)

func TestRespondErr(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"mapped", fmt.Errorf("report: %w", apierr.InvalidScope("commit missing")), http.StatusBadRequest, apierr.CodeInvalidScope, "commit missing: invalid argument"},
		{"unmapped hides detail", errors.New("pq: password authentication failed"), http.StatusInternalServerError, apierr.CodeInternal, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			RespondErr(c, tt.err)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var env ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Error.Code != tt.wantCode || env.Error.Message != tt.wantMessage {
				t.Fatalf("envelope = %+v", env.Error)
			}
			if len(c.Errors) != 1 {
				t.Fatalf("error not attached to context")
			}
		})
	}
}
