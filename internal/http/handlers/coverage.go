package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coverage-backend/internal/coverage/aggregate"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
	"github.com/yungbote/coverage-backend/internal/http/response"
	"github.com/yungbote/coverage-backend/internal/observability"
	"github.com/yungbote/coverage-backend/internal/platform/apierr"
	"github.com/yungbote/coverage-backend/internal/services"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerSubmissionID   = "X-Submission-Id"

	// DefaultMaxBodyBytes caps submission bodies when no limit is configured.
	DefaultMaxBodyBytes int64 = 64 << 20
)

type CoverageHandler struct {
	svc          services.CoverageService
	metrics      *observability.Metrics
	maxBodyBytes int64
}

func NewCoverageHandler(svc services.CoverageService, metrics *observability.Metrics, maxBodyBytes int64) *CoverageHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &CoverageHandler{svc: svc, metrics: metrics, maxBodyBytes: maxBodyBytes}
}

type PingResponse struct {
	ProcessedTimestamp string `json:"processed-timestamp"`
}

// Ping answers with the time the request was handled.
func (h *CoverageHandler) Ping(c *gin.Context) {
	h.metrics.IncHTTPCall("ping")
	t := h.svc.Ping(c.Request.Context())
	response.RespondOK(c, PingResponse{ProcessedTimestamp: t.UTC().Format(time.RFC3339Nano)})
}

// Test takes a raw coverage submission. Content errors are a 200 with an Err
// body; only operational failures use error statuses. A failed merge still
// sends X-Submission-Id, which the client echoes back to retry safely.
func (h *CoverageHandler) Test(c *gin.Context) {
	h.metrics.IncHTTPCall("test")

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondErr(c, apierr.BodyTooLarge(err))
			return
		}
		response.RespondErr(c, apierr.New(http.StatusBadRequest, apierr.CodeBodyUnreadable, err))
		return
	}

	res, err := h.svc.Submit(c.Request.Context(), services.SubmitRequest{
		Organisation:   c.Query("organisation"),
		Commit:         c.Query("commit"),
		IdempotencyKey: strings.TrimSpace(c.GetHeader(headerIdempotencyKey)),
		SubmissionID:   c.GetHeader(headerSubmissionID),
		ContentType:    c.ContentType(),
		Body:           body,
	})
	if res != nil {
		c.Header(headerSubmissionID, res.SubmissionID)
	}
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, coverage.EncodeResult(res.Result, h.svc.Paths()))
}

type ConflictJSON struct {
	Region coverage.WireRegion `json:"region"`
	Min    int64               `json:"statements_min"`
	Max    int64               `json:"statements_max"`
}

type ReportResponse struct {
	Organisation string              `json:"organisation"`
	Commit       string              `json:"commit"`
	Report       coverage.WireReport `json:"report"`
	Conflicts    []ConflictJSON      `json:"conflicts"`
}

// Report returns the aggregate of one commit, or of one file when the file
// query parameter is set. Unknown scopes yield an empty report.
func (h *CoverageHandler) Report(c *gin.Context) {
	h.metrics.IncHTTPCall("report")
	view, err := h.svc.Report(c.Request.Context(), services.ReportQuery{
		Organisation: c.Param("organisation"),
		Commit:       c.Param("commit"),
		File:         c.Query("file"),
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	paths := h.svc.Paths()
	response.RespondOK(c, ReportResponse{
		Organisation: view.Organisation,
		Commit:       view.Commit,
		Report:       view.Report.Wire(paths),
		Conflicts:    conflictsJSON(paths, view.Conflicts),
	})
}

func conflictsJSON(paths *coverage.PathTable, in []aggregate.Conflict) []ConflictJSON {
	out := make([]ConflictJSON, 0, len(in))
	for _, c := range in {
		out = append(out, ConflictJSON{Region: c.Region.Wire(paths), Min: c.Min, Max: c.Max})
	}
	return out
}
