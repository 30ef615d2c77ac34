package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/domain"
	"github.com/cvd-expert-server/internal/health"
	"github.com/cvd-expert-server/internal/history"
	"github.com/cvd-expert-server/internal/middleware"
	"github.com/cvd-expert-server/internal/service"
)

// maxHistoryLimit caps the history page size a client may request.
const maxHistoryLimit = 500

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": health.StateHealthy})
		return
	}
	status := s.deps.Health.Run(c.Request.Context())
	code := http.StatusOK
	if status.Overall == health.StateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (s *Server) handleDiagnose(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		s.respondError(c, http.StatusBadRequest,
			domain.NewAPIError(domain.ErrCodeInvalidInput, "request body must be a JSON object", "", ""), err)
		return
	}

	report, err := s.deps.Diagnosis.Diagnose(c.Request.Context(), raw)
	if err != nil {
		s.respondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := s.config.History.DefaultLimit
	if limit <= 0 {
		limit = history.DefaultLimit
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			apiErr := domain.NewAPIError(domain.ErrCodeValidation, "limit must be a positive integer", "", "")
			apiErr.Field = "limit"
			s.respondError(c, http.StatusBadRequest, apiErr, nil)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	filter := history.Filter{Patient: strings.TrimSpace(c.Query("patient"))}
	records := s.deps.History.QueryRecent(c.Request.Context(), limit, filter)
	if records == nil {
		records = []history.Record{}
	}

	if c.Query("format") == "flat" {
		c.JSON(http.StatusOK, gin.H{"history": history.Summaries(records)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

func (s *Server) handleHistoryRecord(c *gin.Context) {
	rec, err := s.deps.History.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.respondError(c, http.StatusNotFound,
				domain.NewAPIError(domain.ErrCodeNotFound, "history record not found", "", ""), nil)
			return
		}
		s.respondError(c, http.StatusInternalServerError,
			domain.NewAPIError(domain.ErrCodeInternal, "history lookup failed", "", ""), err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleOntologyStats(c *gin.Context) {
	stats, err := s.deps.Knowledge.Stats()
	if err != nil {
		s.respondError(c, http.StatusInternalServerError,
			domain.NewAPIError(domain.ErrCodeKnowledgeBase, "knowledge base unavailable", "", ""), err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleDescriptions(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Knowledge.Descriptions())
}

func (s *Server) handleScores(c *gin.Context) {
	var req service.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest,
			domain.NewAPIError(domain.ErrCodeInvalidInput, "invalid score request", "", ""), err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Scores.Calculate(req))
}

// respondPipelineError maps a Diagnose failure onto the error envelope.
func (s *Server) respondPipelineError(c *gin.Context, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		apiErr := domain.NewAPIError(domain.ErrCodeValidation, ve.Message, "", "")
		apiErr.Field = ve.Field
		s.respondError(c, http.StatusBadRequest, apiErr, nil)
	case errors.Is(err, domain.ErrKnowledgeBaseUnavailable):
		s.respondError(c, http.StatusInternalServerError,
			domain.NewAPIError(domain.ErrCodeKnowledgeBase, "knowledge base unavailable", "", ""), err)
	default:
		s.respondError(c, http.StatusInternalServerError,
			domain.NewAPIError(domain.ErrCodeInternal, "diagnosis failed", "", ""), err)
	}
}

// respondError writes apiErr. The underlying cause is logged for server
// errors and echoed as the traceback only outside production.
func (s *Server) respondError(c *gin.Context, status int, apiErr *domain.APIError, cause error) {
	apiErr.RequestID = c.GetString(middleware.CorrelationIDKey)
	if cause != nil {
		if s.config.Environment != "production" {
			apiErr.Details = fmt.Sprintf("%+v", cause)
		}
		entry := s.logger.WithError(cause).WithFields(logrus.Fields{
			"correlation_id": apiErr.RequestID,
			"code":           apiErr.Code,
		})
		if status >= http.StatusInternalServerError {
			entry.Error("Request failed")
		} else {
			entry.Debug("Request rejected")
		}
	}
	c.AbortWithStatusJSON(status, apiErr)
}
