// Package handler exposes the question-answering service over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/courselab/course-qa/internal/qa/biz"
	"github.com/courselab/course-qa/pkg/middleware"
)

// QAHandler holds the HTTP handlers for the QA service.
type QAHandler struct {
	svc            biz.Service
	requestTimeout time.Duration
}

// NewQAHandler creates the handler. requestTimeout is the per-request
// pipeline deadline.
func NewQAHandler(svc biz.Service, requestTimeout time.Duration) *QAHandler {
	return &QAHandler{
		svc:            svc,
		requestTimeout: requestTimeout,
	}
}

// AnswerRequest is the answer endpoint request body.
type AnswerRequest struct {
	Question string `json:"question" binding:"required"`
	Course   string `json:"course"`
	TopK     int    `json:"top_k"`
}

// AnswerResponse is the answer endpoint response body.
type AnswerResponse struct {
	Answer    string `json:"answer"`
	Course    string `json:"course,omitempty"`
	RequestID string `json:"request_id"`
	Cached    bool   `json:"cached"`
	Truncated bool   `json:"truncated"`
	Hits      int    `json:"hits"`
	Usage     any    `json:"usage"`
}

// Answer handles POST /v1/qa/answer.
func (h *QAHandler) Answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	answer, err := h.svc.Answer(ctx, biz.AnswerRequest{
		Question:  req.Question,
		Course:    req.Course,
		TopK:      req.TopK,
		RequestID: middleware.GetRequestID(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := AnswerResponse{
		Answer:    answer.Text,
		Course:    answer.Query.Course,
		RequestID: answer.RequestID,
		Cached:    answer.Cached,
		Usage:     answer.Usage,
	}
	if answer.Bundle != nil {
		resp.Truncated = answer.Bundle.Truncated
		resp.Hits = len(answer.Bundle.Hits)
	}
	c.JSON(http.StatusOK, resp)
}

// Index handles POST /v1/qa/index. It loads the configured dataset file.
func (h *QAHandler) Index(c *gin.Context) {
	report, err := h.svc.Index(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Stats handles GET /v1/qa/stats.
func (h *QAHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Courses handles GET /v1/qa/courses.
func (h *QAHandler) Courses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"courses": h.svc.Courses()})
}

// Healthz handles GET /healthz.
func (h *QAHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps pipeline errors onto HTTP statuses. Upstream details stay
// in the logs; responses carry only the failure class.
func (h *QAHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, biz.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request deadline exceeded"})
	case errors.Is(err, biz.ErrRetrievalFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "retrieval failed"})
	case errors.Is(err, biz.ErrGenerationFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "generation failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
