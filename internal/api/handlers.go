// Package api is the thin adapter layer: HTTP batch requests and WebSocket
// interactive sessions, translated into Admission Queue tasks and executor
// calls. Nothing in the orchestrator core imports this package.
package api

import (
	"context"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/executioner/internal/admission"
	"github.com/itstheanurag/executioner/internal/audit"
	"github.com/itstheanurag/executioner/internal/execution"
	"github.com/itstheanurag/executioner/internal/executor"
	"github.com/itstheanurag/executioner/internal/languages"
)

const (
	maxSourceCodePoints = 50_000
	maxStdinCodePoints  = 10_000
)

// batchRequest is the wire shape of spec.md §6's batch request.
type batchRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Input    string `json:"input"`
}

// Handler wires the HTTP surface to the Admission Queue and Batch executor.
type Handler struct {
	registry *languages.Registry
	queue    *admission.Queue
	batch    *executor.Batch
	recorder *audit.Recorder
	logger   *zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(registry *languages.Registry, queue *admission.Queue, batch *executor.Batch, recorder *audit.Recorder, logger *zerolog.Logger) *Handler {
	return &Handler{registry: registry, queue: queue, batch: batch, recorder: recorder, logger: logger}
}

// Execute handles a batch execution request. Validation happens before
// admission, per spec.md §6; the Admission Queue and executor run entirely
// off the request goroutine, with the HTTP handler blocking on the result.
func (h *Handler) Execute(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.Language == "" || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "language and code are required"})
		return
	}

	if _, err := h.registry.Lookup(req.Language); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown language: " + req.Language})
		return
	}

	if utf8.RuneCountInString(req.Code) > maxSourceCodePoints {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "source exceeds maximum size"})
		return
	}
	if utf8.RuneCountInString(req.Input) > maxStdinCodePoints {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "stdin exceeds maximum size"})
		return
	}

	resultCh := make(chan *executor.Result, 1)
	errCh := make(chan error, 1)

	h.queue.Enqueue(admission.Task{
		ID: req.Language,
		Run: func() {
			res, err := h.batch.Execute(c.Request.Context(), executor.Request{
				LanguageTag: req.Language,
				Source:      req.Code,
				Stdin:       req.Input,
			})
			if err != nil {
				errCh <- err
				return
			}
			resultCh <- res
		},
	})

	select {
	case res := <-resultCh:
		if h.recorder != nil {
			h.recorder.Record(context.Background(), audit.Record{
				ExecutionID: res.ExecutionID,
				Language:    req.Language,
				Mode:        "batch",
				Status:      res.Status,
				ExitCode:    res.ExitCode,
			})
		}
		c.JSON(http.StatusOK, res)
	case err := <-errCh:
		if errors.Is(err, execution.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Warn().Err(err).Msg("batch execution failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case <-c.Request.Context().Done():
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "client disconnected"})
	}
}

// Health reports readiness per spec.md §6: up once the registry and
// container-engine client exist, which by construction is true for any
// request this handler can serve.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// Languages lists the registry's tags.
func (h *Handler) Languages(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}
