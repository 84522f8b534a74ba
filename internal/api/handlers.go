// Package api exposes the reconciliation workflow over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"baborette-reconciliation-service/internal/models"
	"baborette-reconciliation-service/internal/reconciler"
	"baborette-reconciliation-service/pkg/errors"
	"baborette-reconciliation-service/pkg/logger"
)

// ReconciliationService is what the handlers need from the reconciler.
type ReconciliationService interface {
	ProcessMapa(ctx context.Context, req reconciler.ProcessRequest) (*reconciler.ProcessResult, error)
	Get(ctx context.Context, id string) (*models.ReconciliacaoMensal, error)
	List(ctx context.Context, filter reconciler.ListFilter) ([]*models.ReconciliacaoMensal, error)
	ResolveItem(ctx context.Context, reconciliacaoID, itemID string, patch reconciler.ItemPatch) (*models.ReconciliacaoMensal, error)
	StartReview(ctx context.Context, id string) (*models.ReconciliacaoMensal, error)
	UpdateNotas(ctx context.Context, id, notas string) (*models.ReconciliacaoMensal, error)
}

// Handler holds the HTTP endpoints.
type Handler struct {
	svc       ReconciliationService
	uploadDir string
	log       logger.Logger
}

// NewHandler creates the endpoint set. uploadDir receives stored mapa
// uploads and is created if absent.
func NewHandler(svc ReconciliationService, uploadDir string) (*Handler, error) {
	if svc == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "reconciliation service", nil)
	}
	if strings.TrimSpace(uploadDir) == "" {
		uploadDir = "uploads"
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "upload directory", err)
	}

	return &Handler{
		svc:       svc,
		uploadDir: uploadDir,
		log:       logger.GetGlobalLogger().WithComponent("api"),
	}, nil
}

// CreateReconciliation handles POST /api/v1/reconciliacoes: a multipart
// upload with the mapa file under "arquivo" plus mes and ano form fields.
func (h *Handler) CreateReconciliation(c *gin.Context) {
	mes, err := strconv.Atoi(c.PostForm("mes"))
	if err != nil {
		h.writeError(c, errors.ValidationError(errors.CodeInvalidPeriod, "mes", c.PostForm("mes")))
		return
	}
	ano, err := strconv.Atoi(c.PostForm("ano"))
	if err != nil {
		h.writeError(c, errors.ValidationError(errors.CodeInvalidPeriod, "ano", c.PostForm("ano")))
		return
	}

	file, err := c.FormFile("arquivo")
	if err != nil {
		h.writeError(c, errors.ValidationError(errors.CodeMissingField, "arquivo", nil))
		return
	}

	// Stored under a fresh name; the original name is kept on the record.
	stored := filepath.Join(h.uploadDir,
		fmt.Sprintf("%s-%s", uuid.New().String(), filepath.Base(file.Filename)))
	if err := c.SaveUploadedFile(file, stored); err != nil {
		h.writeError(c, errors.FileError(errors.CodeFileUnreadable, stored, err))
		return
	}

	result, err := h.svc.ProcessMapa(c.Request.Context(), reconciler.ProcessRequest{
		FilePath:    stored,
		NomeArquivo: file.Filename,
		Mes:         mes,
		Ano:         ano,
	})
	if err != nil {
		// A rejected document leaves no reconciliation behind, so its
		// stored copy would only accumulate as an orphan.
		if rmErr := os.Remove(stored); rmErr != nil {
			h.log.WithError(rmErr).WithField("path", stored).Warn("failed to remove rejected upload")
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": result.Reconciliacao})
}

// ListReconciliations handles GET /api/v1/reconciliacoes with optional
// mes, ano and estado query filters.
func (h *Handler) ListReconciliations(c *gin.Context) {
	var filter reconciler.ListFilter

	if raw := c.Query("mes"); raw != "" {
		mes, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(c, errors.ValidationError(errors.CodeInvalidPeriod, "mes", raw))
			return
		}
		filter.Mes = &mes
	}
	if raw := c.Query("ano"); raw != "" {
		ano, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(c, errors.ValidationError(errors.CodeInvalidPeriod, "ano", raw))
			return
		}
		filter.Ano = &ano
	}
	if raw := c.Query("estado"); raw != "" {
		estado := models.EstadoReconciliacao(raw)
		filter.Estado = &estado
	}

	recs, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": recs})
}

// GetReconciliation handles GET /api/v1/reconciliacoes/:id.
func (h *Handler) GetReconciliation(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rec})
}

type updateItemRequest struct {
	Resolvido     *bool   `json:"resolvido"`
	NotaResolucao *string `json:"notaResolucao"`
}

// UpdateItem handles PUT /api/v1/reconciliacoes/:id/itens/:itemId with a
// partial resolution payload. The response carries the refreshed parent,
// not just the item, so the client sees counters and estado move.
func (h *Handler) UpdateItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, errors.ValidationError(errors.CodeInvalidPayload, "body", err.Error()))
		return
	}

	rec, err := h.svc.ResolveItem(c.Request.Context(), c.Param("id"), c.Param("itemId"),
		reconciler.ItemPatch{Resolvido: req.Resolvido, NotaResolucao: req.NotaResolucao})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": rec})
}

// StartReview handles POST /api/v1/reconciliacoes/:id/revisao.
func (h *Handler) StartReview(c *gin.Context) {
	rec, err := h.svc.StartReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rec})
}

type notasRequest struct {
	Notas *string `json:"notas" binding:"required"`
}

// UpdateNotas handles PUT /api/v1/reconciliacoes/:id/notas. An empty string
// clears the notes, hence the pointer binding.
func (h *Handler) UpdateNotas(c *gin.Context) {
	var req notasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, errors.ValidationError(errors.CodeInvalidPayload, "notas", err.Error()))
		return
	}

	rec, err := h.svc.UpdateNotas(c.Request.Context(), c.Param("id"), *req.Notas)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rec})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps a pipeline error onto the HTTP envelope.
func (h *Handler) writeError(c *gin.Context, err error) {
	re, ok := errors.AsReconcilerError(err)
	if !ok {
		re = errors.InternalError("request", err)
	}

	status := re.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	} else {
		h.log.WithError(err).WithField("path", c.FullPath()).Debug("request rejected")
	}

	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"category":   re.Category,
			"code":       re.Code,
			"message":    re.Message,
			"suggestion": re.Suggestion,
		},
	})
}
