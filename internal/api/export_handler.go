package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"eCard/internal/api/middleware"
	"eCard/internal/card"
	"eCard/internal/database"
	"eCard/internal/export"
	"eCard/internal/metrics"
	"eCard/internal/profile"
	"eCard/internal/storage"
	"eCard/internal/tasks"
)

// TaskEnqueuer 是 *asynq.Client 的入队能力。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ExportHandler 负责名片导出请求的入队、状态查询与下载链接。
type ExportHandler struct {
	db       *gorm.DB
	queue    TaskEnqueuer
	storage  storage.ObjectStore
	profiles *profile.Service
	maxRetry int
}

// NewExportHandler 构造 ExportHandler。
func NewExportHandler(db *gorm.DB, queue TaskEnqueuer, objects storage.ObjectStore, profiles *profile.Service, maxRetry int) *ExportHandler {
	return &ExportHandler{
		db:       db,
		queue:    queue,
		storage:  objects,
		profiles: profiles,
		maxRetry: maxRetry,
	}
}

var errInvalidExportID = errors.New("invalid export id")

type createExportRequest struct {
	Face       string `json:"face"`
	PixelRatio int    `json:"pixelRatio"`
}

type exportResponse struct {
	ID           uint      `json:"id"`
	Face         string    `json:"face"`
	PixelRatio   int       `json:"pixel_ratio"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newExportResponse(row database.CardExport) exportResponse {
	return exportResponse{
		ID:           row.ID,
		Face:         row.Face,
		PixelRatio:   row.PixelRatio,
		Status:       row.Status,
		ErrorMessage: row.ErrorMessage,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

// CreateExport 记录导出请求并将截图任务入队，立即返回 202。
func (h *ExportHandler) CreateExport(c *gin.Context) {
	var req createExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	face, err := card.ParseFace(req.Face)
	if err != nil {
		respondError(c, err)
		return
	}

	pixelRatio := req.PixelRatio
	if pixelRatio == 0 {
		pixelRatio = export.DownloadPixelRatio
	}
	if pixelRatio < 1 || pixelRatio > export.MaxPixelRatio {
		BadRequest(c, fmt.Sprintf("pixelRatio must be between 1 and %d", export.MaxPixelRatio))
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := loggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)), slog.String("face", string(face)))

	row := database.CardExport{
		UserID:     userID,
		Face:       string(face),
		PixelRatio: pixelRatio,
		Status:     database.ExportStatusPending,
	}
	if err := h.db.WithContext(ctx).Create(&row).Error; err != nil {
		logger.Error("create card export failed", slog.Any("error", err))
		Internal(c, "failed to create export")
		return
	}

	task, err := tasks.NewCardExportTask(row.ID, middleware.GetCorrelationID(c), h.maxRetry)
	if err != nil {
		logger.Error("create export task failed", slog.Any("error", err))
		Internal(c, "failed to create task")
		return
	}

	info, err := h.queue.EnqueueContext(ctx, task)
	if err != nil {
		logger.Error("enqueue card export failed", slog.Any("error", err))
		_ = h.db.WithContext(ctx).Model(&row).Updates(map[string]any{
			"status":        database.ExportStatusFailed,
			"error_message": "enqueue failed",
		}).Error
		Internal(c, "failed to enqueue card export")
		return
	}

	if err := h.db.WithContext(ctx).Model(&row).Update("task_id", info.ID).Error; err != nil {
		logger.Warn("save export task id failed", slog.Any("error", err))
	}
	metrics.ObserveExport(row.Face, "queued")

	c.JSON(http.StatusAccepted, gin.H{
		"message":   "Card export request accepted",
		"export_id": row.ID,
		"task_id":   info.ID,
	})
}

// GetExport 返回导出记录的当前状态。
func (h *ExportHandler) GetExport(c *gin.Context) {
	row, ok := h.loadExport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newExportResponse(*row))
}

// GetDownloadLink 生成导出图片的预签名下载链接，文件名为 <name>-eCard-<Face>.png。
func (h *ExportHandler) GetDownloadLink(c *gin.Context) {
	row, ok := h.loadExport(c)
	if !ok {
		return
	}

	if row.Status != database.ExportStatusCompleted || row.ObjectKey == "" {
		Conflict(c, "export not ready")
		return
	}

	ctx := c.Request.Context()
	owner, err := h.profiles.GetByID(ctx, row.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := card.DownloadFilename(owner.Name, card.Face(row.Face))
	signedURL, err := h.storage.GeneratePresignedURLWithParams(ctx, row.ObjectKey, 5*time.Minute, map[string]string{
		"response-content-disposition": fmt.Sprintf("attachment; filename=%q", filename),
		"response-content-type":        "image/png",
	})
	if err != nil {
		loggerFromContext(c).Error("generate download link failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL, "filename": filename})
}

func (h *ExportHandler) loadExport(c *gin.Context) (*database.CardExport, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}

	row, err := h.getExportForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		switch {
		case errors.Is(err, errInvalidExportID):
			BadRequest(c, "invalid export id")
		case errors.Is(err, gorm.ErrRecordNotFound):
			NotFound(c, "export not found")
		default:
			loggerFromContext(c).Error("query card export failed", slog.Any("error", err))
			Internal(c, "failed to query export")
		}
		return nil, false
	}
	return row, true
}

func (h *ExportHandler) getExportForUser(ctx context.Context, idParam string, userID uint) (*database.CardExport, error) {
	exportID, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil || exportID == 0 {
		return nil, errInvalidExportID
	}

	var row database.CardExport
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", uint(exportID), userID).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
