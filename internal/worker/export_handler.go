package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"eCard/internal/card"
	"eCard/internal/database"
	"eCard/internal/errcode"
	"eCard/internal/export"
	"eCard/internal/metrics"
	"eCard/internal/storage"
	"eCard/internal/tasks"
)

// ObjectWriter 是导出任务需要的对象存储能力。
type ObjectWriter interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// ExportTaskHandler 负责消费名片导出任务。
type ExportTaskHandler struct {
	db                 *gorm.DB
	storage            ObjectWriter
	publisher          Publisher
	capturer           export.Capturer
	renderer           *card.Renderer
	logger             *slog.Logger
	httpClient         *http.Client
	internalSecret     string
	internalAPIBaseURL string

	// isFinalAttempt 默认读取 asynq 上下文中的重试次数。
	isFinalAttempt func(ctx context.Context) bool
}

// ExportTaskDeps 汇总 ExportTaskHandler 的依赖。
type ExportTaskDeps struct {
	DB                 *gorm.DB
	Storage            ObjectWriter
	Publisher          Publisher
	Capturer           export.Capturer
	Renderer           *card.Renderer
	Logger             *slog.Logger
	HTTPClient         *http.Client
	InternalSecret     string
	InternalAPIBaseURL string
}

// NewExportTaskHandler 创建任务处理器。
func NewExportTaskHandler(deps ExportTaskDeps) *ExportTaskHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportTaskHandler{
		db:                 deps.DB,
		storage:            deps.Storage,
		publisher:          deps.Publisher,
		capturer:           deps.Capturer,
		renderer:           deps.Renderer,
		logger:             logger,
		httpClient:         deps.HTTPClient,
		internalSecret:     deps.InternalSecret,
		internalAPIBaseURL: strings.TrimRight(strings.TrimSpace(deps.InternalAPIBaseURL), "/"),
		isFinalAttempt:     isFinalAsynqAttempt,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *ExportTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	payload, err := tasks.ParseCardExportPayload(t)
	if err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("export_id", uint64(payload.ExportID)),
	)
	log.Info("Starting card export task...")

	var row database.CardExport
	if err := h.db.WithContext(ctx).First(&row, payload.ExportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("card export not found, skipping task")
			return nil
		}
		log.Error("query card export failed", slog.Any("error", err))
		return err
	}
	if row.Status == database.ExportStatusCompleted {
		log.Info("card export already completed, skipping task")
		return nil
	}

	log = log.With(slog.Uint64("user_id", uint64(row.UserID)), slog.String("face", row.Face))

	defer func() {
		if retErr == nil {
			return
		}
		if !h.isFinalAttempt(ctx) && !errors.Is(retErr, asynq.SkipRetry) {
			return
		}

		code := errcode.SystemError
		if errors.Is(retErr, errcode.ErrCapture) {
			code = errcode.CaptureFailed
		}
		message := strings.TrimSpace(retErr.Error())
		if err := h.db.WithContext(ctx).Model(&row).Updates(map[string]any{
			"status":        database.ExportStatusFailed,
			"error_message": message,
		}).Error; err != nil {
			log.Error("mark card export failed", slog.Any("error", err))
		}
		metrics.ObserveExport(row.Face, database.ExportStatusFailed)

		notify := ExportNotifyMessage{
			Status:        NotifyStatusError,
			ExportID:      row.ID,
			Face:          row.Face,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     code,
			ErrorMessage:  message,
		}
		if err := publishNotify(ctx, h.publisher, row.UserID, notify); err != nil {
			log.Error("publish export error notification failed", slog.Any("error", err))
		}
	}()

	face, err := card.ParseFace(row.Face)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	data, err := fetchInternalCardData(ctx, h.httpClient, h.internalAPIBaseURL, row.UserID, h.internalSecret, payload.CorrelationID)
	if err != nil {
		log.Error("fetch internal card data failed", slog.Any("error", err))
		return err
	}

	png, err := h.capture(ctx, face, row.PixelRatio, data)
	if err != nil {
		log.Error("capture card face failed", slog.Any("error", err))
		return err
	}

	objectName := storage.NewExportKey(row.UserID, string(face))
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(png), int64(len(png)), "image/png"); err != nil {
		log.Error("upload card image to minio failed", slog.Any("error", err))
		return err
	}

	if err := h.db.WithContext(ctx).Model(&row).Updates(map[string]any{
		"status":        database.ExportStatusCompleted,
		"object_key":    objectName,
		"error_message": "",
	}).Error; err != nil {
		log.Error("update card export failed", slog.Any("error", err))
		// 记录未落库时删除已上传的文件，避免留下孤立对象。
		if delErr := h.storage.DeleteObject(ctx, objectName); delErr != nil {
			log.Warn("delete orphan export object failed", slog.Any("error", delErr))
		}
		return err
	}
	metrics.ObserveExport(row.Face, database.ExportStatusCompleted)

	notify := ExportNotifyMessage{
		Status:        NotifyStatusCompleted,
		ExportID:      row.ID,
		Face:          row.Face,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if len(data.Warnings) > 0 {
		notify.ErrorCode = data.Warnings[0].Code
		notify.ErrorMessage = data.Warnings[0].Message
		log.Warn("card exported with warnings", slog.Any("warnings", data.Warnings))
	}
	if err := publishNotify(ctx, h.publisher, row.UserID, notify); err != nil {
		// 导出已经成功，通知失败不再重试任务。
		log.Error("publish redis notification failed", slog.Any("error", err))
	}

	log.Info("Card export task completed successfully.", slog.String("object_key", objectName))
	return nil
}

func (h *ExportTaskHandler) capture(ctx context.Context, face card.Face, pixelRatio int, data card.RenderData) ([]byte, error) {
	front, back := card.Project(data.Profile)

	var html bytes.Buffer
	if err := h.renderer.RenderFace(&html, face, front, back); err != nil {
		return nil, fmt.Errorf("render card html: %w", err)
	}

	start := time.Now()
	png, err := h.capturer.Capture(ctx, html.String(), export.CaptureOptions{
		Selector:   card.SelectorFor(face),
		PixelRatio: float64(pixelRatio),
		Background: &export.Black,
	})
	metrics.ObserveCapture(string(face), time.Since(start))
	if err != nil {
		return nil, err
	}
	return png, nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
