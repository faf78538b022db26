package api

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"eCard/internal/storage"
)

// 头像上传的默认限制。
const (
	DefaultAssetMaxBytes      = 5 << 20
	DefaultAssetUploadsPerDay = 50
	assetURLTTL               = 15 * time.Minute
	defaultAssetListLimit     = 60
	maxAssetListLimit         = 200
)

// DefaultAssetMIMEWhitelist 与 storage.IsUserAssetKey 接受的扩展名一致。
var DefaultAssetMIMEWhitelist = []string{"image/png", "image/jpeg", "image/webp"}

var assetExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// AssetHandler 负责处理头像素材的上传与访问。
type AssetHandler struct {
	Storage       storage.ObjectStore
	ClamdAddr     string
	MaxBytes      int64
	MIMEWhitelist []string
	// RedisClient 为空时不做每日上传次数限制。
	RedisClient      redisRateCounter
	maxUploadsPerDay int
}

// NewAssetHandler 返回 AssetHandler 实例。
func NewAssetHandler(objects storage.ObjectStore, redisClient redisRateCounter, clamdAddr string) *AssetHandler {
	return &AssetHandler{
		Storage:          objects,
		ClamdAddr:        clamdAddr,
		MaxBytes:         DefaultAssetMaxBytes,
		MIMEWhitelist:    DefaultAssetMIMEWhitelist,
		RedisClient:      redisClient,
		maxUploadsPerDay: DefaultAssetUploadsPerDay,
	}
}

// UploadAsset 处理受保护的图片上传，可选地在上传前扫描病毒。
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := loggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if h.MaxBytes > 0 && file.Size > h.MaxBytes {
		Error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.MaxBytes))
		return
	}

	if h.RedisClient != nil && h.maxUploadsPerDay > 0 {
		key := "rate:upload:" + strconv.FormatUint(uint64(userID), 10) + ":" + time.Now().UTC().Format("20060102")
		count, err := incrWithTTL(ctx, h.RedisClient, key, 24*time.Hour)
		if err == nil && count > int64(h.maxUploadsPerDay) {
			Error(c, http.StatusTooManyRequests, "daily upload limit reached")
			return
		}
	}

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	content, err := io.ReadAll(fileReader)
	fileReader.Close()
	if err != nil {
		Internal(c, "failed to read file")
		return
	}

	// 以文件内容而不是客户端声明的 Content-Type 判断类型。
	mtype := mimetype.Detect(content)
	contentType := mtype.String()
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	if !slices.Contains(h.MIMEWhitelist, contentType) {
		BadRequest(c, "unsupported file type")
		return
	}

	if h.ClamdAddr != "" {
		clean, err := h.scan(content)
		if err != nil {
			logger.Error("scan file", slog.String("error", err.Error()))
			Internal(c, "failed to scan file")
			return
		}
		if !clean {
			BadRequest(c, "malicious file detected")
			return
		}
	}

	objectKey := storage.NewAssetKey(userID, assetExtensions[contentType])
	if _, err := h.Storage.UploadFile(ctx, objectKey, bytes.NewReader(content), int64(len(content)), contentType); err != nil {
		logger.Error("upload file", slog.String("error", err.Error()))
		Internal(c, "failed to upload file")
		return
	}

	logger.Info("asset uploaded", slog.String("object_key", objectKey))
	c.JSON(http.StatusCreated, gin.H{"objectKey": objectKey})
}

func (h *AssetHandler) scan(content []byte) (bool, error) {
	clamdClient := clamd.NewClamd(h.ClamdAddr)

	abortChan := make(chan bool)
	defer close(abortChan)
	scanChan, err := clamdClient.ScanStream(bytes.NewReader(content), abortChan)
	if err != nil {
		return false, err
	}

	clean := true
	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			clean = false
		}
	}
	return clean, nil
}

// ListAssets 列出用户上传的头像素材，按时间倒序。
func (h *AssetHandler) ListAssets(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultAssetListLimit)))
	if err != nil || limit <= 0 {
		limit = defaultAssetListLimit
	}
	if limit > maxAssetListLimit {
		limit = maxAssetListLimit
	}

	ctx := c.Request.Context()
	logger := loggerFromContext(c)

	objects, err := h.Storage.ListObjects(ctx, storage.AssetPrefix(userID), limit)
	if err != nil {
		logger.Error("list assets", slog.String("error", err.Error()))
		Internal(c, "failed to list assets")
		return
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	items := make([]gin.H, 0, len(objects))
	for _, obj := range objects {
		url, err := h.Storage.GeneratePresignedURL(ctx, obj.Key, assetURLTTL)
		if err != nil {
			logger.Error("generate asset url", slog.String("objectKey", obj.Key), slog.String("error", err.Error()))
			continue
		}
		items = append(items, gin.H{
			"objectKey":    obj.Key,
			"previewUrl":   url,
			"size":         obj.Size,
			"lastModified": obj.LastModified,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetAssetURL 返回资产的临时预签名 URL，只允许访问自己的素材。
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !storage.IsUserAssetKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.Storage.GeneratePresignedURL(c.Request.Context(), objectKey, assetURLTTL)
	if err != nil {
		loggerFromContext(c).Error("generate presigned url", slog.String("error", err.Error()))
		Internal(c, "failed to generate url")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// DeleteAsset 删除自己的素材；对象不存在时同样返回成功。
func (h *AssetHandler) DeleteAsset(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !storage.IsUserAssetKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	if err := h.Storage.DeleteObject(c.Request.Context(), objectKey); err != nil {
		loggerFromContext(c).Error("delete asset", slog.String("error", err.Error()))
		Internal(c, "failed to delete asset")
		return
	}

	c.Status(http.StatusNoContent)
}
