package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eCard/internal/card"
	"eCard/internal/errcode"
	"eCard/internal/profile"
	"eCard/internal/storage"
)

// maxInlinePhotoBytes 限制内联进导出页面的头像大小。
const maxInlinePhotoBytes = 5 << 20

const photoURLTTL = 15 * time.Minute

// BuildRenderData 将头像对象键内联为 data URI，供无头浏览器离线渲染。
// 约定：
// - 对象不存在或对象键不属于该用户 => 清空 photo 回退到占位图，并记录 warning(4001)
// - Bucket 不存在或其他读取错误 => 视为系统错误，直接返回 error
func BuildRenderData(ctx context.Context, objects storage.ObjectStore, p profile.Profile) (card.RenderData, error) {
	data := card.RenderData{Profile: p}

	key := strings.TrimSpace(p.PhotoURL)
	if !storage.LooksLikeAssetKey(key) {
		return data, nil
	}

	missing := func(reason string) (card.RenderData, error) {
		data.Profile.PhotoURL = ""
		data.Warnings = append(data.Warnings, card.RenderWarning{
			Code:    errcode.ResourceMissing,
			Message: fmt.Sprintf("photo %q skipped: %s", key, reason),
		})
		return data, nil
	}

	if !storage.IsUserAssetKey(p.ID, key) {
		return missing("invalid object key")
	}
	if objects == nil {
		return missing("object storage unavailable")
	}

	raw, contentType, err := objects.ReadObject(ctx, key, maxInlinePhotoBytes)
	if err != nil {
		if storage.IsNoSuchBucket(err) {
			return card.RenderData{}, fmt.Errorf("minio bucket does not exist: %w", err)
		}
		if storage.IsNoSuchKey(err) {
			return missing("object not found")
		}
		return card.RenderData{}, fmt.Errorf("read photo: %w", err)
	}

	if strings.TrimSpace(contentType) == "" {
		contentType = "image/png"
	}
	data.Profile.PhotoURL = fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(raw))
	return data, nil
}

// publicPhotoURL 把对象键换成限时链接；失败时返回空串，由投影回退到占位图。
func publicPhotoURL(ctx context.Context, objects storage.ObjectStore, p profile.Profile, log *slog.Logger) string {
	key := strings.TrimSpace(p.PhotoURL)
	if !storage.LooksLikeAssetKey(key) {
		return p.PhotoURL
	}
	if objects == nil || !storage.IsUserAssetKey(p.ID, key) {
		return ""
	}
	signed, err := objects.GeneratePresignedURL(ctx, key, photoURLTTL)
	if err != nil {
		log.Warn("generate photo url failed", slog.String("object_key", key), slog.Any("error", err))
		return ""
	}
	return signed
}
