package storage

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// 对象键前缀：用户上传的头像素材与导出的名片图片分开存放。
const (
	assetPrefixFmt  = "user-assets/%d/"
	exportPrefixFmt = "card-exports/%d/"
	maxObjectKeyLen = 200
)

// AssetPrefix 返回某个用户素材的对象键前缀。
func AssetPrefix(userID uint) string {
	return fmt.Sprintf(assetPrefixFmt, userID)
}

// NewAssetKey 生成 user-assets/<id>/<uuid><ext>。
func NewAssetKey(userID uint, ext string) string {
	return AssetPrefix(userID) + uuid.NewString() + strings.ToLower(ext)
}

// NewExportKey 生成 card-exports/<id>/<uuid>-<face>.png。
func NewExportKey(userID uint, face string) string {
	return fmt.Sprintf(exportPrefixFmt+"%s-%s.png", userID, uuid.NewString(), face)
}

// IsUserAssetKey 校验对象键属于该用户且是受支持的图片类型。
func IsUserAssetKey(userID uint, key string) bool {
	if key == "" || !utf8.ValidString(key) || len(key) > maxObjectKeyLen {
		return false
	}
	if !strings.HasPrefix(key, AssetPrefix(userID)) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	lower := strings.ToLower(key)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// LooksLikeAssetKey 判断资料中的 photo 字段是对象键而不是外部 URL。
func LooksLikeAssetKey(value string) bool {
	return strings.HasPrefix(value, "user-assets/")
}
