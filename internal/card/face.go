package card

import (
	"fmt"
	"strings"

	"eCard/internal/errcode"
)

// Face 表示名片的一面。
type Face string

const (
	FaceFront Face = "front"
	FaceBack  Face = "back"
)

// ParseFace 解析请求中的 face 参数，大小写不敏感。
func ParseFace(raw string) (Face, error) {
	switch Face(strings.ToLower(strings.TrimSpace(raw))) {
	case FaceFront:
		return FaceFront, nil
	case FaceBack:
		return FaceBack, nil
	default:
		return "", errcode.New(errcode.ErrValidation, fmt.Sprintf("face must be front or back, got %q", raw))
	}
}

// Title 返回首字母大写的名称，用于下载文件名。
func (f Face) Title() string {
	if f == FaceBack {
		return "Back"
	}
	return "Front"
}

// DownloadFilename 生成 <name>-eCard-<Front|Back>.png。
func DownloadFilename(name string, face Face) string {
	return fmt.Sprintf("%s-eCard-%s.png", orDefault(name, PlaceholderName), face.Title())
}
