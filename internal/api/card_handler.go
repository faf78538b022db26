package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"eCard/internal/card"
	"eCard/internal/metrics"
	"eCard/internal/profile"
	"eCard/internal/storage"
)

// CardHandler 提供公开名片接口：视图模型 JSON、二维码、分享页与内部渲染数据。
type CardHandler struct {
	profiles      *profile.Service
	renderer      *card.Renderer
	storage       storage.ObjectStore
	publicBaseURL string
}

// NewCardHandler 构造 CardHandler。storage 为空时头像对象键回退到占位图。
func NewCardHandler(profiles *profile.Service, renderer *card.Renderer, objects storage.ObjectStore, publicBaseURL string) *CardHandler {
	return &CardHandler{
		profiles:      profiles,
		renderer:      renderer,
		storage:       objects,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

type cardResponse struct {
	Front card.FrontFace `json:"front"`
	Back  card.BackFace  `json:"back"`
}

func (h *CardHandler) publicFaces(c *gin.Context, p profile.Profile) (card.FrontFace, card.BackFace) {
	p.PhotoURL = publicPhotoURL(c.Request.Context(), h.storage, p, loggerFromContext(c))
	return card.Project(p)
}

// GetCard 返回 name 对应名片两面的视图模型。
func (h *CardHandler) GetCard(c *gin.Context) {
	p, err := h.profiles.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}

	front, back := h.publicFaces(c, p)
	metrics.ObserveView("json")
	c.JSON(http.StatusOK, cardResponse{Front: front, Back: back})
}

// GetQRCode 返回名片背面二维码的 PNG，?size= 可调整边长。
func (h *CardHandler) GetQRCode(c *gin.Context) {
	p, err := h.profiles.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}

	size := card.DefaultQRSize
	if raw := c.Query("size"); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed < 64 || parsed > 1024 {
			BadRequest(c, "size must be between 64 and 1024")
			return
		}
		size = parsed
	}

	_, back := card.Project(p)
	png, err := card.QRCode(back.QRTarget, size)
	if err != nil {
		respondError(c, err)
		return
	}

	metrics.ObserveView("qr")
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

// ShareByName 渲染公开分享页；改名后旧链接会失效。
func (h *CardHandler) ShareByName(c *gin.Context) {
	p, err := h.profiles.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.renderShare(c, p)
}

// ShareByID 通过稳定的 share id 渲染分享页。
func (h *CardHandler) ShareByID(c *gin.Context) {
	p, err := h.profiles.GetByShareID(c.Request.Context(), c.Param("shareId"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.renderShare(c, p)
}

func (h *CardHandler) renderShare(c *gin.Context, p profile.Profile) {
	if strings.TrimSpace(p.Name) == "" {
		NotFound(c, "User not found")
		return
	}

	front, back := h.publicFaces(c, p)
	page := card.SharePage{
		ShareURL:   h.publicBaseURL + "/s/" + url.PathEscape(p.ShareID),
		QRImageURL: "/cards/" + url.PathEscape(p.Name) + "/qr.png",
	}

	var buf bytes.Buffer
	if err := h.renderer.RenderSharePage(&buf, front, back, page); err != nil {
		respondError(c, err)
		return
	}

	metrics.ObserveView("share")
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// Placeholder 返回没有头像时使用的默认图片。
func (h *CardHandler) Placeholder(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/png", card.PlaceholderPNG())
}

// GetInternalCardData 返回导出 Worker 渲染所需的数据，头像已内联。
// 仅挂在 InternalSecretMiddleware 之后。
func (h *CardHandler) GetInternalCardData(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid user id")
		return
	}

	ctx := c.Request.Context()
	p, err := h.profiles.GetByID(ctx, uint(id))
	if err != nil {
		respondError(c, err)
		return
	}

	data, err := BuildRenderData(ctx, h.storage, p)
	if err != nil {
		respondError(c, err)
		return
	}
	for _, w := range data.Warnings {
		loggerFromContext(c).Warn("render data warning", slog.Int("code", w.Code), slog.String("message", w.Message))
	}

	c.JSON(http.StatusOK, data)
}
