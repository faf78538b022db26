package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"eCard/internal/profile"
)

// ProfileHandler 提供资料读取与整体保存接口。
type ProfileHandler struct {
	profiles *profile.Service
}

// NewProfileHandler 构造 ProfileHandler。
func NewProfileHandler(profiles *profile.Service) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// GetProfile 按 ?id= 或 ?name= 读取资料，id 优先。
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		p   profile.Profile
		err error
	)
	switch {
	case c.Query("id") != "":
		id, parseErr := strconv.ParseUint(c.Query("id"), 10, 64)
		if parseErr != nil || id == 0 {
			BadRequest(c, "invalid id")
			return
		}
		p, err = h.profiles.GetByID(ctx, uint(id))
	case c.Query("name") != "":
		p, err = h.profiles.GetByName(ctx, c.Query("name"))
	default:
		BadRequest(c, "ID or Name required")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// saveProfileRequest 沿用前端表单字段名；userId 既可以是数字也可以是数字字符串。
type saveProfileRequest struct {
	UserID     json.Number       `json:"userId"`
	Name       string            `json:"name"`
	Profession string            `json:"profession"`
	Resume     string            `json:"resume"`
	Portfolio  string            `json:"portfolio"`
	Photo      string            `json:"photo"`
	Skills     []string          `json:"skills"`
	Socials    map[string]string `json:"socials"`
	Projects   []profile.Project `json:"projects"`
}

func (r saveProfileRequest) input() profile.SaveInput {
	return profile.SaveInput{
		Name:         r.Name,
		Profession:   r.Profession,
		ResumeURL:    r.Resume,
		PortfolioURL: r.Portfolio,
		PhotoURL:     r.Photo,
		Skills:       r.Skills,
		Socials:      profile.SocialsFromMap(r.Socials),
		Projects:     r.Projects,
	}
}

// SaveProfile 覆盖当前登录用户的全部资料字段。
func (h *ProfileHandler) SaveProfile(c *gin.Context) {
	var req saveProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	raw := strings.TrimSpace(req.UserID.String())
	if raw == "" {
		BadRequest(c, "User ID is required")
		return
	}
	targetID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || targetID == 0 {
		BadRequest(c, "User ID is required")
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if uint(targetID) != userID {
		Forbidden(c, "cannot modify another user's profile")
		return
	}

	updated, err := h.profiles.Save(c.Request.Context(), userID, req.input())
	if err != nil {
		respondError(c, err)
		return
	}

	loggerFromContext(c).Info("profile saved", slog.Uint64("user_id", uint64(userID)))
	c.JSON(http.StatusOK, gin.H{"message": "Saved", "user": updated})
}
