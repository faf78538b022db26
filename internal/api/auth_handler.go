package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"eCard/internal/auth"
	"eCard/internal/errcode"
)

const refreshTokenCookieName = "refresh_token"
const refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"

// LoginLimits 控制登录限流与失败锁定，阈值为 0 时不启用对应检查。
type LoginLimits struct {
	RatePerHour   int
	LockThreshold int
	LockTTL       time.Duration
}

// AuthHandler 处理注册、登录、刷新、改密与退出。
type AuthHandler struct {
	accounts     *auth.Accounts
	authService  *auth.AuthService
	redis        authRedis
	limits       LoginLimits
	cookieDomain string
}

// NewAuthHandler 构造认证处理器。redisClient 为 nil 时跳过限流与黑名单。
func NewAuthHandler(accounts *auth.Accounts, authService *auth.AuthService, redisClient authRedis, limits LoginLimits, cookieDomain string) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		authService:  authService,
		redis:        redisClient,
		limits:       limits,
		cookieDomain: cookieDomain,
	}
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Register 创建新用户账号。
func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Username and password are required")
		return
	}

	account, err := h.accounts.Register(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	loggerFromContext(c).Info("user registered", slog.Uint64("user_id", uint64(account.ID)))
	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully",
		"user":    account,
	})
}

type tokenResponse struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int    `json:"expires_in"`
	MustChangePassword bool   `json:"must_change_password"`
}

type loginResponse struct {
	Message string       `json:"message"`
	User    auth.Account `json:"user"`
	tokenResponse
}

// Login 校验口令并返回 Token。
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Username and password are required")
		return
	}

	ctx := c.Request.Context()
	logger := loggerFromContext(c)
	lowerName := strings.ToLower(strings.TrimSpace(req.Name))

	if h.redis != nil && lowerName != "" {
		// 速率限制：每 IP+用户名 每小时
		if h.limits.RatePerHour > 0 {
			rateKey := "rate:login:" + c.ClientIP() + ":" + lowerName + ":" + time.Now().UTC().Format("2006010215")
			count, err := incrWithTTL(ctx, h.redis, rateKey, time.Hour)
			if err != nil {
				count = 0
			}
			if count > int64(h.limits.RatePerHour) {
				Error(c, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}

		if ttl, _ := h.redis.TTL(ctx, "lock:login:"+lowerName).Result(); ttl > 0 {
			Error(c, http.StatusTooManyRequests, "account temporarily locked")
			return
		}
	}

	account, err := h.accounts.Login(ctx, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, errcode.ErrAuth) {
			logger.Info("login failed")
			_ = h.incrementLoginFail(ctx, lowerName)
		}
		respondError(c, err)
		return
	}

	if h.redis != nil {
		_ = h.redis.Del(ctx, "lock:login:fail:"+lowerName).Err()
	}

	tokenPair, err := h.authService.GenerateTokenPair(account.ID, account.MustChangePassword)
	if err != nil {
		logger.Error("generate token pair failed", slog.Any("error", err))
		Internal(c, internalErrorMessage)
		return
	}

	h.setRefreshCookie(c, tokenPair.RefreshToken)
	c.JSON(http.StatusOK, loginResponse{
		Message:       "Login successful",
		User:          account,
		tokenResponse: h.newTokenResponse(tokenPair, account.MustChangePassword),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh 校验刷新令牌并颁发新的 TokenPair。
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	logger := loggerFromContext(c)

	claims, ok := h.refreshClaims(c)
	if !ok {
		Unauthorized(c)
		return
	}

	key := refreshTokenBlacklistKeyPrefix + claims.ID
	if h.redis != nil {
		if err := h.redis.Get(ctx, key).Err(); err == nil {
			logger.Info("refresh token revoked", slog.String("jti", claims.ID))
			Unauthorized(c)
			return
		} else if !errors.Is(err, redis.Nil) {
			logger.Error("refresh token blacklist lookup failed", slog.Any("error", err))
			Internal(c, internalErrorMessage)
			return
		}
	}

	account, err := h.accounts.Exists(ctx, claims.UserID)
	if err != nil {
		logger.Info("refresh user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}

	tokenPair, err := h.authService.GenerateTokenPair(account.ID, account.MustChangePassword)
	if err != nil {
		logger.Error("refresh generate token pair failed", slog.Any("error", err))
		Internal(c, internalErrorMessage)
		return
	}

	// 旋转旧刷新令牌，防止重复使用。
	if err := h.revokeRefreshToken(ctx, key, claims.ExpiresAt); err != nil {
		logger.Error("refresh revoke old token failed", slog.Any("error", err))
		Internal(c, internalErrorMessage)
		return
	}

	h.replyWithTokenPair(c, tokenPair, account.MustChangePassword)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePassword 校验当前密码并更新为新密码，同时作废当前刷新令牌。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		BadRequest(c, "password confirmation does not match")
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := loggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	if err := h.accounts.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		logger.Info("change password rejected", slog.Any("error", err))
		respondError(c, err)
		return
	}

	if refreshToken, err := c.Cookie(refreshTokenCookieName); err == nil && refreshToken != "" {
		if claims, err := h.authService.ValidateToken(refreshToken); err == nil && claims.TokenType == auth.TokenTypeRefresh && claims.ID != "" {
			key := refreshTokenBlacklistKeyPrefix + claims.ID
			if err := h.revokeRefreshToken(ctx, key, claims.ExpiresAt); err != nil {
				logger.Error("change password: revoke refresh failed", slog.Any("error", err))
				Internal(c, internalErrorMessage)
				return
			}
		}
	}

	tokenPair, err := h.authService.GenerateTokenPair(userID, false)
	if err != nil {
		logger.Error("change password: generate token pair failed", slog.Any("error", err))
		Internal(c, internalErrorMessage)
		return
	}

	h.replyWithTokenPair(c, tokenPair, false)
}

// Logout 将刷新令牌加入黑名单，防止继续使用。
func (h *AuthHandler) Logout(c *gin.Context) {
	if h.extractRefreshToken(c) == "" {
		BadRequest(c, "refresh token missing")
		return
	}

	claims, ok := h.refreshClaims(c)
	if !ok {
		Unauthorized(c)
		return
	}

	key := refreshTokenBlacklistKeyPrefix + claims.ID
	if err := h.revokeRefreshToken(c.Request.Context(), key, claims.ExpiresAt); err != nil {
		loggerFromContext(c).Error("logout revoke token failed", slog.Any("error", err))
		Internal(c, internalErrorMessage)
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   strings.TrimSpace(h.cookieDomain),
	})
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// refreshClaims 读取并校验刷新令牌，要求 token_type=refresh 且带 jti。
func (h *AuthHandler) refreshClaims(c *gin.Context) (*auth.TokenClaims, bool) {
	refreshToken := h.extractRefreshToken(c)
	if refreshToken == "" {
		return nil, false
	}

	claims, err := h.authService.ValidateToken(refreshToken)
	if err != nil {
		loggerFromContext(c).Info("refresh token invalid", slog.Any("error", err))
		return nil, false
	}
	if claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" {
		loggerFromContext(c).Info("refresh token rejected", slog.String("token_type", claims.TokenType))
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) newTokenResponse(tokenPair auth.TokenPair, mustChangePassword bool) tokenResponse {
	return tokenResponse{
		AccessToken:        tokenPair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.authService.AccessTokenTTL().Seconds()),
		MustChangePassword: mustChangePassword,
	}
}

func (h *AuthHandler) replyWithTokenPair(c *gin.Context, tokenPair auth.TokenPair, mustChangePassword bool) {
	h.setRefreshCookie(c, tokenPair.RefreshToken)
	c.JSON(http.StatusOK, h.newTokenResponse(tokenPair, mustChangePassword))
}

func (h *AuthHandler) extractRefreshToken(c *gin.Context) string {
	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		return token
	}

	if token, ok := c.Get(refreshTokenCookieName); ok {
		return token.(string)
	}

	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		// 请求体只能读取一次，缓存结果供后续调用。
		c.Set(refreshTokenCookieName, req.RefreshToken)
		return req.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, refreshToken string) {
	maxAge := int(h.authService.RefreshTokenTTL().Seconds())
	if maxAge <= 0 {
		maxAge = int(time.Hour.Seconds())
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    refreshToken,
		MaxAge:   maxAge,
		Path:     "/",
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   strings.TrimSpace(h.cookieDomain),
		Expires:  time.Now().Add(h.authService.RefreshTokenTTL()),
	})
}

func (h *AuthHandler) revokeRefreshToken(ctx context.Context, key string, expiresAt *jwt.NumericDate) error {
	if h.redis == nil {
		return nil
	}
	var ttl time.Duration
	if expiresAt == nil {
		ttl = h.authService.RefreshTokenTTL()
	} else {
		ttl = time.Until(expiresAt.Time)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return h.redis.Set(ctx, key, "revoked", ttl).Err()
}

func (h *AuthHandler) incrementLoginFail(ctx context.Context, name string) error {
	if h.redis == nil || name == "" || h.limits.LockThreshold <= 0 {
		return nil
	}
	failKey := "lock:login:fail:" + name
	count, err := incrWithTTL(ctx, h.redis, failKey, h.limits.LockTTL)
	if err != nil {
		return err
	}
	if count >= int64(h.limits.LockThreshold) {
		_ = h.redis.Set(ctx, "lock:login:"+name, "1", h.limits.LockTTL).Err()
	}
	return nil
}

func isHTTPSRequest(c *gin.Context) bool {
	if c.Request == nil {
		return false
	}
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.Request.Header.Get("X-Forwarded-Proto"), "https")
}
