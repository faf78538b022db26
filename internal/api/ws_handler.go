package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"eCard/internal/api/middleware"
	"eCard/internal/auth"
	"eCard/internal/worker"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// NotifySubscription 是一次导出通知订阅，*redis.PubSub 直接满足。
type NotifySubscription interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// NotifySubscriber 按用户订阅导出通知频道。
type NotifySubscriber interface {
	SubscribeUser(ctx context.Context, userID uint) (NotifySubscription, error)
}

type redisNotifySubscriber struct {
	client redis.UniversalClient
}

// NewRedisNotifySubscriber 基于 Redis Pub/Sub 订阅 worker.NotifyChannel。
func NewRedisNotifySubscriber(client redis.UniversalClient) NotifySubscriber {
	return redisNotifySubscriber{client: client}
}

func (s redisNotifySubscriber) SubscribeUser(ctx context.Context, userID uint) (NotifySubscription, error) {
	pubsub := s.client.Subscribe(ctx, worker.NotifyChannel(userID))
	// 等待订阅确认，之后发布的通知不会丢。
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	return pubsub, nil
}

// WsHandler 负责 WebSocket 鉴权，并把名片导出结果推送给浏览器。
type WsHandler struct {
	notifications  NotifySubscriber
	authService    middleware.TokenValidator
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(notifications NotifySubscriber, authService middleware.TokenValidator, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		notifications:  notifications,
		authService:    authService,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin 未配置白名单时只接受同源请求。
func (h *WsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
	return slices.Contains(h.allowedOrigins, origin)
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// wsReadyMessage 在订阅建立后发送一次，客户端收到后即可发起导出。
type wsReadyMessage struct {
	Type   string `json:"type"`
	UserID uint   `json:"user_id"`
}

// wsAuthError 携带关闭帧的状态码与原因。
type wsAuthError struct {
	code   int
	reason string
	err    error
}

func (e *wsAuthError) Error() string { return e.reason + ": " + e.err.Error() }

func policyViolation(reason string, err error) *wsAuthError {
	return &wsAuthError{code: websocket.ClosePolicyViolation, reason: reason, err: err}
}

// HandleConnection 升级连接，等待首帧鉴权，然后转发该用户的导出通知。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.authenticate(conn)
	if err != nil {
		var authErr *wsAuthError
		if errors.As(err, &authErr) {
			writeClose(conn, authErr.code, authErr.reason)
		} else {
			writeClose(conn, websocket.CloseAbnormalClosure, "read error")
		}
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.Uint64("user_id", uint64(userID)))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.notifications.SubscribeUser(ctx, userID)
	if err != nil {
		log.Error("subscribe export notifications failed", slog.Any("error", err))
		writeClose(conn, websocket.CloseInternalServerErr, "subscribe failed")
		return
	}
	defer sub.Close()

	if err := h.writeJSON(conn, wsReadyMessage{Type: "ready", UserID: userID}); err != nil {
		log.Info("websocket connection closed", slog.Any("error", err))
		return
	}
	log.Info("websocket subscribed to export notifications")

	// 客户端鉴权后不再发送业务消息，读取只为感知断开。
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.relay(ctx, conn, sub, log); err != nil {
		log.Info("websocket connection closed", slog.Any("error", err))
		return
	}
	log.Info("websocket connection closed")
}

func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, message, err := conn.ReadMessage()
	if err != nil {
		return 0, err
	}

	var authMsg wsAuthMessage
	if err := json.Unmarshal(message, &authMsg); err != nil {
		return 0, policyViolation("invalid auth payload", err)
	}
	if authMsg.Type != "auth" || authMsg.Token == "" {
		return 0, policyViolation("auth required", errors.New("missing auth frame"))
	}

	claims, err := h.authService.ValidateToken(authMsg.Token)
	if err != nil {
		return 0, policyViolation("unauthorized", err)
	}
	if claims.TokenType != auth.TokenTypeAccess {
		return 0, policyViolation("access token required", errors.New("token type "+claims.TokenType))
	}
	if claims.MustChangePassword {
		return 0, policyViolation("password change required", errors.New("password change pending"))
	}
	return claims.UserID, nil
}

// relay 只转发可解析的名片导出通知，其余消息记录后丢弃。
func (h *WsHandler) relay(ctx context.Context, conn *websocket.Conn, sub NotifySubscription, log *slog.Logger) error {
	messages := sub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("notify channel closed")
			}

			var notify worker.ExportNotifyMessage
			if err := json.Unmarshal([]byte(msg.Payload), &notify); err != nil || notify.Type != worker.NotifyTypeCardExport {
				log.Warn("drop unexpected notification", slog.String("channel", msg.Channel))
				continue
			}

			log.Info("forward card export notification",
				slog.Uint64("export_id", uint64(notify.ExportID)),
				slog.String("face", notify.Face),
				slog.String("status", notify.Status),
			)
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteTimeout)); err != nil {
				return err
			}
		}
	}
}

func (h *WsHandler) writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
}
