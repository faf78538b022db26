package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NotifyTypeCardExport 是导出通知的 type 字段，WebSocket 只转发这一类。
const NotifyTypeCardExport = "card_export"

// 导出通知的状态取值。
const (
	NotifyStatusCompleted = "completed"
	NotifyStatusError     = "error"
)

// ExportNotifyMessage 通过 Redis Pub/Sub 转发给前端 WebSocket。
// 注意：这里的字段名与前端解析保持一致。
type ExportNotifyMessage struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	ExportID      uint   `json:"export_id"`
	Face          string `json:"face"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}

// Publisher 是发布通知所需的 Redis 能力，*redis.Client 直接满足。
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// NotifyChannel 返回用户的通知频道名，接口层的 WebSocket 订阅同一频道。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

func publishNotify(ctx context.Context, pub Publisher, userID uint, notify ExportNotifyMessage) error {
	if pub == nil {
		return nil
	}
	notify.Type = NotifyTypeCardExport
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := NotifyChannel(userID)
	if err := pub.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
