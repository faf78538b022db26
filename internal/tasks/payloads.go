package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeCardExport = "card:export"
)

// DefaultExportMaxRetry 与 worker.export_max_retry 的默认值一致。
const DefaultExportMaxRetry = 3

// CardExportPayload 只携带导出记录 id，其余参数由 Worker 从数据库读取。
type CardExportPayload struct {
	ExportID      uint   `json:"export_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewCardExportTask 构造一个名片导出任务。
func NewCardExportTask(exportID uint, correlationID string, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(CardExportPayload{
		ExportID:      exportID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	if maxRetry <= 0 {
		maxRetry = DefaultExportMaxRetry
	}
	return asynq.NewTask(TypeCardExport, payload, asynq.MaxRetry(maxRetry), asynq.Timeout(2*time.Minute)), nil
}

// ParseCardExportPayload 解析任务负载。
func ParseCardExportPayload(t *asynq.Task) (CardExportPayload, error) {
	var payload CardExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return CardExportPayload{}, err
	}
	return payload, nil
}
