package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"eCard/internal/card"
)

// fetchInternalCardData 从后端内部接口拉取渲染数据（头像已内联）。
// 只允许 Worker 通过 Header 携带 INTERNAL_API_SECRET 访问。
func fetchInternalCardData(ctx context.Context, client *http.Client, internalAPIBaseURL string, userID uint, secret, correlationID string) (card.RenderData, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return card.RenderData{}, fmt.Errorf("internal api secret missing")
	}

	internalAPIBaseURL = strings.TrimRight(strings.TrimSpace(internalAPIBaseURL), "/")
	if internalAPIBaseURL == "" {
		return card.RenderData{}, fmt.Errorf("internal api base url missing")
	}

	targetURL := fmt.Sprintf("%s/internal/cards/%d", internalAPIBaseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return card.RenderData{}, fmt.Errorf("build internal request: %w", err)
	}
	req.Header.Set("X-Internal-Secret", secret)
	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return card.RenderData{}, fmt.Errorf("request internal card data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return card.RenderData{}, fmt.Errorf("internal card data status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data card.RenderData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return card.RenderData{}, fmt.Errorf("decode internal card data: %w", err)
	}
	return data, nil
}
