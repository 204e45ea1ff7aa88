// 모니터링 플랫폼(SentinelOne 호환) REST API 클라이언트
//
// 환경변수:
//   - MONITOR_BASE_URL: API base URL (예: https://tenant.example.net/web/api/v2.1)
//   - MONITOR_API_TOKEN: API Token

package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alert-relay/backend/internal/model"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const monitorRequestTimeout = 15 * time.Second

// ErrMonitorNotConfigured - base URL 또는 token 누락
var ErrMonitorNotConfigured = errors.New("monitor API is not configured")

// MonitorClient 구조체 정의
type MonitorClient struct {
	baseURL string
	token   string
	http    *resty.Client
	log     *zap.Logger
}

// MonitorClient 객체 생성
func NewMonitorClient(baseURL, token string, log *zap.Logger) *MonitorClient {
	if log == nil {
		log = zap.NewNop()
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	token = strings.TrimSpace(token)

	return &MonitorClient{
		baseURL: baseURL,
		token:   token,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(monitorRequestTimeout).
			SetHeader("Accept", "application/json").
			SetHeader("Authorization", "ApiToken "+token).
			SetJSONUnmarshaler(model.DecodeJSON),
		log: log.Named("monitor"),
	}
}

// base URL과 token이 모두 설정되어 있는지 체크
func (c *MonitorClient) IsConfigured() bool {
	return c.baseURL != "" && c.token != ""
}

// FetchAlerts - GET /alerts?limit=N
// 최신 N건만 가져오며 cursor는 따라가지 않는다
// 숫자는 json.Number로 받아서 archive에 원본 그대로 남긴다
func (c *MonitorClient) FetchAlerts(ctx context.Context, limit int) ([]map[string]any, error) {
	if !c.IsConfigured() {
		return nil, ErrMonitorNotConfigured
	}

	var result model.MonitorAlertsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&result).
		ForceContentType("application/json").
		Get("/alerts")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch alerts: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("monitor API error: HTTP %d: %s", resp.StatusCode(), truncate(resp.String(), 300))
	}

	c.log.Debug("fetched alerts",
		zap.Int("count", len(result.Data)),
		zap.Int("total_items", result.Pagination.TotalItems),
	)
	return result.Data, nil
}
