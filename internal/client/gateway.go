// 로컬 WhatsApp 메시지 게이트웨이 클라이언트
//
// 채널 설정:
//   - Endpoint: 게이트웨이 base URL (예: http://localhost:5013)
//   - Session: 게이트웨이 세션 이름 (기본 "gateway")
//   - Recipients: 번호 또는 그룹 ID 목록
//
// 게이트웨이는 HTTP 200이어도 body의 success 필드로 결과를 알려준다.
// 응답 Content-Type이 JSON이 아닌 경우가 있어서 body는 항상 JSON으로 파싱한다.

package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alert-relay/backend/internal/model"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultGatewaySession = "gateway"
	gatewayRequestTimeout = 20 * time.Second
	gatewayUserAgent      = "alert-relay/1.0"
)

// GatewayClient 구조체 정의
type GatewayClient struct {
	log     *zap.Logger
	timeout time.Duration
}

// gatewaySendRequest - POST /api/send body
type gatewaySendRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
	Session string `json:"session"`
}

// gatewayResponse - 게이트웨이 공통 응답
type gatewayResponse struct {
	Success  bool             `json:"success"`
	Error    string           `json:"error,omitempty"`
	Message  string           `json:"message,omitempty"`
	Sessions []map[string]any `json:"sessions,omitempty"`
}

// GatewayClient 객체 생성
func NewGatewayClient(log *zap.Logger) *GatewayClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &GatewayClient{log: log.Named("gateway"), timeout: gatewayRequestTimeout}
}

func (c *GatewayClient) Kind() model.ChannelKind {
	return model.ChannelWhatsApp
}

func (c *GatewayClient) restClient(cfg model.ChannelConfig) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(c.timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", gatewayUserAgent)
}

// Send - 수신자마다 1번씩 POST /api/send
func (c *GatewayClient) Send(ctx context.Context, cfg model.ChannelConfig, message string) []model.DeliveryAttempt {
	attempts := make([]model.DeliveryAttempt, 0, len(cfg.Recipients))
	rc := c.restClient(cfg)

	session := cfg.Session
	if session == "" {
		session = DefaultGatewaySession
	}

	for _, number := range cfg.Recipients {
		attempt := model.DeliveryAttempt{
			Channel:   cfg.DisplayName(),
			Kind:      model.ChannelWhatsApp,
			Recipient: number,
			Variant:   model.VariantText,
		}

		var result gatewayResponse
		resp, err := rc.R().
			SetContext(ctx).
			SetBody(gatewaySendRequest{Number: number, Message: message, Session: session}).
			SetResult(&result).
			ForceContentType("application/json").
			Post("/api/send")
		attempt.At = time.Now().UTC()

		switch {
		case err != nil:
			attempt.Outcome = model.OutcomeFailed
			attempt.Detail = fmt.Sprintf("failed to call gateway: %v", err)
			c.log.Error("gateway send failed", zap.String("recipient", number), zap.Error(err))
		case resp.StatusCode() != 200:
			attempt.StatusCode = resp.StatusCode()
			attempt.Outcome = model.OutcomeFailed
			attempt.Detail = fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), truncate(resp.String(), 300))
			c.log.Error("gateway returned error status", zap.String("recipient", number), zap.Int("status", resp.StatusCode()))
		case !result.Success:
			attempt.StatusCode = resp.StatusCode()
			attempt.Outcome = model.OutcomeFailed
			attempt.Detail = gatewayError(result)
			c.log.Error("gateway rejected message", zap.String("recipient", number), zap.String("error", attempt.Detail))
		default:
			attempt.StatusCode = resp.StatusCode()
			attempt.Outcome = model.OutcomeSuccess
			c.log.Info("gateway message sent", zap.String("recipient", number), zap.String("session", session))
		}
		attempts = append(attempts, attempt)
	}

	return attempts
}

// TestConnection - GET /api/sessions 로 게이트웨이 상태 확인
func (c *GatewayClient) TestConnection(ctx context.Context, cfg model.ChannelConfig) model.ConnectionResult {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return model.ConnectionResult{Success: false, Detail: "gateway endpoint is empty"}
	}

	var result gatewayResponse
	resp, err := c.restClient(cfg).R().
		SetContext(ctx).
		SetResult(&result).
		ForceContentType("application/json").
		Get("/api/sessions")
	if err != nil {
		return model.ConnectionResult{Success: false, Detail: err.Error()}
	}
	if resp.StatusCode() != 200 {
		return model.ConnectionResult{Success: false, Detail: fmt.Sprintf("gateway error: %d", resp.StatusCode())}
	}
	return model.ConnectionResult{Success: true, Detail: fmt.Sprintf("gateway reachable, %d session(s)", len(result.Sessions))}
}

func gatewayError(r gatewayResponse) string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Message != "":
		return r.Message
	default:
		return "gateway reported failure"
	}
}
