// Microsoft Teams incoming webhook 클라이언트
//
// 채널 설정:
//   - Recipients: webhook URL 목록
//
// 전송 순서 (수신자마다 독립적으로 진행):
//
//	card ──200/201/202──▶ done(success)
//	card ──400──────────▶ fallback ──200/201/202──▶ done(success)
//	card ──기타 실패────▶ done(failed)         └──기타──▶ done(failed)
//
// 400은 card 형식을 거부한 것으로 보고 plain text로 딱 1번만 재전송한다.

package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alert-relay/backend/internal/model"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const teamsRequestTimeout = 10 * time.Second

// TeamsClient 구조체 정의
type TeamsClient struct {
	http *resty.Client
	log  *zap.Logger
}

// teamsMessage - adaptive card를 담는 webhook 메시지
type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

type teamsAttachment struct {
	ContentType string       `json:"contentType"`
	Content     adaptiveCard `json:"content"`
}

type adaptiveCard struct {
	Schema  string          `json:"$schema"`
	Type    string          `json:"type"`
	Version string          `json:"version"`
	Body    []cardTextBlock `json:"body"`
}

type cardTextBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Wrap   bool   `json:"wrap"`
	Weight string `json:"weight,omitempty"`
	Size   string `json:"size,omitempty"`
	Color  string `json:"color,omitempty"`
}

// teamsText - fallback payload
type teamsText struct {
	Text string `json:"text"`
}

// teamsState - 수신자 1명에 대한 전송 상태
type teamsState int

const (
	teamsStateCard teamsState = iota
	teamsStateFallback
	teamsStateDone
)

// TeamsClient 객체 생성
func NewTeamsClient(log *zap.Logger) *TeamsClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &TeamsClient{
		http: resty.New().
			SetTimeout(teamsRequestTimeout).
			SetHeader("Content-Type", "application/json"),
		log: log.Named("teams"),
	}
}

func (c *TeamsClient) Kind() model.ChannelKind {
	return model.ChannelTeams
}

// Send - webhook URL마다 card 전송, 400이면 text fallback 1회
func (c *TeamsClient) Send(ctx context.Context, cfg model.ChannelConfig, message string) []model.DeliveryAttempt {
	attempts := make([]model.DeliveryAttempt, 0, len(cfg.Recipients))
	for _, webhookURL := range cfg.Recipients {
		attempts = append(attempts, c.deliver(ctx, cfg.DisplayName(), webhookURL, message)...)
	}
	return attempts
}

func (c *TeamsClient) deliver(ctx context.Context, channel, webhookURL, message string) []model.DeliveryAttempt {
	var attempts []model.DeliveryAttempt
	masked := maskURL(webhookURL)

	state := teamsStateCard
	for state != teamsStateDone {
		attempt := model.DeliveryAttempt{
			Channel:   channel,
			Kind:      model.ChannelTeams,
			Recipient: webhookURL,
		}

		var payload any
		switch state {
		case teamsStateCard:
			attempt.Variant = model.VariantCard
			payload = buildCard(message)
		case teamsStateFallback:
			attempt.Variant = model.VariantFallback
			payload = teamsText{Text: message}
		}

		status, detail, err := c.post(ctx, webhookURL, payload)
		attempt.StatusCode = status
		attempt.At = time.Now().UTC()

		switch {
		case err != nil:
			attempt.Outcome = model.OutcomeFailed
			attempt.Detail = err.Error()
			state = teamsStateDone
			c.log.Error("teams send failed", zap.String("webhook", masked), zap.String("variant", string(attempt.Variant)), zap.Error(err))
		case teamsAccepted(status):
			attempt.Outcome = model.OutcomeSuccess
			state = teamsStateDone
			c.log.Info("teams message sent", zap.String("webhook", masked), zap.String("variant", string(attempt.Variant)))
		case status == http.StatusBadRequest && state == teamsStateCard:
			attempt.Outcome = model.OutcomeRejectedRetryable
			attempt.Detail = detail
			state = teamsStateFallback
			c.log.Warn("teams rejected card, retrying as text", zap.String("webhook", masked), zap.String("body", detail))
		default:
			attempt.Outcome = model.OutcomeFailed
			attempt.Detail = detail
			state = teamsStateDone
			c.log.Error("teams API error", zap.String("webhook", masked), zap.Int("status", status), zap.String("body", detail))
		}
		attempts = append(attempts, attempt)
	}
	return attempts
}

// TestConnection - 첫 번째 webhook으로 짧은 text 메시지 전송
func (c *TeamsClient) TestConnection(ctx context.Context, cfg model.ChannelConfig) model.ConnectionResult {
	if len(cfg.Recipients) == 0 {
		return model.ConnectionResult{Success: false, Detail: "no webhook URL configured"}
	}

	status, detail, err := c.post(ctx, cfg.Recipients[0], teamsText{Text: "✅ Alert relay connection test"})
	if err != nil {
		return model.ConnectionResult{Success: false, Detail: err.Error()}
	}
	if !teamsAccepted(status) {
		return model.ConnectionResult{Success: false, Detail: fmt.Sprintf("HTTP %d: %s", status, detail)}
	}
	return model.ConnectionResult{Success: true, Detail: fmt.Sprintf("webhook accepted (HTTP %d)", status)}
}

func (c *TeamsClient) post(ctx context.Context, webhookURL string, payload any) (int, string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(webhookURL)
	if err != nil {
		// webhook URL 자체가 secret
		return 0, "", fmt.Errorf("failed to send message: %s", redact(err.Error(), webhookURL))
	}
	return resp.StatusCode(), truncate(resp.String(), 300), nil
}

// buildCard - 첫 줄은 제목, 나머지는 본문 TextBlock
func buildCard(message string) teamsMessage {
	lines := strings.SplitN(strings.TrimSpace(message), "\n", 2)
	blocks := []cardTextBlock{{
		Type:   "TextBlock",
		Text:   lines[0],
		Wrap:   true,
		Weight: "Bolder",
		Size:   "Medium",
		Color:  "Attention",
	}}
	if len(lines) > 1 {
		for _, line := range strings.Split(strings.TrimSpace(lines[1]), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			blocks = append(blocks, cardTextBlock{Type: "TextBlock", Text: line, Wrap: true})
		}
	}

	return teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: adaptiveCard{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.4",
				Body:    blocks,
			},
		}},
	}
}

func teamsAccepted(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated || status == http.StatusAccepted
}
