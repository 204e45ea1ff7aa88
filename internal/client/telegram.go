// Telegram Bot API로 알림을 보내는 클라이언트
//
// 채널 설정:
//   - Token: Bot Token
//   - Endpoint: API host (비어있으면 https://api.telegram.org)
//   - Recipients: chat ID 목록
//   - RatePerSec: 수신자 간 전송 속도 제한 (기본 20/s)

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
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

const (
	DefaultTelegramAPI     = "https://api.telegram.org"
	defaultTelegramRate    = 20
	telegramRequestTimeout = 10 * time.Second
)

// TelegramClient 구조체 정의
type TelegramClient struct {
	http *resty.Client
	log  *zap.Logger
}

// telegramMessage - sendMessage 요청 body
type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// TelegramClient 객체 생성
func NewTelegramClient(log *zap.Logger) *TelegramClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &TelegramClient{
		http: resty.New().
			SetTimeout(telegramRequestTimeout).
			SetHeader("Content-Type", "application/json"),
		log: log.Named("telegram"),
	}
}

func (c *TelegramClient) Kind() model.ChannelKind {
	return model.ChannelTelegram
}

// Send - 수신자(chat ID)마다 1번씩 sendMessage 호출
// 실패는 에러로 반환하지 않고 DeliveryAttempt로 기록
func (c *TelegramClient) Send(ctx context.Context, cfg model.ChannelConfig, message string) []model.DeliveryAttempt {
	attempts := make([]model.DeliveryAttempt, 0, len(cfg.Recipients))

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = defaultTelegramRate
	}
	limiter := rate.NewLimiter(rate.Limit(rps), rps)

	for _, chatID := range cfg.Recipients {
		attempt := model.DeliveryAttempt{
			Channel:   cfg.DisplayName(),
			Kind:      model.ChannelTelegram,
			Recipient: chatID,
			Variant:   model.VariantText,
		}

		if err := limiter.Wait(ctx); err != nil {
			attempt.Outcome = model.OutcomeFailed
			attempt.Detail = err.Error()
			attempt.At = time.Now().UTC()
			attempts = append(attempts, attempt)
			continue
		}

		status, detail, err := c.sendMessage(ctx, cfg, chatID, message)
		attempt.StatusCode = status
		attempt.At = time.Now().UTC()
		switch {
		case err != nil:
			attempt.Outcome = model.OutcomeFailed
			attempt.Detail = err.Error()
			c.log.Error("telegram send failed", zap.String("chat_id", chatID), zap.Error(err))
		case status != http.StatusOK:
			attempt.Outcome = model.OutcomeFailed
			attempt.Detail = detail
			c.log.Error("telegram API error", zap.String("chat_id", chatID), zap.Int("status", status), zap.String("body", detail))
		default:
			attempt.Outcome = model.OutcomeSuccess
			c.log.Info("telegram message sent", zap.String("chat_id", chatID))
		}
		attempts = append(attempts, attempt)
	}

	return attempts
}

// Bot API sendMessage 호출, (status code, 응답 body 일부, 전송 에러) 반환
func (c *TelegramClient) sendMessage(ctx context.Context, cfg model.ChannelConfig, chatID, text string) (int, string, error) {
	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPI(cfg), cfg.Token)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(telegramMessage{ChatID: chatID, Text: text, ParseMode: string(tele.ModeHTML)}).
		Post(url)
	if err != nil {
		// URL에 token이 들어가므로 에러 메시지에서 제거
		return 0, "", fmt.Errorf("failed to send message: %s", redact(err.Error(), cfg.Token))
	}
	return resp.StatusCode(), truncate(resp.String(), 300), nil
}

// TestConnection - getMe 호출로 token / API 연결 확인
func (c *TelegramClient) TestConnection(ctx context.Context, cfg model.ChannelConfig) model.ConnectionResult {
	if strings.TrimSpace(cfg.Token) == "" {
		return model.ConnectionResult{Success: false, Detail: "bot token is empty"}
	}

	// telebot.NewBot은 Offline이 아니면 생성 시 getMe를 호출한다
	bot, err := tele.NewBot(tele.Settings{
		URL:    telegramAPI(cfg),
		Token:  cfg.Token,
		Client: &http.Client{Timeout: telegramRequestTimeout},
	})
	if err != nil {
		return model.ConnectionResult{Success: false, Detail: redact(err.Error(), cfg.Token)}
	}
	if ctx.Err() != nil {
		return model.ConnectionResult{Success: false, Detail: ctx.Err().Error()}
	}

	return model.ConnectionResult{Success: true, Detail: "connected as @" + bot.Me.Username}
}

func telegramAPI(cfg model.ChannelConfig) string {
	if cfg.Endpoint == "" {
		return DefaultTelegramAPI
	}
	return strings.TrimRight(cfg.Endpoint, "/")
}
