package model

import "time"

// ChannelKind - 알림 채널 종류
type ChannelKind string

const (
	ChannelTelegram ChannelKind = "telegram" // chat-bot API
	ChannelTeams    ChannelKind = "teams"    // incoming-webhook card
	ChannelWhatsApp ChannelKind = "whatsapp" // local gateway bridge
)

// ChannelConfig - 채널 1개의 설정
//
// Kind별 필드 사용:
//   - telegram: Token(bot token), Endpoint(API host, 기본 https://api.telegram.org), Recipients(chat ID)
//   - teams: Recipients(webhook URL)
//   - whatsapp: Endpoint(gateway base URL), Session, Recipients(번호 또는 그룹 ID)
type ChannelConfig struct {
	ID         int         `json:"id,omitempty" yaml:"-"`
	Name       string      `json:"name" yaml:"name"`
	Kind       ChannelKind `json:"kind" yaml:"kind"`
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	Endpoint   string      `json:"endpoint,omitempty" yaml:"endpoint"`
	Token      string      `json:"token,omitempty" yaml:"token"`
	Session    string      `json:"session,omitempty" yaml:"session"`
	Recipients []string    `json:"recipients" yaml:"recipients"`
	Template   string      `json:"template,omitempty" yaml:"template"`
	RatePerSec int         `json:"rate_per_sec,omitempty" yaml:"rate_per_sec"`
	UpdatedAt  time.Time   `json:"updated_at,omitempty" yaml:"-"`
}

// Active - enabled 이면서 수신자가 1명 이상일 때만 true
func (c ChannelConfig) Active() bool {
	return c.Enabled && len(c.Recipients) > 0
}

// DisplayName - Name이 비어있으면 Kind 사용
func (c ChannelConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return string(c.Kind)
}

// Masked - API 응답용, token 숨김
func (c ChannelConfig) Masked() ChannelConfig {
	out := c
	if out.Token != "" {
		out.Token = "***"
	}
	out.Recipients = append([]string(nil), c.Recipients...)
	return out
}

// ConnectionResult - 채널 연결 테스트 결과
type ConnectionResult struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

// ChannelListResponse - 채널 목록 응답
type ChannelListResponse struct {
	Status string          `json:"status"`
	Data   []ChannelConfig `json:"data"`
}

// ChannelTestResponse - 연결 테스트 응답
type ChannelTestResponse struct {
	Status  string           `json:"status"`
	Channel string           `json:"channel"`
	Result  ConnectionResult `json:"result"`
}

// ChannelMutationResponse - 채널 저장 / 삭제 응답
type ChannelMutationResponse struct {
	Status string `json:"status"`
	ID     int    `json:"id,omitempty"`
	Name   string `json:"name"`
}
