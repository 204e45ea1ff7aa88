package model

import "time"

// Outcome - 수신자 1명에 대한 전송 결과
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeRejectedRetryable Outcome = "rejected-retryable"
	OutcomeFailed            Outcome = "failed"
)

// PayloadVariant - 전송한 payload 종류
type PayloadVariant string

const (
	VariantText     PayloadVariant = "text"
	VariantCard     PayloadVariant = "card"
	VariantFallback PayloadVariant = "fallback"
)

// DeliveryAttempt - (channel, recipient, variant) 단위 전송 1회
// 생성 후 수정하지 않고 집계에만 사용
type DeliveryAttempt struct {
	Channel    string         `json:"channel"`
	Kind       ChannelKind    `json:"kind"`
	Recipient  string         `json:"recipient"`
	Variant    PayloadVariant `json:"variant"`
	Outcome    Outcome        `json:"outcome"`
	StatusCode int            `json:"status_code,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	At         time.Time      `json:"at"`
}

func (a DeliveryAttempt) Succeeded() bool {
	return a.Outcome == OutcomeSuccess
}

// ChannelStatus - 채널 단위 집계 결과
type ChannelStatus string

const (
	ChannelStatusSuccess ChannelStatus = "success"
	ChannelStatusPartial ChannelStatus = "partial"
	ChannelStatusFailed  ChannelStatus = "failed"
)

// ChannelReport - 채널 1개의 수신자별 결과 집계
type ChannelReport struct {
	Channel      string            `json:"channel"`
	Kind         ChannelKind       `json:"kind"`
	SuccessCount int               `json:"success_count"`
	Total        int               `json:"total"`
	Status       ChannelStatus     `json:"status"`
	Attempts     []DeliveryAttempt `json:"attempts"`
}

// Succeeded - full / partial 모두 성공으로 간주
func (r ChannelReport) Succeeded() bool {
	return r.SuccessCount > 0
}

// DeliveryReport - dispatch 1회의 결과
// 저장하지 않고 로그로만 남김
type DeliveryReport struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Channels   []ChannelReport `json:"channels"`
	Success    bool            `json:"success"`
}

// Channel - 이름으로 채널 결과 조회
func (r DeliveryReport) Channel(name string) (ChannelReport, bool) {
	for _, c := range r.Channels {
		if c.Channel == name {
			return c, true
		}
	}
	return ChannelReport{}, false
}
