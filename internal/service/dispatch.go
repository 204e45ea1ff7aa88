// 이벤트 배치 1개를 설정된 모든 채널로 전송하는 Router
//
// 처리 흐름:
//  1. Active 채널만 선택 (disabled / 수신자 0명은 제외)
//  2. 채널마다 템플릿으로 요약 메시지 1개 렌더링
//  3. 채널별 goroutine에서 Sender.Send 호출 (채널 내 수신자는 순차)
//  4. 모든 attempt를 Aggregate로 집계 후 로그

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alert-relay/backend/internal/model"
	tmpl "github.com/alert-relay/backend/internal/template"
	"go.uber.org/zap"
)

// Sender - 채널 종류 1개에 대한 전송 구현 (internal/client)
//
// Send는 에러를 반환하지 않는다. 모든 실패는 DeliveryAttempt에 기록된다.
type Sender interface {
	Kind() model.ChannelKind
	Send(ctx context.Context, cfg model.ChannelConfig, message string) []model.DeliveryAttempt
	TestConnection(ctx context.Context, cfg model.ChannelConfig) model.ConnectionResult
}

// Router 구조체 정의
type Router struct {
	senders map[model.ChannelKind]Sender
	log     *zap.Logger
}

// Router 객체 생성
func NewRouter(log *zap.Logger, senders ...Sender) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		senders: make(map[model.ChannelKind]Sender, len(senders)),
		log:     log.Named("dispatch"),
	}
	for _, s := range senders {
		r.senders[s.Kind()] = s
	}
	return r
}

// Sender - 채널 종류에 해당하는 Sender 조회
func (r *Router) Sender(kind model.ChannelKind) (Sender, bool) {
	s, ok := r.senders[kind]
	return s, ok
}

// Dispatch - events 배치를 channels로 전송하고 결과 집계
func (r *Router) Dispatch(ctx context.Context, events []model.Event, archiveFile string, channels []model.ChannelConfig) model.DeliveryReport {
	startedAt := time.Now().UTC()
	summary := tmpl.SummaryFromEvents(events, archiveFile)

	// 채널 순서대로 집계되도록 설정 index별로 결과 보관
	results := make([][]model.DeliveryAttempt, len(channels))
	var wg sync.WaitGroup

	for i, cfg := range channels {
		if !cfg.Active() {
			r.log.Debug("skipping inactive channel", zap.String("channel", cfg.DisplayName()))
			continue
		}

		wg.Add(1)
		go func(i int, cfg model.ChannelConfig) {
			defer wg.Done()
			results[i] = r.sendChannel(ctx, cfg, tmpl.RenderForChannel(cfg, summary))
		}(i, cfg)
	}
	wg.Wait()

	var attempts []model.DeliveryAttempt
	for _, res := range results {
		attempts = append(attempts, res...)
	}

	report := Aggregate(attempts)
	report.StartedAt = startedAt
	r.logReport(report, len(events))
	return report
}

// sendChannel - 채널 1개 전송, panic은 해당 채널의 failed attempt로 변환
func (r *Router) sendChannel(ctx context.Context, cfg model.ChannelConfig, message string) (attempts []model.DeliveryAttempt) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("sender panicked", zap.String("channel", cfg.DisplayName()), zap.Any("panic", rec))
			attempts = failAll(cfg, fmt.Sprintf("sender panic: %v", rec))
		}
	}()

	sender, ok := r.senders[cfg.Kind]
	if !ok {
		r.log.Error("no sender for channel kind", zap.String("channel", cfg.DisplayName()), zap.String("kind", string(cfg.Kind)))
		return failAll(cfg, fmt.Sprintf("unsupported channel kind %q", cfg.Kind))
	}

	attempts = sender.Send(ctx, cfg, message)
	if len(attempts) == 0 {
		return failAll(cfg, "sender returned no attempts")
	}
	return attempts
}

func (r *Router) logReport(report model.DeliveryReport, eventCount int) {
	fields := []zap.Field{
		zap.String("report_id", report.ID),
		zap.Int("events", eventCount),
		zap.Int("channels", len(report.Channels)),
		zap.Bool("success", report.Success),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	}
	for _, ch := range report.Channels {
		fields = append(fields, zap.String("channel."+ch.Channel, fmt.Sprintf("%s %d/%d", ch.Status, ch.SuccessCount, ch.Total)))
	}

	if report.Success {
		r.log.Info("dispatch finished", fields...)
	} else {
		r.log.Warn("dispatch failed on all channels", fields...)
	}
}

func failAll(cfg model.ChannelConfig, detail string) []model.DeliveryAttempt {
	now := time.Now().UTC()
	out := make([]model.DeliveryAttempt, 0, len(cfg.Recipients))
	for _, rcpt := range cfg.Recipients {
		out = append(out, model.DeliveryAttempt{
			Channel:   cfg.DisplayName(),
			Kind:      cfg.Kind,
			Recipient: rcpt,
			Variant:   model.VariantText,
			Outcome:   model.OutcomeFailed,
			Detail:    detail,
			At:        now,
		})
	}
	return out
}
