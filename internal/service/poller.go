// 모니터링 플랫폼을 주기적으로 조회하는 poll loop
//
// 매 cycle마다 최신 N건(limit)을 가져와서 AlertService.Ingest로 넘긴다.
// cursor나 중복 제거가 없으므로 cycle 사이에 새 알림이 N건 미만이면
// 같은 알림이 다시 archive / 전송된다.

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alert-relay/backend/internal/model"
	"go.uber.org/zap"
)

// ErrMisconfigured - 시작에 필요한 설정 누락 (poll 대상 URL / token, JWT secret)
var ErrMisconfigured = errors.New("poller is misconfigured")

const (
	DefaultPollInterval = 60 * time.Second
	DefaultPollLimit    = 10
)

// alertFetcher - 모니터링 API 인터페이스 (client.MonitorClient)
type alertFetcher interface {
	IsConfigured() bool
	FetchAlerts(ctx context.Context, limit int) ([]map[string]any, error)
}

// eventIngester - AlertService 인터페이스
type eventIngester interface {
	Ingest(ctx context.Context, events []model.Event) (IngestResult, error)
}

// Poller 구조체 정의
type Poller struct {
	fetcher  alertFetcher
	ingester eventIngester
	interval time.Duration
	limit    int
	log      *zap.Logger
	now      func() time.Time
}

// Poller 객체 생성
func NewPoller(fetcher alertFetcher, ingester eventIngester, interval time.Duration, limit int, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if limit <= 0 {
		limit = DefaultPollLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		fetcher:  fetcher,
		ingester: ingester,
		interval: interval,
		limit:    limit,
		log:      log.Named("poller"),
		now:      time.Now,
	}
}

// Run - ctx가 취소될 때까지 poll cycle 반복
//
// 설정 누락이면 첫 cycle 전에 ErrMisconfigured 반환.
// 진행 중인 cycle은 취소되지 않은 context로 끝까지 실행하고, 그 뒤 종료한다.
func (p *Poller) Run(ctx context.Context) error {
	if p.fetcher == nil || !p.fetcher.IsConfigured() {
		return fmt.Errorf("%w: monitor base URL and API token are required", ErrMisconfigured)
	}

	p.log.Info("poll loop started", zap.Duration("interval", p.interval), zap.Int("limit", p.limit))
	for {
		if ctx.Err() != nil {
			p.log.Info("poll loop stopped")
			return nil
		}

		if _, err := p.RunOnce(context.WithoutCancel(ctx)); err != nil {
			p.log.Error("poll cycle failed", zap.Error(err))
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.log.Info("poll loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce - poll cycle 1회 (fetch → Ingest)
// 가져온 이벤트가 없으면 archive / dispatch 하지 않는다
func (p *Poller) RunOnce(ctx context.Context) (IngestResult, error) {
	raws, err := p.fetcher.FetchAlerts(ctx, p.limit)
	if err != nil {
		return IngestResult{}, err
	}
	if len(raws) == 0 {
		p.log.Debug("no alerts fetched")
		return IngestResult{}, nil
	}

	receivedAt := p.now()
	events := make([]model.Event, 0, len(raws))
	for _, raw := range raws {
		events = append(events, model.NewEvent(raw, receivedAt))
	}

	result, err := p.ingester.Ingest(ctx, events)
	p.log.Info("poll cycle finished",
		zap.Int("fetched", len(raws)),
		zap.Int("archived", result.Archived),
		zap.String("file", result.File),
		zap.Bool("delivered", result.Report.Success),
	)
	return result, err
}
