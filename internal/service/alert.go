// Alert 처리 비즈니스 로직 정의
// poll loop와 webhook handler가 받은 이벤트를 archive 후 모든 채널로 전송
//
// 처리 흐름:
//  1. archive에 먼저 기록 (전송 전에 crash가 나도 기록은 남는다)
//  2. archive 실패해도 전송은 계속 진행
//  3. 현재 채널 설정 조회
//  4. Router.Dispatch로 채널별 전송 후 DeliveryReport 반환

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alert-relay/backend/internal/model"
	"go.uber.org/zap"
)

// ErrArchiveWrite - archive 기록 실패 (전송은 이미 시도됨)
var ErrArchiveWrite = errors.New("archive write failed")

// eventArchive - archive 인터페이스
type eventArchive interface {
	Append(events []model.Event) (string, int, error)
}

// channelLister - 채널 설정 조회 인터페이스
type channelLister interface {
	ListChannels(ctx context.Context) ([]model.ChannelConfig, error)
}

// IngestResult - Ingest 1회 결과
type IngestResult struct {
	File     string
	Archived int
	Report   model.DeliveryReport
}

// AlertService 구조체 정의
type AlertService struct {
	archive  eventArchive
	router   *Router
	channels channelLister
	log      *zap.Logger
}

// AlertService 객체 생성
func NewAlertService(archive eventArchive, router *Router, channels channelLister, log *zap.Logger) *AlertService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AlertService{
		archive:  archive,
		router:   router,
		channels: channels,
		log:      log.Named("alert"),
	}
}

// Ingest - events를 archive 후 dispatch
//
// 빈 배치는 아무것도 하지 않는다. archive 실패 시 ErrArchiveWrite를 감싼 에러와
// 함께 dispatch 결과도 반환한다.
func (s *AlertService) Ingest(ctx context.Context, events []model.Event) (IngestResult, error) {
	if len(events) == 0 {
		return IngestResult{}, nil
	}

	var archiveErr error
	file, n, err := s.archive.Append(events)
	if err != nil {
		s.log.Error("failed to archive events", zap.String("file", file), zap.Int("archived", n), zap.Int("batch", len(events)), zap.Error(err))
		archiveErr = fmt.Errorf("%w: %v", ErrArchiveWrite, err)
	}

	channels, err := s.channels.ListChannels(ctx)
	if err != nil {
		// DB 조회 실패 시 정적 채널만으로 전송
		s.log.Error("failed to load channel configs", zap.Int("static", len(channels)), zap.Error(err))
	}

	report := s.router.Dispatch(ctx, events, file, channels)
	return IngestResult{File: file, Archived: n, Report: report}, archiveErr
}
