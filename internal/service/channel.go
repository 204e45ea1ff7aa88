package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alert-relay/backend/internal/model"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var (
	// ErrChannelNotFound - 이름에 해당하는 채널 없음
	ErrChannelNotFound = errors.New("channel not found")
	// ErrNoChannelStore - DB 미설정 상태에서 채널 수정 요청
	ErrNoChannelStore = errors.New("channel store is not configured")
	// ErrInvalidChannel - 채널 저장 요청 값 오류
	ErrInvalidChannel = errors.New("invalid channel config")
)

// channelRepo - DB 인터페이스 (nil이면 정적 설정만 사용)
type channelRepo interface {
	GetChannelConfigs(ctx context.Context) ([]model.ChannelConfig, error)
	UpsertChannelConfig(ctx context.Context, cfg model.ChannelConfig) (int, error)
	DeleteChannelConfig(ctx context.Context, name string) error
}

// ChannelService - 채널 설정 조회 / 연결 테스트
//
// 정적 설정(env, YAML)에 DB 설정을 합친다. 같은 이름이면 DB 설정이 우선.
type ChannelService struct {
	static []model.ChannelConfig
	repo   channelRepo
	router *Router
	log    *zap.Logger
}

func NewChannelService(static []model.ChannelConfig, repo channelRepo, router *Router, log *zap.Logger) *ChannelService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChannelService{
		static: append([]model.ChannelConfig(nil), static...),
		repo:   repo,
		router: router,
		log:    log.Named("channel"),
	}
}

func (s *ChannelService) ListChannels(ctx context.Context) ([]model.ChannelConfig, error) {
	out := append([]model.ChannelConfig(nil), s.static...)
	if !s.hasRepo() {
		return out, nil
	}

	stored, err := s.repo.GetChannelConfigs(ctx)
	if err != nil {
		return out, fmt.Errorf("failed to load stored channels: %w", err)
	}

	index := make(map[string]int, len(out))
	for i, c := range out {
		index[c.DisplayName()] = i
	}
	for _, c := range stored {
		if i, ok := index[c.DisplayName()]; ok {
			out[i] = c
			continue
		}
		index[c.DisplayName()] = len(out)
		out = append(out, c)
	}
	return out, nil
}

// ListMaskedChannels - API 응답용, token 숨김
func (s *ChannelService) ListMaskedChannels(ctx context.Context) ([]model.ChannelConfig, error) {
	channels, err := s.ListChannels(ctx)
	masked := make([]model.ChannelConfig, 0, len(channels))
	for _, c := range channels {
		masked = append(masked, c.Masked())
	}
	return masked, err
}

func (s *ChannelService) GetChannel(ctx context.Context, name string) (model.ChannelConfig, error) {
	channels, err := s.ListChannels(ctx)
	if err != nil {
		s.log.Warn("using static channels only", zap.Error(err))
	}
	for _, c := range channels {
		if c.DisplayName() == name {
			return c, nil
		}
	}
	return model.ChannelConfig{}, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
}

// TestChannel - 채널 Sender의 TestConnection 호출
func (s *ChannelService) TestChannel(ctx context.Context, name string) (model.ConnectionResult, error) {
	cfg, err := s.GetChannel(ctx, name)
	if err != nil {
		return model.ConnectionResult{}, err
	}

	sender, ok := s.router.Sender(cfg.Kind)
	if !ok {
		return model.ConnectionResult{Success: false, Detail: fmt.Sprintf("unsupported channel kind %q", cfg.Kind)}, nil
	}

	result := sender.TestConnection(ctx, cfg)
	s.log.Info("channel connection tested", zap.String("channel", name), zap.Bool("success", result.Success), zap.String("detail", result.Detail))
	return result, nil
}

// SaveChannel - DB에 채널 설정 저장 (같은 이름이면 덮어씀)
func (s *ChannelService) SaveChannel(ctx context.Context, cfg model.ChannelConfig) (int, error) {
	if !s.hasRepo() {
		return 0, ErrNoChannelStore
	}
	if cfg.Name == "" {
		return 0, fmt.Errorf("%w: name is required", ErrInvalidChannel)
	}
	switch cfg.Kind {
	case model.ChannelTelegram, model.ChannelTeams, model.ChannelWhatsApp:
	default:
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidChannel, cfg.Kind)
	}
	if cfg.Recipients == nil {
		cfg.Recipients = []string{}
	}
	return s.repo.UpsertChannelConfig(ctx, cfg)
}

// DeleteChannel - DB 채널 설정 삭제 (정적 설정은 삭제 불가)
func (s *ChannelService) DeleteChannel(ctx context.Context, name string) error {
	if !s.hasRepo() {
		return ErrNoChannelStore
	}
	err := s.repo.DeleteChannelConfig(ctx, name)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	return err
}

// typed-nil repo(*db.Postgres)도 미설정으로 취급
func (s *ChannelService) hasRepo() bool {
	if s.repo == nil {
		return false
	}
	if p, ok := s.repo.(interface{ Configured() bool }); ok {
		return p.Configured()
	}
	return true
}
