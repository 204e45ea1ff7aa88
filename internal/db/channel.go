package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alert-relay/backend/internal/model"
	"github.com/jackc/pgx/v5"
)

// EnsureChannelSchema - channel_configs 테이블 생성 (없으면)
func (p *Postgres) EnsureChannelSchema(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS channel_configs (
			id           SERIAL       PRIMARY KEY,
			name         TEXT         NOT NULL UNIQUE,
			kind         TEXT         NOT NULL,
			enabled      BOOLEAN      NOT NULL DEFAULT TRUE,
			endpoint     TEXT         NOT NULL DEFAULT '',
			token        TEXT         NOT NULL DEFAULT '',
			session      TEXT         NOT NULL DEFAULT '',
			recipients   JSONB        NOT NULL DEFAULT '[]',
			template     TEXT         NOT NULL DEFAULT '',
			rate_per_sec INTEGER      NOT NULL DEFAULT 0,
			updated_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create channel_configs table: %w", err)
	}
	return nil
}

// GetChannelConfigs - 채널 설정 전체 목록 조회 (이름순)
func (p *Postgres) GetChannelConfigs(ctx context.Context) ([]model.ChannelConfig, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT id, name, kind, enabled, endpoint, token, session, recipients, template, rate_per_sec, updated_at
		FROM channel_configs
		ORDER BY name;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel configs: %w", err)
	}
	defer rows.Close()

	configs := []model.ChannelConfig{}
	for rows.Next() {
		var cfg model.ChannelConfig
		var kind string
		var recipientsJSON []byte
		if err := rows.Scan(&cfg.ID, &cfg.Name, &kind, &cfg.Enabled, &cfg.Endpoint, &cfg.Token, &cfg.Session,
			&recipientsJSON, &cfg.Template, &cfg.RatePerSec, &cfg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel config: %w", err)
		}
		cfg.Kind = model.ChannelKind(kind)
		if cfg.Recipients, err = decodeRecipients(recipientsJSON); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channel configs: %w", err)
	}
	return configs, nil
}

// UpsertChannelConfig - 이름 기준으로 저장 (있으면 수정)
func (p *Postgres) UpsertChannelConfig(ctx context.Context, cfg model.ChannelConfig) (int, error) {
	recipientsJSON, err := encodeRecipients(cfg.Recipients)
	if err != nil {
		return 0, err
	}

	var id int
	err = p.Pool.QueryRow(ctx, `
		INSERT INTO channel_configs (name, kind, enabled, endpoint, token, session, recipients, template, rate_per_sec, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (name) DO UPDATE SET
			kind = EXCLUDED.kind,
			enabled = EXCLUDED.enabled,
			endpoint = EXCLUDED.endpoint,
			token = EXCLUDED.token,
			session = EXCLUDED.session,
			recipients = EXCLUDED.recipients,
			template = EXCLUDED.template,
			rate_per_sec = EXCLUDED.rate_per_sec,
			updated_at = NOW()
		RETURNING id;
	`, cfg.Name, string(cfg.Kind), cfg.Enabled, cfg.Endpoint, cfg.Token, cfg.Session,
		recipientsJSON, cfg.Template, cfg.RatePerSec).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert channel config: %w", err)
	}
	return id, nil
}

// DeleteChannelConfig - 이름으로 채널 설정 삭제
func (p *Postgres) DeleteChannelConfig(ctx context.Context, name string) error {
	tag, err := p.Pool.Exec(ctx, `DELETE FROM channel_configs WHERE name = $1;`, name)
	if err != nil {
		return fmt.Errorf("failed to delete channel config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("channel config not found: name=%s: %w", name, pgx.ErrNoRows)
	}
	return nil
}

func encodeRecipients(recipients []string) ([]byte, error) {
	if recipients == nil {
		recipients = []string{}
	}
	b, err := json.Marshal(recipients)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recipients: %w", err)
	}
	return b, nil
}

func decodeRecipients(raw []byte) ([]string, error) {
	recipients := []string{}
	if len(raw) == 0 {
		return recipients, nil
	}
	if err := json.Unmarshal(raw, &recipients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipients: %w", err)
	}
	if recipients == nil {
		recipients = []string{}
	}
	return recipients, nil
}
