// 환경변수 / .env / 채널 YAML 파일에서 설정을 읽는다
//
// 채널은 두 곳에서 정의할 수 있다:
//   - 환경변수: TELEGRAM_*, TEAMS_*, WHATSAPP_* (채널 종류별 1개)
//   - CHANNELS_FILE: YAML 파일의 channels 목록 (같은 이름이면 파일 설정이 우선)

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alert-relay/backend/internal/model"
	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"
)

// ErrInvalidConfig - 시작 시점 설정 오류 (fatal)
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Archive  ArchiveConfig
	Monitor  MonitorConfig
	Auth     AuthConfig
	Postgres PostgresConfig
	Channels []model.ChannelConfig
}

type ServerConfig struct {
	Addr string
}

type LogConfig struct {
	Level  string
	Format string
}

type ArchiveConfig struct {
	Dir string
}

type MonitorConfig struct {
	BaseURL  string
	APIToken string
	Interval time.Duration
	Limit    int
}

type AuthConfig struct {
	JWTSecret string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

// Enabled - DATABASE_URL 또는 PGUSER/PGDATABASE가 있을 때만 DB 사용
func (p PostgresConfig) Enabled() bool {
	return p.DatabaseURL != "" || (p.User != "" && p.Database != "")
}

// channelsFile - CHANNELS_FILE YAML 구조
type channelsFile struct {
	Channels []model.ChannelConfig `yaml:"channels"`
}

// Load - .env(있으면) 로드 후 환경변수에서 설정 생성
func Load() (Config, error) {
	// .env 파일은 선택 사항
	_ = godotenv.Load()

	cfg := Config{
		Server: ServerConfig{
			Addr: getenv("HTTP_ADDR", ":8080"),
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},
		Archive: ArchiveConfig{
			Dir: getenv("ARCHIVE_DIR", "storage/events"),
		},
		Monitor: MonitorConfig{
			BaseURL:  strings.TrimSpace(os.Getenv("MONITOR_BASE_URL")),
			APIToken: strings.TrimSpace(os.Getenv("MONITOR_API_TOKEN")),
			Interval: time.Duration(getenvInt("POLL_INTERVAL_SECONDS", 60)) * time.Second,
			Limit:    getenvInt("POLL_LIMIT", 10),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Channels: envChannels(),
	}

	if path := os.Getenv("CHANNELS_FILE"); path != "" {
		fileChannels, err := LoadChannelsFile(path)
		if err != nil {
			return cfg, err
		}
		cfg.Channels = mergeChannels(cfg.Channels, fileChannels)
	}

	return cfg, nil
}

// LoadChannelsFile - YAML 채널 파일 읽기
func LoadChannelsFile(path string) ([]model.ChannelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read channels file: %w", err)
	}

	var f channelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse channels file %s: %v", ErrInvalidConfig, path, err)
	}
	for i := range f.Channels {
		f.Channels[i].Kind = model.ChannelKind(strings.ToLower(string(f.Channels[i].Kind)))
		f.Channels[i].Recipients = cleanList(f.Channels[i].Recipients)
	}
	return f.Channels, nil
}

// Validate - enabled 채널의 필수 값 확인
func (c Config) Validate() error {
	var problems []string
	seen := map[string]bool{}

	for _, ch := range c.Channels {
		name := ch.DisplayName()
		if seen[name] {
			problems = append(problems, fmt.Sprintf("duplicate channel name %q", name))
		}
		seen[name] = true

		if !ch.Enabled {
			continue
		}
		switch ch.Kind {
		case model.ChannelTelegram:
			if ch.Token == "" {
				problems = append(problems, fmt.Sprintf("channel %q: telegram bot token is required", name))
			}
		case model.ChannelTeams:
			for _, u := range ch.Recipients {
				if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
					problems = append(problems, fmt.Sprintf("channel %q: webhook URL must be http(s)", name))
					break
				}
			}
		case model.ChannelWhatsApp:
			if ch.Endpoint == "" {
				problems = append(problems, fmt.Sprintf("channel %q: gateway endpoint is required", name))
			}
		default:
			problems = append(problems, fmt.Sprintf("channel %q: unknown kind %q", name, ch.Kind))
		}
	}

	if c.Monitor.Limit <= 0 {
		problems = append(problems, "POLL_LIMIT must be positive")
	}
	if c.Monitor.Interval <= 0 {
		problems = append(problems, "POLL_INTERVAL_SECONDS must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// envChannels - 채널 종류별 환경변수 설정
func envChannels() []model.ChannelConfig {
	var channels []model.ChannelConfig

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" || getenvBool("TELEGRAM_ENABLED", false) {
		channels = append(channels, model.ChannelConfig{
			Name:       "telegram",
			Kind:       model.ChannelTelegram,
			Enabled:    getenvBool("TELEGRAM_ENABLED", true),
			Endpoint:   os.Getenv("TELEGRAM_API_URL"),
			Token:      token,
			Recipients: splitList(os.Getenv("TELEGRAM_CHAT_IDS")),
			Template:   os.Getenv("TELEGRAM_TEMPLATE"),
			RatePerSec: getenvInt("TELEGRAM_RATE_PER_SEC", 0),
		})
	}

	if urls := splitList(os.Getenv("TEAMS_WEBHOOK_URLS")); len(urls) > 0 || getenvBool("TEAMS_ENABLED", false) {
		channels = append(channels, model.ChannelConfig{
			Name:       "teams",
			Kind:       model.ChannelTeams,
			Enabled:    getenvBool("TEAMS_ENABLED", true),
			Recipients: urls,
			Template:   os.Getenv("TEAMS_TEMPLATE"),
		})
	}

	if endpoint := os.Getenv("WHATSAPP_GATEWAY_URL"); endpoint != "" || getenvBool("WHATSAPP_ENABLED", false) {
		channels = append(channels, model.ChannelConfig{
			Name:       "whatsapp",
			Kind:       model.ChannelWhatsApp,
			Enabled:    getenvBool("WHATSAPP_ENABLED", true),
			Endpoint:   endpoint,
			Session:    getenv("WHATSAPP_SESSION", "gateway"),
			Recipients: splitList(os.Getenv("WHATSAPP_RECIPIENTS")),
			Template:   os.Getenv("WHATSAPP_TEMPLATE"),
		})
	}

	return channels
}

func mergeChannels(base, override []model.ChannelConfig) []model.ChannelConfig {
	out := append([]model.ChannelConfig(nil), base...)
	index := make(map[string]int, len(out))
	for i, c := range out {
		index[c.DisplayName()] = i
	}
	for _, c := range override {
		if i, ok := index[c.DisplayName()]; ok {
			out[i] = c
			continue
		}
		index[c.DisplayName()] = len(out)
		out = append(out, c)
	}
	return out
}

// splitList - "a, b,,c" -> [a b c]
func splitList(s string) []string {
	return cleanList(strings.Split(s, ","))
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return fallback
	}
	return b
}
