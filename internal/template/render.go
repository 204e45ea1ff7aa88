// Package template provides notification message template rendering.
//
// 지원하는 변수 형식:
//
//	{{agent}}, {{threat}}, {{timestamp}}, {{file}}, {{count}}
//
// 치환은 문자열 그대로(literal) 수행하며, 모르는 변수는 그대로 남겨둔다.
package template

import (
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alert-relay/backend/internal/model"
)

const TimestampLayout = "2006-01-02 15:04:05"

// 채널별 기본 템플릿
const (
	DefaultTelegramTemplate = "🚨 <b>SentinelOne Alert</b>\n\n<b>Agent:</b> {{agent}}\n<b>Threat:</b> {{threat}}\n<b>Time:</b> {{timestamp}}\n<b>File:</b> {{file}}"
	DefaultTeamsTemplate    = "🚨 SentinelOne Alert\n\nAgent: {{agent}}\nThreat: {{threat}}\nTime: {{timestamp}}\nFile: {{file}}"
	DefaultWhatsAppTemplate = "🚨 *SentinelOne Alert*\n\n*Agent:* {{agent}}\n*Threat:* {{threat}}\n*Time:* {{timestamp}}\n*File:* {{file}}"
)

// SummaryData - 템플릿 렌더링에 사용할 배치 요약 데이터
type SummaryData struct {
	Agent     string
	Threat    string
	Timestamp time.Time
	File      string
	Count     int
}

// SummaryFromEvents - 이벤트 배치 1개를 요약 데이터 1개로 변환
//
// 여러 이벤트가 있으면 agent / threat는 중복 제거 후 ", "로 연결한다.
// timestamp는 배치 첫 이벤트의 수신 시각(UTC).
func SummaryFromEvents(events []model.Event, archiveFile string) SummaryData {
	data := SummaryData{
		Agent:  model.DefaultAgentName,
		Threat: model.DefaultThreatName,
		File:   archiveFile,
		Count:  len(events),
	}
	if len(events) == 0 {
		return data
	}

	data.Timestamp = events[0].ReceivedAt
	data.Agent = joinUnique(events, model.Event.AgentName)
	data.Threat = joinUnique(events, model.Event.ThreatName)
	return data
}

// DefaultTemplate - 채널 종류별 기본 템플릿
func DefaultTemplate(kind model.ChannelKind) string {
	switch kind {
	case model.ChannelTelegram:
		return DefaultTelegramTemplate
	case model.ChannelWhatsApp:
		return DefaultWhatsAppTemplate
	default:
		return DefaultTeamsTemplate
	}
}

// Escaper - 채널 포맷에 맞게 변수 값을 escape (nil이면 그대로)
type Escaper func(string) string

// HTMLEscaper - Telegram parse_mode=HTML 용
var HTMLEscaper Escaper = html.EscapeString

// Render - body의 {{변수}}를 값으로 치환
func Render(body string, data SummaryData, escape Escaper) string {
	if escape == nil {
		escape = func(s string) string { return s }
	}

	timestamp := ""
	if !data.Timestamp.IsZero() {
		timestamp = data.Timestamp.UTC().Format(TimestampLayout)
	}

	return strings.NewReplacer(
		"{{agent}}", escape(data.Agent),
		"{{threat}}", escape(data.Threat),
		"{{timestamp}}", escape(timestamp),
		"{{file}}", escape(data.File),
		"{{count}}", strconv.Itoa(data.Count),
	).Replace(body)
}

// RenderForChannel - 채널 설정의 템플릿(없으면 기본값)으로 렌더링
func RenderForChannel(cfg model.ChannelConfig, data SummaryData) string {
	body := cfg.Template
	if strings.TrimSpace(body) == "" {
		body = DefaultTemplate(cfg.Kind)
	}
	var escape Escaper
	if cfg.Kind == model.ChannelTelegram {
		escape = HTMLEscaper
	}
	return Render(body, data, escape)
}

func joinUnique(events []model.Event, get func(model.Event) string) string {
	seen := make(map[string]struct{}, len(events))
	values := make([]string, 0, len(events))
	for _, ev := range events {
		v := get(ev)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	if len(values) > 1 {
		sort.Strings(values)
	}
	return strings.Join(values, ", ")
}
