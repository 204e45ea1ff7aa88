// 모니터링 플랫폼에서 들어오는 알림 이벤트 정의
// poll / webhook 두 경로 모두 이 Event로 변환한 뒤 archive, dispatch 레이어로 전달

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	DefaultThreatName = "N/A"
	DefaultAgentName  = "Unknown"
)

// AlertShape - 알려진 알림 페이로드 형태 (tagged union)
// ThreatAlert, RuleAlert, GenericAlert 중 하나
type AlertShape interface {
	Kind() string
	threatName() string
}

// ThreatAlert - threatInfo 블록을 가진 위협 탐지 알림
type ThreatAlert struct {
	ThreatName     string
	Classification string
	FilePath       string
}

func (ThreatAlert) Kind() string         { return "threat" }
func (a ThreatAlert) threatName() string { return a.ThreatName }

// RuleAlert - ruleInfo 블록을 가진 cloud-detection 알림
type RuleAlert struct {
	RuleName string
	Severity string
}

func (RuleAlert) Kind() string         { return "rule" }
func (a RuleAlert) threatName() string { return a.RuleName }

// GenericAlert - 알 수 없는 형태, 최상위 threat 필드만 참조
type GenericAlert struct {
	Threat string
}

func (GenericAlert) Kind() string         { return "generic" }
func (a GenericAlert) threatName() string { return a.Threat }

// Event - 수신한 알림 1건
// Raw는 원본 그대로 보관하며 수정하지 않음
type Event struct {
	Raw        map[string]any
	ReceivedAt time.Time
	Shape      AlertShape
	agentName  string
}

// NewEvent - 원본 payload를 분류해서 Event 생성
func NewEvent(raw map[string]any, receivedAt time.Time) Event {
	if raw == nil {
		raw = map[string]any{}
	}
	return Event{
		Raw:        raw,
		ReceivedAt: receivedAt.UTC(),
		Shape:      classify(raw),
		agentName:  lookupAgent(raw),
	}
}

// ParseEvent - JSON 바이트를 Event로 변환 (JSON object만 허용)
func ParseEvent(body []byte, receivedAt time.Time) (Event, error) {
	var raw map[string]any
	if err := DecodeJSON(body, &raw); err != nil {
		return Event{}, fmt.Errorf("failed to parse event: %w", err)
	}
	if raw == nil {
		return Event{}, fmt.Errorf("failed to parse event: body is not a JSON object")
	}
	return NewEvent(raw, receivedAt), nil
}

// DecodeJSON - json.Unmarshal과 같지만 숫자는 json.Number로 보관
// float64 변환 시 2^53 초과 정수(ID 등)가 바뀌므로 원본 payload는 항상 이걸로 decode
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid character after top-level value")
	}
	return nil
}

// ThreatName - 위협 이름, 없으면 "N/A"
func (e Event) ThreatName() string {
	if e.Shape != nil {
		if name := e.Shape.threatName(); name != "" {
			return name
		}
	}
	if name := stringAt(e.Raw, "threat"); name != "" {
		return name
	}
	return DefaultThreatName
}

// AgentName - 탐지한 에이전트 호스트명, 없으면 "Unknown"
func (e Event) AgentName() string {
	if e.agentName != "" {
		return e.agentName
	}
	return DefaultAgentName
}

// MarshalJSON - 원본 payload 그대로 직렬화
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Raw)
}

func classify(raw map[string]any) AlertShape {
	if info, ok := raw["threatInfo"].(map[string]any); ok {
		return ThreatAlert{
			ThreatName:     stringAt(info, "threatName"),
			Classification: stringAt(info, "classification"),
			FilePath:       stringAt(info, "filePath"),
		}
	}
	if info, ok := raw["ruleInfo"].(map[string]any); ok {
		return RuleAlert{
			RuleName: stringAt(info, "name"),
			Severity: stringAt(info, "severity"),
		}
	}
	return GenericAlert{Threat: stringAt(raw, "threat")}
}

// agentRealtimeInfo -> agentDetectionInfo 순서로 조회
func lookupAgent(raw map[string]any) string {
	lookups := [][2]string{
		{"agentRealtimeInfo", "agentComputerName"},
		{"agentDetectionInfo", "agentComputerName"},
		{"agentDetectionInfo", "name"},
		{"agentRealtimeInfo", "name"},
	}
	for _, l := range lookups {
		if info, ok := raw[l[0]].(map[string]any); ok {
			if v := stringAt(info, l[1]); v != "" {
				return v
			}
		}
	}
	return ""
}

func stringAt(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
