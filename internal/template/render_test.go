package template

import (
	"testing"
	"time"

	"github.com/alert-relay/backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	ts := time.Date(2024, 1, 1, 8, 15, 0, 0, time.UTC)
	data := SummaryData{Agent: "WS-01", Threat: "<Mimikatz>", Timestamp: ts, File: "events/2024-01-01.jsonl", Count: 2}

	tests := []struct {
		name   string
		body   string
		escape Escaper
		want   string
	}{
		{
			name: "all-placeholders",
			body: "{{agent}}|{{threat}}|{{timestamp}}|{{file}}|{{count}}",
			want: "WS-01|<Mimikatz>|2024-01-01 08:15:00|events/2024-01-01.jsonl|2",
		},
		{
			name: "unknown-placeholder-left-verbatim",
			body: "{{agent}} {{severity}} {{ agent }}",
			want: "WS-01 {{severity}} {{ agent }}",
		},
		{
			name: "repeated-placeholder",
			body: "{{agent}}/{{agent}}",
			want: "WS-01/WS-01",
		},
		{
			name:   "html-escaped-values-only",
			body:   "<b>{{threat}}</b>",
			escape: HTMLEscaper,
			want:   "<b>&lt;Mimikatz&gt;</b>",
		},
		{
			name: "no-placeholders",
			body: "static text",
			want: "static text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.body, data, tt.escape))
		})
	}
}

func TestSummaryFromEvents(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []model.Event{
		model.NewEvent(map[string]any{
			"threatInfo":        map[string]any{"threatName": "B"},
			"agentRealtimeInfo": map[string]any{"agentComputerName": "WS-02"},
		}, at),
		model.NewEvent(map[string]any{
			"threatInfo":        map[string]any{"threatName": "A"},
			"agentRealtimeInfo": map[string]any{"agentComputerName": "WS-02"},
		}, at.Add(time.Minute)),
	}

	got := SummaryFromEvents(events, "f.jsonl")
	assert.Equal(t, "WS-02", got.Agent)
	assert.Equal(t, "A, B", got.Threat)
	assert.Equal(t, at, got.Timestamp)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, "f.jsonl", got.File)
}

func TestSummaryFromNoEventsUsesDefaults(t *testing.T) {
	got := SummaryFromEvents(nil, "")
	assert.Equal(t, model.DefaultAgentName, got.Agent)
	assert.Equal(t, model.DefaultThreatName, got.Threat)
	assert.Equal(t, "", Render("{{timestamp}}", got, nil))
}

func TestRenderForChannelUsesDefaultTemplate(t *testing.T) {
	data := SummaryData{Agent: "A&B", Threat: "T"}

	tg := RenderForChannel(model.ChannelConfig{Kind: model.ChannelTelegram}, data)
	assert.Contains(t, tg, "<b>Agent:</b> A&amp;B")

	wa := RenderForChannel(model.ChannelConfig{Kind: model.ChannelWhatsApp}, data)
	assert.Contains(t, wa, "*Agent:* A&B")

	custom := RenderForChannel(model.ChannelConfig{Kind: model.ChannelTeams, Template: "{{threat}}!"}, data)
	assert.Equal(t, "T!", custom)
}
