package model

import (
	"encoding/json"
	"time"
)

// ArchiveRecord - archive 파일 1줄
type ArchiveRecord struct {
	ReceivedAt time.Time       `json:"receivedAt"`
	Event      json.RawMessage `json:"event"`
}

// ArchiveReadResponse - GET /api/v1/archive/:date 응답
type ArchiveReadResponse struct {
	Status string  `json:"status"`
	Date   string  `json:"date"`
	Count  int     `json:"count"`
	Data   []Event `json:"data" swaggertype:"array,object"`
}

// MonitorAlertsResponse - 모니터링 플랫폼 GET /alerts 응답
type MonitorAlertsResponse struct {
	Data       []map[string]any `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

type Pagination struct {
	TotalItems int    `json:"totalItems"`
	NextCursor string `json:"nextCursor,omitempty"`
}
