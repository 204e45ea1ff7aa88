package model

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AlertWebhookResponse - POST /alerts 성공 응답
type AlertWebhookResponse struct {
	Status    string `json:"status"`
	File      string `json:"file"`
	Delivered bool   `json:"delivered"`
	ReportID  string `json:"reportId,omitempty"`
}
