// 모니터링 플랫폼 webhook 요청을 처리하는 핸들러
//
// 요청 흐름:
//  1. 플랫폼이 POST /alerts (구 경로 POST /send/alert)로 이벤트 1건 전송
//  2. body가 JSON object가 아니면 400, archive에는 아무것도 쓰지 않는다
//  3. service 레이어에서 archive → 채널 전송
//  4. 전송 결과와 상관없이 archive 결과를 응답

package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alert-relay/backend/internal/model"
	"github.com/alert-relay/backend/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxAlertBodyBytes = 4 << 20

// alertIngester - 서비스 인터페이스
type alertIngester interface {
	Ingest(ctx context.Context, events []model.Event) (service.IngestResult, error)
}

// Alert 핸들러 구조체 정의
type AlertHandler struct {
	svc alertIngester
	log *zap.Logger
	now func() time.Time
}

// Alert 핸들러 객체 생성
func NewAlertHandler(svc alertIngester, log *zap.Logger) *AlertHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AlertHandler{svc: svc, log: log.Named("webhook"), now: time.Now}
}

// Receive godoc
// @Summary Receive one alert event
// @Description Archives the event, then notifies every configured channel.
// @Tags alerts
// @Accept json
// @Produce json
// @Param event body object true "Alert event (any JSON object)"
// @Success 200 {object} model.AlertWebhookResponse
// @Failure 400,500 {object} model.ErrorResponse
// @Router /alerts [post]
func (h *AlertHandler) Receive(c *gin.Context) {
	receivedAt := h.now()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAlertBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		h.log.Warn("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Status: "error", Message: "invalid json"})
		return
	}

	event, err := model.ParseEvent(body, receivedAt)
	if err != nil {
		h.log.Warn("rejected webhook body", zap.Int("bytes", len(body)), zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Status: "error", Message: "invalid json"})
		return
	}

	h.log.Info("received alert webhook",
		zap.String("shape", event.Shape.Kind()),
		zap.String("threat", event.ThreatName()),
		zap.String("agent", event.AgentName()),
	)

	// 호출자가 연결을 끊어도 전송은 끝까지 진행
	result, err := h.svc.Ingest(context.WithoutCancel(c.Request.Context()), []model.Event{event})
	if err != nil {
		if errors.Is(err, service.ErrArchiveWrite) {
			c.JSON(http.StatusInternalServerError, model.ErrorResponse{Status: "error", Message: "archive write failed"})
			return
		}
		h.log.Error("failed to ingest webhook event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Status: "error", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.AlertWebhookResponse{
		Status:    "ok",
		File:      result.File,
		Delivered: result.Report.Success,
		ReportID:  result.Report.ID,
	})
}
