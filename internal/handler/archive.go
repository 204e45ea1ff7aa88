package handler

import (
	"net/http"
	"time"

	"github.com/alert-relay/backend/internal/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// archiveReader - archive 조회 인터페이스
type archiveReader interface {
	ReadForDate(date string) ([]model.Event, error)
}

// ArchiveHandler - 날짜별 archive 조회
type ArchiveHandler struct {
	store archiveReader
	log   *zap.Logger
}

func NewArchiveHandler(store archiveReader, log *zap.Logger) *ArchiveHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ArchiveHandler{store: store, log: log.Named("archive-api")}
}

// GetArchive godoc
// @Summary Read one day of archived events
// @Tags archive
// @Produce json
// @Security BearerAuth
// @Param date path string true "UTC date (YYYY-MM-DD)"
// @Success 200 {object} model.ArchiveReadResponse
// @Failure 400,401,500 {object} model.ErrorResponse
// @Router /api/v1/archive/{date} [get]
func (h *ArchiveHandler) GetArchive(c *gin.Context) {
	date := c.Param("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Status: "error", Message: "date must be YYYY-MM-DD"})
		return
	}

	events, err := h.store.ReadForDate(date)
	if err != nil {
		h.log.Error("failed to read archive", zap.String("date", date), zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Status: "error", Message: "failed to read archive"})
		return
	}

	c.JSON(http.StatusOK, model.ArchiveReadResponse{
		Status: "success",
		Date:   date,
		Count:  len(events),
		Data:   events,
	})
}
