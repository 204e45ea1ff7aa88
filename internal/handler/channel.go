package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/alert-relay/backend/internal/model"
	"github.com/alert-relay/backend/internal/service"
	"github.com/gin-gonic/gin"
)

// channelService - 서비스 인터페이스
type channelService interface {
	ListMaskedChannels(ctx context.Context) ([]model.ChannelConfig, error)
	TestChannel(ctx context.Context, name string) (model.ConnectionResult, error)
	SaveChannel(ctx context.Context, cfg model.ChannelConfig) (int, error)
	DeleteChannel(ctx context.Context, name string) error
}

// ChannelHandler - 알림 채널 설정 관련 핸들러
type ChannelHandler struct {
	svc channelService
}

func NewChannelHandler(svc channelService) *ChannelHandler {
	return &ChannelHandler{svc: svc}
}

// ListChannels godoc
// @Summary List notification channels (secrets masked)
// @Tags channels
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.ChannelListResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/channels [get]
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	channels, err := h.svc.ListMaskedChannels(c.Request.Context())
	if err != nil && len(channels) == 0 {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Status: "error", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.ChannelListResponse{Status: "success", Data: channels})
}

// TestChannel godoc
// @Summary Test connectivity of one channel
// @Tags channels
// @Produce json
// @Security BearerAuth
// @Param name path string true "Channel name"
// @Success 200 {object} model.ChannelTestResponse
// @Failure 404,500 {object} model.ErrorResponse
// @Router /api/v1/channels/{name}/test [post]
func (h *ChannelHandler) TestChannel(c *gin.Context) {
	name := c.Param("name")
	result, err := h.svc.TestChannel(c.Request.Context(), name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrChannelNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, model.ErrorResponse{Status: "error", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.ChannelTestResponse{Status: "success", Channel: name, Result: result})
}

// SaveChannel godoc
// @Summary Create or replace a stored channel
// @Tags channels
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param name path string true "Channel name"
// @Param request body model.ChannelConfig true "Channel config"
// @Success 200 {object} model.ChannelMutationResponse
// @Failure 400,503,500 {object} model.ErrorResponse
// @Router /api/v1/channels/{name} [put]
func (h *ChannelHandler) SaveChannel(c *gin.Context) {
	var req model.ChannelConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Status: "error", Message: "invalid request body"})
		return
	}
	req.Name = c.Param("name")

	id, err := h.svc.SaveChannel(c.Request.Context(), req)
	if err != nil {
		c.JSON(mutationStatus(err), model.ErrorResponse{Status: "error", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.ChannelMutationResponse{Status: "success", ID: id, Name: req.Name})
}

// DeleteChannel godoc
// @Summary Delete a stored channel
// @Tags channels
// @Produce json
// @Security BearerAuth
// @Param name path string true "Channel name"
// @Success 200 {object} model.ChannelMutationResponse
// @Failure 404,503,500 {object} model.ErrorResponse
// @Router /api/v1/channels/{name} [delete]
func (h *ChannelHandler) DeleteChannel(c *gin.Context) {
	name := c.Param("name")
	if err := h.svc.DeleteChannel(c.Request.Context(), name); err != nil {
		c.JSON(mutationStatus(err), model.ErrorResponse{Status: "error", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.ChannelMutationResponse{Status: "success", Name: name})
}

func mutationStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidChannel):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoChannelStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrChannelNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
