package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers - 라우터에 등록할 핸들러 모음
// Archive / Channels / Auth가 nil이면 해당 API는 등록하지 않는다
type Handlers struct {
	Alert    *AlertHandler
	Archive  *ArchiveHandler
	Channels *ChannelHandler
	Auth     tokenParser
}

// NewRouter - gin 엔진 생성 및 라우트 등록
func NewRouter(h Handlers, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(Recovery(log), RequestLogger(log))

	router.GET("/ping", Ping)
	router.GET("/", Root)
	router.GET("/openapi.json", OpenAPIDoc)

	if h.Alert != nil {
		router.POST("/alerts", h.Alert.Receive)
		router.POST("/send/alert", h.Alert.Receive)
	}

	api := router.Group("/api/v1")
	if h.Auth != nil {
		api.Use(AuthMiddleware(h.Auth))
	}
	if h.Archive != nil {
		api.GET("/archive/:date", h.Archive.GetArchive)
	}
	if h.Channels != nil {
		api.GET("/channels", h.Channels.ListChannels)
		api.POST("/channels/:name/test", h.Channels.TestChannel)
		api.PUT("/channels/:name", h.Channels.SaveChannel)
		api.DELETE("/channels/:name", h.Channels.DeleteChannel)
	}

	return router
}
