package handler

import (
	"net/http"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler містить посилання на ChatHub
type Handler struct {
	Hub    *chathub.ManagerService
	Tokens *TokenIssuer

	requireToken   bool
	sendBuffer     int
	maxMessageSize int64
	allowedOrigins map[string]struct{}
	log            *zap.Logger
}

func NewHandler(hub *chathub.ManagerService, tokens *TokenIssuer, cfg config.Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = struct{}{}
	}
	return &Handler{
		Hub:            hub,
		Tokens:         tokens,
		requireToken:   cfg.RequireToken,
		sendBuffer:     cfg.ClientSendBuffer,
		maxMessageSize: cfg.MaxMessageBytes,
		allowedOrigins: origins,
		log:            log,
	}
}

// Router builds the gin engine with every route. gatherer may be nil, in
// which case /metrics is not mounted.
func (h *Handler) Router(gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(logger.Gin(h.log))

	r.GET("/anonid", h.GetAnonID)  // Отримання JWT для AnonID
	r.GET("/ws", h.ServeWebSocket) // WebSocket Upgrade
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats reports queue depths and connection counts.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.Hub.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "hub unavailable"})
		return
	}
	c.JSON(http.StatusOK, st)
}
