package handlers

import (
	"runonsave/pkg/logger"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settings SettingsService
	logger   *logger.Logger
}

func NewSettingsHandler(settings SettingsService, log *logger.Logger) *SettingsHandler {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &SettingsHandler{settings: settings, logger: log}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(200, SettingsResponse{Enabled: h.settings.Enabled(c.Request.Context())})
}

func (h *SettingsHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *SettingsHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *SettingsHandler) setEnabled(c *gin.Context, v bool) {
	if err := h.settings.SetEnabled(c.Request.Context(), v); err != nil {
		h.logger.WithError(err).Error("Failed to update enabled flag")
		c.JSON(500, ErrorResponse{Error: "Failed to update settings"})
		return
	}
	h.logger.WithFields(logger.Fields{"enabled": v}).Info("Run on save toggled")
	c.JSON(200, SettingsResponse{Enabled: v})
}
