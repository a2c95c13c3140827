package handlers

import (
	"context"
	"runonsave/pkg/logger"

	"github.com/gin-gonic/gin"
)

type SaveHandler struct {
	saves    SaveService
	docs     DocumentResolver
	settings SettingsService
	status   StatusSource
	logger   *logger.Logger
}

func NewSaveHandler(saves SaveService, docs DocumentResolver, settings SettingsService, status StatusSource, log *logger.Logger) *SaveHandler {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &SaveHandler{
		saves:    saves,
		docs:     docs,
		settings: settings,
		status:   status,
		logger:   log,
	}
}

// Save is called by editor plugins after a document has been written
func (h *SaveHandler) Save(c *gin.Context) {
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Debug("Failed to bind save request")
		c.JSON(400, ErrorResponse{Error: "Invalid request payload"})
		return
	}

	doc, err := h.docs.Document(req.Path)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to resolve document")
		c.JSON(400, ErrorResponse{Error: "Invalid document path"})
		return
	}

	// The run outlives the request
	h.saves.HandleSave(context.WithoutCancel(c.Request.Context()), doc)
	c.JSON(202, SaveResponse{Key: doc.Key})
}

func (h *SaveHandler) Status(c *gin.Context) {
	messages := h.status.Messages()
	runs := h.saves.Snapshot()
	c.JSON(200, StatusResponse{
		Enabled:  h.settings.Enabled(c.Request.Context()),
		Messages: messages,
		Runs:     runs,
	})
}
