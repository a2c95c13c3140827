package routes

import (
	"runonsave/internal/handlers"

	"github.com/gin-gonic/gin"
)

func InitRouter(saveHandler *handlers.SaveHandler, settingsHandler *handlers.SettingsHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		InitCommandRoutes(api, settingsHandler)
		InitSaveRoutes(api, saveHandler)
	}

	return router
}

// InitCommandRoutes exposes the enable/disable commands
func InitCommandRoutes(router *gin.RouterGroup, h *handlers.SettingsHandler) {
	commands := router.Group("/commands")
	{
		commands.POST("/enable", h.Enable)
		commands.POST("/disable", h.Disable)
	}
	router.GET("/settings", h.GetSettings)
}

func InitSaveRoutes(router *gin.RouterGroup, h *handlers.SaveHandler) {
	router.POST("/save", h.Save)
	router.GET("/status", h.Status)
}
