package testtool

import (
	"social_chat_service/pkg/config"
	"social_chat_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/pprof"
)

// MountPprof 掛載 /debug/pprof 到 fiber app, production 不開啟
//
//	curl http://localhost:8080/debug/pprof/
//	go tool pprof http://localhost:8080/debug/pprof/profile?seconds=30
func MountPprof(app *fiber.App, enabled bool) bool {
	if !enabled || config.IsProduction() {
		logger.Log.Info("pprof is disabled")
		return false
	}

	logger.Log.Info("pprof mounted on /debug/pprof")
	app.Use(pprof.New())
	return true
}
