package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/VeloBillHQ/VeloBill/app/controllers"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/cache"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/database"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/env"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/manager"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/router"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/s3storage"
)

func main() {
	app := NewApplication()

	mgr := manager.GetManager()
	mgr.Start()

	// Graceful shutdown: stop intake and drain background work before
	// the HTTP listener goes away.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("[Main] Shutdown signal received")
		mgr.Stop()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Errorf("[Main] Server stopped: %v", err)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		BodyLimit: 4 << 20, // webhook payloads and logo uploads stay small
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	setupStorage()

	router.InstallRouter(app)

	return app
}

// setupStorage wires the optional logo object storage. A disabled or
// unreachable bucket only turns the upload endpoint off.
func setupStorage() {
	cfg, err := s3storage.LoadConfig()
	if err != nil {
		log.Warnf("[Main] S3 storage misconfigured, logo upload disabled: %v", err)
		return
	}
	if !cfg.IsEnabled() {
		log.Info("[Main] S3 storage disabled")
		return
	}
	client, err := s3storage.NewClient(cfg)
	if err != nil {
		log.Warnf("[Main] S3 storage unavailable, logo upload disabled: %v", err)
		return
	}
	controllers.SetStorageClient(client)
}
