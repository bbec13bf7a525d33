package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"studydrive/internal/adapter"
	"studydrive/internal/adapter/browser"
	"studydrive/internal/cache"
	"studydrive/internal/config"
	"studydrive/internal/domain"
	"studydrive/internal/handler"
	"studydrive/internal/intercept"
	"studydrive/internal/logger"
	"studydrive/internal/middleware"
	"studydrive/internal/service"
	"studydrive/internal/session"
	"studydrive/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// requestLogger is a middleware that logs HTTP requests
func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		path := c.Path()
		method := c.Method()

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()

		logger.Get().Info("HTTP Request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("ip", c.IP()),
		)

		return err
	}
}

// logNotifier surfaces session notifications in the structured log, the
// agent's stand-in for an on-page toast.
type logNotifier struct{}

func (logNotifier) Notify(level domain.NotifyLevel, message string) {
	switch level {
	case domain.NotifyError:
		logger.Get().Error("Session notification", zap.String("message", message))
	default:
		logger.Get().Info("Session notification",
			zap.String("level", string(level)),
			zap.String("message", message),
		)
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Initialize(cfg.Logger); err != nil {
		panic(err)
	}
	appLogger := logger.Get()
	defer logger.Sync()

	// Pick the snapshot backend.
	var snapshotRepo domain.SnapshotRepository
	switch cfg.Storage.Backend {
	case "redis":
		redisClient, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		appLogger.Info("Successfully connected to Redis")
		snapshotRepo = adapter.NewRedisSnapshotRepository(redisClient)
	default:
		snapshotRepo = adapter.NewFileSnapshotRepository(cfg.Storage.Path)
		appLogger.Info("Using file snapshot backend", zap.String("path", cfg.Storage.Path))
	}

	answerStore := store.New(snapshotRepo)
	if err := answerStore.Init(context.Background()); err != nil {
		appLogger.Fatal("Failed to load answer bank", zap.Error(err))
	}

	observer := intercept.NewObserver(0)

	// Connect the browser and open the start page with interception armed.
	driver := browser.NewDriver(cfg.Browser)
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if err := driver.Start(rootCtx); err != nil {
		appLogger.Fatal("Failed to start browser", zap.Error(err))
	}
	defer driver.Close()

	page, err := driver.OpenPage(rootCtx, cfg.Browser.StartURL, observer)
	if err != nil {
		appLogger.Fatal("Failed to open start page", zap.Error(err))
	}

	orchestrator := session.New(cfg.Automation, answerStore, page, observer.Events(), logNotifier{})

	// Initialize services and handlers
	bankService := service.NewBankService(answerStore)
	automationService := service.NewAutomationService(orchestrator)
	bankHandler := handler.NewBankHandler(bankService)
	automationHandler := handler.NewAutomationHandler(automationService)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: middleware.ErrorHandler(),
	})

	app.Use(requestLogger())
	app.Use(cors.New(cors.Config{AllowOrigins: "*", AllowMethods: "GET,POST,PUT,DELETE,OPTIONS", AllowHeaders: "Origin,Content-Type,Accept", MaxAge: 300}))
	app.Use(recover.New())

	apiGroup := app.Group("/api")

	automationGroup := apiGroup.Group("/automation")
	automationGroup.Post("/start", automationHandler.Start)
	automationGroup.Post("/stop", automationHandler.Stop)
	automationGroup.Get("/status", automationHandler.Status)

	validationMw := middleware.NewValidationMiddleware()

	filesGroup := apiGroup.Group("/files")
	filesGroup.Get("/", bankHandler.ListFiles)
	filesGroup.Delete("/", bankHandler.ClearAll)
	filesGroup.Get("/:fileName", validationMw.ValidateFileName(), bankHandler.GetFile)
	filesGroup.Delete("/:fileName", validationMw.ValidateFileName(), bankHandler.ClearFile)
	filesGroup.Get("/:fileName/answers", validationMw.ValidateFileName(), bankHandler.GetAnswers)
	filesGroup.Get("/:fileName/export", validationMw.ValidateFileName(), bankHandler.ExportAnswers)
	filesGroup.Post("/:fileName/questions", validationMw.ValidateFileName(), bankHandler.ProcessQuestions)
	filesGroup.Put("/:fileName/answers", validationMw.ValidateFileName(), bankHandler.UpdateAnswers)

	group, groupCtx := errgroup.WithContext(rootCtx)

	group.Go(func() error {
		return orchestrator.Run(groupCtx)
	})

	group.Go(func() error {
		appLogger.Info("Starting control API", zap.Int("port", cfg.Server.Port))
		return app.Listen(":" + strconv.Itoa(cfg.Server.Port))
	})

	// If a previous run left the run switch set, pick up where it stopped
	// once the page has settled.
	group.Go(func() error {
		select {
		case <-time.After(cfg.Browser.SettleDelay):
		case <-groupCtx.Done():
			return nil
		}
		if err := orchestrator.Resume(groupCtx); err != nil {
			appLogger.Error("Failed to resume automation", zap.Error(err))
		}
		return nil
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-groupCtx.Done():
	}
	appLogger.Info("Shutting down...")

	// The run switch stays persisted so the next start can resume; only
	// the process-local work is torn down.
	rootCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := group.Wait(); err != nil && err != context.Canceled {
		appLogger.Error("Shutdown finished with error", zap.Error(err))
	}
	appLogger.Info("Agent exited gracefully")
}
