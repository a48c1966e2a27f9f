package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/codebuildervaibhav/diarization-studio/internal/acquire"
	"github.com/codebuildervaibhav/diarization-studio/internal/cleanup"
	"github.com/codebuildervaibhav/diarization-studio/internal/config"
	"github.com/codebuildervaibhav/diarization-studio/internal/engine"
	"github.com/codebuildervaibhav/diarization-studio/internal/export"
	"github.com/codebuildervaibhav/diarization-studio/internal/handlers"
	"github.com/codebuildervaibhav/diarization-studio/internal/projectlock"
	"github.com/codebuildervaibhav/diarization-studio/internal/queue"
	"github.com/codebuildervaibhav/diarization-studio/internal/storage"
	"github.com/codebuildervaibhav/diarization-studio/internal/transcription"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Custom logger setup
	logBuffer := &LogBuffer{
		lines: make([]string, 0, 1000),
	}
	log.SetOutput(io.MultiWriter(os.Stdout, logBuffer))

	// Ensure directories exist
	for _, dir := range []string{cfg.Storage.TempDir, cfg.Storage.DataDir} {
		if err := cleanup.EnsureDirExists(dir); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	log.Println("Initializing components...")

	// Stores
	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	audioStore := storage.NewAudioStore(cfg.Storage.DataDir)
	locks := projectlock.NewRegistry(cfg.LockWait())

	// Production pipeline: acquisition, ffmpeg, diarizer
	pipeline := transcription.NewPipeline(
		acquire.NewFetcher(cfg.Acquire.YtdlpPath),
		transcription.NewFFmpeg(cfg.Acquire.FFmpegPath),
		transcription.NewCommandDiarizer(cfg.Diarization.Command, cfg.Diarization.Args, cfg.Diarization.HFToken),
		cfg.Diarization.MinSegmentSeconds,
		cfg.Diarization.SplitConcurrency,
	)

	// Worker pool
	workerPool := queue.NewWorkerPool(
		cfg.Workers.Count,
		cfg.Workers.QueueSize,
		pipeline,
		db,
		audioStore,
		locks,
		cfg.Storage.TempDir,
	)
	if n, err := workerPool.RecoverInterrupted(context.Background()); err != nil {
		log.Fatalf("Failed to recover interrupted jobs: %v", err)
	} else if n > 0 {
		log.Printf("Marked %d interrupted job(s) as failed", n)
	}
	workerPool.Start()

	// Google Drive client (optional - may fail if credentials not set up)
	var publisher export.Publisher
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err == nil {
		driveClient, err := storage.NewDriveClient(
			context.Background(),
			cfg.GoogleDrive.CredentialsFile,
			cfg.GoogleDrive.TokenFile,
			cfg.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Printf("WARNING: Google Drive not available: %v", err)
			log.Println("Exports will only be served over HTTP")
		} else {
			publisher = driveClient
			log.Println("Google Drive integration enabled")
		}
	} else {
		log.Println("Google Drive credentials not found - Drive export disabled")
	}

	var titles handlers.TitleResolver
	if cfg.Acquire.ResolveTitles {
		titles = acquire.NewPageTitleResolver(15 * time.Second)
		log.Println("Page title lookup enabled")
	}

	var transcriber handlers.Transcriber
	if cfg.Whisper.Enabled {
		transcriber = transcription.NewWhisperTranscriber(cfg.Whisper.Model, cfg.Whisper.Language, cfg.Storage.TempDir)
	}

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		cfg.Storage.TempDir,
		cfg.Cleanup.IntervalMinutes,
		cfg.Cleanup.MaxAgeHours,
		cleanup.NewReconciler(db, audioStore, locks),
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Limits.MaxFileSizeMB * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	eng := engine.New(db, audioStore, locks)
	routes := &handlers.Handlers{
		Diarization: handlers.NewDiarizationHandler(workerPool, titles, cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB),
		Projects:    handlers.NewProjectHandler(eng),
		Segments:    handlers.NewSegmentHandler(eng, transcriber, cfg.Storage.TempDir),
		Export:      handlers.NewExportHandler(export.NewService(db, audioStore, locks, publisher)),
		Stream:      handlers.NewStreamHandler(workerPool, cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB, cfg.PollInterval()),
	}

	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
			"whisper": cfg.Whisper.Enabled,
			"gdrive":  publisher != nil,
		})
	})

	// Get server logs
	app.Get("/api/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	routes.Register(app)

	// Start server
	addr := cfg.Addr()
	log.Printf("Server starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("   POST /api/diarization/start|upload|local|gdrive - Start a diarization job")
	log.Println("   GET  /api/diarization/:jobId/status             - Poll a job")
	log.Println("   POST /api/diarization/:projectId/retry          - Re-run a project")
	log.Println("   GET  /api/projects[/:id[/speakers|/trash]]      - Browse projects")
	log.Println("   *    /api/projects/:id/speakers|segments/...    - Edit speakers and segments")
	log.Println("   GET  /api/audio/:projectId/:speakerId/:filename - Segment audio")
	log.Println("   GET  /api/export/:id/json|transcript|audio      - Exports")
	log.Println("   GET  /ws/stream                                 - WebSocket audio streaming")
	log.Println("   GET  /api/logs                                  - View server logs")
	log.Println("   GET  /api/health                                - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	// In-flight jobs are recorded as interrupted.
	workerPool.Stop()
}

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	// Append new line
	lb.lines = append(lb.lines, string(p))

	// Keep last 1000 lines
	if len(lb.lines) > 1000 {
		lb.lines = lb.lines[len(lb.lines)-1000:]
	}

	return len(p), nil
}

// GetLogs returns a copy of the buffered lines, oldest first.
func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}
