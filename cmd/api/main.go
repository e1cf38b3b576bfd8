package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/autograder"
	"github.com/noah-isme/gema-autograder/internal/complexity"
	"github.com/noah-isme/gema-autograder/internal/config"
	"github.com/noah-isme/gema-autograder/internal/database"
	"github.com/noah-isme/gema-autograder/internal/handler"
	"github.com/noah-isme/gema-autograder/internal/middleware"
	"github.com/noah-isme/gema-autograder/internal/prompt"
	"github.com/noah-isme/gema-autograder/internal/report"
	"github.com/noah-isme/gema-autograder/internal/repository"
	"github.com/noah-isme/gema-autograder/internal/router"
	"github.com/noah-isme/gema-autograder/internal/sandbox"
	"github.com/noah-isme/gema-autograder/internal/service"
	"github.com/noah-isme/gema-autograder/pkg/ai"
	cloud "github.com/noah-isme/gema-autograder/pkg/cloudinary"
	dockerexec "github.com/noah-isme/gema-autograder/pkg/docker"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	sinks := []report.Sink{report.NewLogSink(logger)}

	var (
		redisClient *redis.Client
		queue       *prompt.QueuePrompter
		prompter    autograder.Prompter
		promptQueue service.PromptQueue
	)
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()

		queue = prompt.NewQueuePrompter(redisClient, prompt.QueueConfig{
			Prefix:  cfg.PromptPrefix,
			Timeout: cfg.PromptTimeout,
		}, logger)
		prompter = queue
		promptQueue = queue
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		logger.Warn().Msg("redis not configured, scripts without a song list are graded without grader input")
	}

	if cfg.NATSURL != "" {
		natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()

		sinks = append(sinks, report.NewNATSSink(natsConn, cfg.ReportSubject))
	}

	if cfg.CloudinaryEnabled() {
		archive, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		sinks = append(sinks, report.NewArchiveSink(archive, logger))
	}

	executor, err := dockerexec.NewDockerExecutor(dockerexec.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create docker executor")
	}
	defer executor.Close()

	runner := sandbox.New(executor, sandbox.Config{
		ExecutionTimeout: cfg.ExecutionTimeout,
		MemoryLimitMB:    cfg.CodeRunMemoryMB,
		CPUShares:        cfg.CodeRunCPUShares,
		WorkspaceRoot:    cfg.WorkspaceRoot,
		Runtimes:         sandbox.DefaultRuntimes(cfg.PythonImage, cfg.JavaScriptImage),
	}, logger)

	var feedback ai.FeedbackWriter
	if cfg.AIEnabled() {
		writer, err := ai.NewOpenAIFeedbackWriter(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.AIModel,
			Logger: logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create ai feedback writer")
		}
		feedback = writer
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	gradingService := service.NewGradingService(repository.NewEvaluationRepository(db), service.GradingDependencies{
		Sandbox:  runner,
		Meter:    complexity.NewAnalyzer(logger, nil),
		Prompter: prompter,
		Sinks:    sinks,
		Feedback: feedback,
	}, validate, logger)
	promptService := service.NewPromptService(promptQueue, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    1 << 20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.AllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(gradingService, logger),
		PromptHandler:     handler.NewPromptHandler(promptService, logger),
		HealthProbes:      probes,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		GradeRateLimit:    middleware.EvaluationRateLimit(cfg.EvaluationRateLimit, cfg.EvaluationRateWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
