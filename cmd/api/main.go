package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classdesk-api/internal/config"
	"github.com/noah-isme/classdesk-api/internal/database"
	"github.com/noah-isme/classdesk-api/internal/handler"
	"github.com/noah-isme/classdesk-api/internal/middleware"
	"github.com/noah-isme/classdesk-api/internal/models"
	"github.com/noah-isme/classdesk-api/internal/repository"
	"github.com/noah-isme/classdesk-api/internal/router"
	"github.com/noah-isme/classdesk-api/internal/service"
	cloud "github.com/noah-isme/classdesk-api/pkg/cloudinary"
	mail "github.com/noah-isme/classdesk-api/pkg/sendgrid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.ClassMember{},
		&models.Assignment{},
		&models.Submission{},
		&models.ActivityLog{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	storage, err := cloud.New(cloud.Config{
		CloudName:  cfg.CloudinaryCloudName,
		APIKey:     cfg.CloudinaryAPIKey,
		APISecret:  cfg.CloudinaryAPISecret,
		RootFolder: cfg.CloudinaryRootFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	mailer, err := mail.New(mail.Config{
		APIKey:    cfg.SendgridAPIKey,
		FromName:  cfg.SendgridFromName,
		FromEmail: cfg.SendgridFromEmail,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create sendgrid client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	userRepo := repository.NewUserRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	events := service.NewNATSPublisher(natsConn, cfg.EventSubjectPrefix, logger)
	activityService := service.NewActivityService(activityRepo, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, membershipRepo, validate, storage, activityService, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, membershipRepo, userRepo, validate, storage, events, activityService, logger)
	deliveryLock := service.NewRedisDeliveryLock(redisClient, "classdesk:delivery:lock", cfg.DeliveryLockTTL)
	deliveryService := service.NewDeliveryService(
		assignmentRepo,
		submissionRepo,
		membershipRepo,
		userRepo,
		submissionService,
		mailer,
		deliveryLock,
		events,
		activityService,
		cfg.PublicBaseURL,
		cfg.DeliveryMaxAttachmentMB,
		logger,
	)

	assignmentHandler := handler.NewAssignmentHandler(assignmentService, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, logger)
	deliveryHandler := handler.NewDeliveryHandler(deliveryService, logger)
	activityHandler := handler.NewActivityHandler(activityService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    64 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler: assignmentHandler,
		SubmissionHandler: submissionHandler,
		DeliveryHandler:   deliveryHandler,
		ActivityHandler:   activityHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
