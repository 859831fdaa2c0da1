package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"safetrain_backend/internal/config"
	"safetrain_backend/internal/controller"
	"safetrain_backend/internal/repository"
	"safetrain_backend/internal/service"
	"safetrain_backend/pkg/configwatcher"
	"safetrain_backend/pkg/database"
	"safetrain_backend/pkg/logger"
	"safetrain_backend/pkg/monitoring"
	"safetrain_backend/pkg/security"
	"safetrain_backend/pkg/tracing"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services
}

type repositories struct {
	user     *repository.UserRepository
	course   *repository.CourseRepository
	session  *repository.SessionRepository
	attendee *repository.AttendeeRepository
}

type services struct {
	auth         *service.AuthService
	storage      *service.StorageService
	course       *service.CourseService
	issuer       *service.TokenIssuer
	verification *service.VerificationService
	sessionHub   *service.SessionHub
}

type controllers struct {
	auth         *controller.AuthController
	course       *controller.CourseController
	session      *controller.SessionController
	verification *controller.VerificationController
	health       *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:     repository.NewUserRepository(db),
		course:   repository.NewCourseRepository(db),
		session:  repository.NewSessionRepository(db, rdb),
		attendee: repository.NewAttendeeRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.course = service.NewCourseService(repos.course, s.storage)

	s.issuer = service.NewTokenIssuer(cfg.JWT.Secret)
	s.sessionHub = service.NewSessionHub(s.issuer, repos.session, repos.attendee, cfg.Session.QRTokenExpiryMinutes)
	s.verification = service.NewVerificationService(
		s.issuer,
		repos.session,
		time.Duration(cfg.Session.WorkflowTTLMinutes)*time.Minute,
	)

	if err := s.sessionHub.Restore(); err != nil {
		logger.Log.Error("failed to restore open sessions", zap.Error(err))
	}

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB) *controllers {
	return &controllers{
		auth:         controller.NewAuthController(s.auth),
		course:       controller.NewCourseController(s.course),
		session:      controller.NewSessionController(s.sessionHub, s.course, repos.session),
		verification: controller.NewVerificationController(s.verification, s.sessionHub, s.storage),
		health:       controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db, rdb)
	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services, repos, db)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		_, err := tracing.InitTracer("safetrain", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	go configwatcher.WatchConfig("configs/config.yaml", func(newCfg *config.Config) {
		services.sessionHub.SetDefaultExpiry(newCfg.Session.QRTokenExpiryMinutes)
		logger.Log.Info("Configuration reloaded",
			zap.Int("qrTokenExpiryMinutes", newCfg.Session.QRTokenExpiryMinutes))
	})

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Flush live session stats and stop background sweeps before the
	// listener goes away.
	if a.services != nil {
		if a.services.sessionHub != nil {
			a.services.sessionHub.Stop()
		}
		if a.services.verification != nil {
			a.services.verification.Stop()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
