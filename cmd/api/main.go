package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/asterlearn/aster-backend/internal/config"
	"github.com/asterlearn/aster-backend/internal/handler"
	"github.com/asterlearn/aster-backend/internal/middleware"
	"github.com/asterlearn/aster-backend/internal/migration"
	"github.com/asterlearn/aster-backend/internal/repository"
	"github.com/asterlearn/aster-backend/internal/routes"
	"github.com/asterlearn/aster-backend/internal/service"
	"github.com/asterlearn/aster-backend/pkg/jwt"
	"github.com/asterlearn/aster-backend/pkg/limiter"
	pkglogger "github.com/asterlearn/aster-backend/pkg/logger"
	pkgredis "github.com/asterlearn/aster-backend/pkg/redis"
	pkgstorage "github.com/asterlearn/aster-backend/pkg/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// tokenSweepInterval is how often expired download tokens are purged
const tokenSweepInterval = 10 * time.Minute

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.Init(env)
	pkglogger.Get().Info().
		Str("env", env).
		Strs("env_files", dotenvFiles).
		Msg("starting aster-backend")

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.LogResolved(cfg)

	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := migration.Run(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	pkglogger.Get().Info().Msg("connected to MySQL")

	// Redis backs the cross-instance rate limiter. Without it the limiter
	// falls back to the in-process store, which is only safe single-instance.
	var limiterStore limiter.Store
	redisClient, err := pkgredis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
	)
	if err != nil {
		pkglogger.Get().Warn().Err(err).
			Msg("Redis unavailable, using in-process rate limit store")
		limiterStore = limiter.NewMemoryStore()
	} else {
		pkglogger.Get().Info().Msg("connected to Redis")
		limiterStore = limiter.NewRedisStore(redisClient)
	}

	rateLimiter := limiter.New(limiterStore)
	cooldown := time.Duration(cfg.Download.CooldownMinutes) * time.Minute
	rateLimiter.SetBucket(routes.BucketCode, limiter.BucketConfig{
		Limit:    cfg.Download.CodeAttemptsPerMinute,
		Window:   time.Minute,
		Cooldown: cooldown,
	})
	rateLimiter.SetBucket(routes.BucketDownload, limiter.BucketConfig{
		Limit:    cfg.Download.DownloadsPerMinute,
		Window:   time.Minute,
		Cooldown: cooldown,
	})

	// S3-compatible storage; nil means local-disk streaming
	var s3Client *pkgstorage.S3Client
	if cfg.Storage.Enabled && cfg.Storage.Bucket != "" {
		s3Client, err = pkgstorage.NewS3Client(pkgstorage.S3Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			BasePath:        cfg.Storage.BasePath,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
		})
		if err != nil {
			pkglogger.Get().Warn().Err(err).
				Msg("S3 storage init failed, falling back to local disk")
			s3Client = nil
		}
	}
	localStore := pkgstorage.NewLocalStore(cfg.Download.AssetDir)

	jwtManager := jwt.NewManager(cfg.JWT.Secret)

	// Repositories
	assetRepo := repository.NewAssetRepository(db)
	codeRepo := repository.NewCodeRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Services
	tokenSvc := service.NewTokenService(tokenRepo,
		time.Duration(cfg.Download.TokenTTLSeconds)*time.Second)
	codeSvc := service.NewCodeService(codeRepo, service.CodeQuotaConfig{
		DefaultMaxDownloads: cfg.Download.DefaultMaxDownloads,
		DefaultExpiryDays:   cfg.Download.DefaultExpiryDays,
		HourlyCap:           cfg.Download.HourlyDownloadCap,
	})
	auditSvc := service.NewAuditService(auditRepo, service.SuspicionConfig{
		FailureThreshold: int64(cfg.Download.SuspiciousThreshold),
		Window:           24 * time.Hour,
	})

	// Handlers
	assetHandler := handler.NewAssetHandler(assetRepo, codeSvc, tokenSvc, auditSvc)
	downloadHandler := handler.NewDownloadHandler(assetRepo, tokenSvc, auditSvc, localStore, s3Client)
	adminHandler := handler.NewAdminHandler(assetRepo, codeSvc, auditSvc)

	go sweepTokens(tokenSvc)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	allowOrigins := cfg.CORS.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "http://localhost:3000"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     splitAndTrim(allowOrigins, ","),
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:           86400,
	}))

	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger())

	routes.Setup(router, assetHandler, downloadHandler, adminHandler, jwtManager, rateLimiter, auditSvc)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	pkglogger.Get().Info().Str("addr", addr).Msg("listening")

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// sweepTokens periodically deletes expired download tokens. Expired rows are
// already unusable; this only keeps the table small.
func sweepTokens(tokens service.TokenService) {
	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		n, err := tokens.SweepExpired(time.Hour)
		if err != nil {
			pkglogger.Get().Error().Err(err).Msg("token sweep failed")
			continue
		}
		if n > 0 {
			pkglogger.Get().Debug().Int64("deleted", n).Msg("swept expired download tokens")
		}
	}
}

// initDB opens the MySQL connection
func initDB(cfg *config.Config) (*gorm.DB, error) {
	mysqlCfg, err := mysqldriver.ParseDSN(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	logMode := gormlogger.Warn
	if cfg.IsDevelopment() {
		logMode = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(mysqlCfg.FormatDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	return db, nil
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
