package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/sahilchouksey/go-init-setup/api"
	"github.com/sahilchouksey/go-init-setup/config"
	"github.com/sahilchouksey/go-init-setup/internal/chunker"
	"github.com/sahilchouksey/go-init-setup/internal/extractor"
	"github.com/sahilchouksey/go-init-setup/internal/jobengine"
	"github.com/sahilchouksey/go-init-setup/internal/ledger"
	"github.com/sahilchouksey/go-init-setup/internal/normalizer"
	"github.com/sahilchouksey/go-init-setup/internal/preprocess"
	"github.com/sahilchouksey/go-init-setup/internal/progress"
	"github.com/sahilchouksey/go-init-setup/internal/promptrouter"
	"github.com/sahilchouksey/go-init-setup/internal/scheduler"
	jobstore "github.com/sahilchouksey/go-init-setup/internal/store"
	"github.com/sahilchouksey/go-init-setup/internal/validate"
	"github.com/sahilchouksey/go-init-setup/model"
	"github.com/sahilchouksey/go-init-setup/router"
	"github.com/sahilchouksey/go-init-setup/services/cron"
	"github.com/sahilchouksey/go-init-setup/services/digitalocean"
	"gorm.io/gorm"

	//"github.com/sahilchouksey/go-init-setup/databa/go-init-setup/router"
	"github.com/sahilchouksey/go-init-setup/database"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err

	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	// Initialize GORM database connection
	store, err := database.StartGORM()
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		print("If not running, run the following command:\n")
		print("  make docker-up   (for Docker setup)\n")
		print("  make db-up       (for local PostgreSQL)\n")
		return err
	}

	if err := store.Init(); err != nil {
		print("Failed to initialize database tables\n")
		print("Error running migrations:\n")
		return err
	}

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if os.Getenv("CRON_ENABLED") != "false" { // Default to enabled
		db, ok := store.GetDB().(*gorm.DB)
		if !ok {
			print("Warning: Failed to get database connection for cron jobs\n")
		} else {
			cronManager = cron.NewCronManager(db)
			if err := cronManager.Start(); err != nil {
				print("Warning: Failed to start cron jobs\n")
				print("Error: ", err.Error(), "\n")
				// Don't fail the app, just log the warning
			}
		}
	}

	// Wire the job engine (C8): chunker, extractor, preprocessor,
	// prompt router, normalizer, validator, scheduler, progress
	// channel and credit ledger all sit on the same *gorm.DB as the
	// rest of the app, following the cron manager's "pull *gorm.DB out
	// of store.GetDB()" pattern above.
	gormDB, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return fmt.Errorf("failed to get gorm.DB instance for job engine")
	}

	jobStore := jobstore.New(gormDB)
	creditLedger := ledger.New(jobStore, getEnv.CREDIT_OVERDRAFT_FLOOR)

	var redisClient *redis.Client
	if getEnv.REDIS_URL != "" {
		if opt, err := redis.ParseURL(getEnv.REDIS_URL); err == nil {
			redisClient = redis.NewClient(opt)
		} else {
			print("Warning: invalid REDIS_URL, progress channel will be single-process only\n")
		}
	}
	progressChannel := progress.New(redisClient)

	spacesClient, err := digitalocean.NewSpacesClientFromGlobalConfig()
	if err != nil {
		print("Warning: DigitalOcean Spaces client unavailable, job uploads will fail: ", err.Error(), "\n")
	}

	llmClient := normalizer.NewDOClient(getEnv.MODEL_ACCESS_KEY, normalizer.WithRateLimiter(normalizer.NewRateLimiter(5, 10)))

	engine := jobengine.New(jobengine.Dependencies{
		Store:        jobStore,
		Ledger:       creditLedger,
		Scheduler:    scheduler.New(scheduler.Config{NumWorkers: getEnv.WORKER_CONCURRENCY, QueueSize: 1000, TasksPerWorker: 500, ShutdownTimeout: 30 * time.Second}),
		Chunker:      chunker.New(),
		Progress:     progressChannel,
		Extractor:    extractor.New(),
		Preprocessor: preprocess.New(nil),
		Router:       promptrouter.New(promptrouter.Config{}),
		Normalizer: normalizer.New(llmClient, normalizer.Config{
			CallTimeout:     time.Duration(getEnv.NORMALIZE_CALL_TIMEOUT) * time.Second,
			MaxRetries:      getEnv.EXTRACTION_MAX_RETRIES,
			BaseBackoff:     time.Duration(getEnv.EXTRACTION_RETRY_DELAY_SECONDS) * time.Second,
			BackoffMultiple: getEnv.EXTRACTION_RETRY_BACKOFF_MULTIPLIER,
		}),
		Validator:    validate.New(validate.Config{MinWords: getEnv.VALIDATION_MIN_WORDS, MaxWords: getEnv.VALIDATION_MAX_WORDS}),
		PDFBytes: func(ctx context.Context, job *model.Job) ([]byte, error) {
			if spacesClient == nil {
				return nil, fmt.Errorf("blob storage unavailable")
			}
			return spacesClient.DownloadFile(ctx, job.SourceRef)
		},
	}, jobengine.Config{
		ChunkMaxRetries:       getEnv.CHUNK_MAX_RETRIES,
		ChunkRetryBaseDelay:   time.Duration(getEnv.CHUNK_RETRY_BASE_DELAY) * time.Second,
		ChunkStuckThreshold:   time.Duration(getEnv.CHUNK_STUCK_THRESHOLD) * time.Second,
		JobSoftTimeout:        time.Duration(getEnv.JOB_SOFT_TIMEOUT) * time.Second,
		WatchdogTickInterval:  time.Duration(getEnv.WATCHDOG_TICK_INTERVAL_SECONDS) * time.Second,
		ValidationMinPassRate: getEnv.VALIDATION_MIN_PASS_RATE,
	})

	watchdog := jobengine.NewWatchdog(engine)
	if err := watchdog.Start(); err != nil {
		print("Warning: failed to start job watchdog: ", err.Error(), "\n")
	}

	// Defer Closing DB and stopping cron jobs
	defer func() {
		watchdog.Stop()
		if cronManager != nil {
			cronManager.Stop()
		}
		store.Close()
	}()

	// Init API
	var server *api.APIServer = api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	// Attach Middleware
	// Custom Logger
	app.Use(logger.New())

	app.Use(recover.New())

	// Setup Routes
	router.SetupRoutes(app, store, router.JobEngineDeps{
		DB:            gormDB,
		Store:         jobStore,
		Ledger:        creditLedger,
		Engine:        engine,
		Progress:      progressChannel,
		Blob:          spacesClient,
		Extractor:     extractor.New(),
		MonthlyGrant:  getEnv.MONTHLY_GRANT,
		SafetyFactor:  getEnv.CREDIT_SAFETY_MULTIPLIER,
		MaxUploadSize: 50 << 20,
	})

	// Attach Swagger

	// Get the PORT & Start the Server
	return server.Run()

}
