package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	// All variables
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL      string
	REDIS_PASSWORD string
	REDIS_DB       string
	// DigitalOcean Configuration
	DIGITALOCEAN_TOKEN string
	DO_SPACES_BUCKET   string
	DO_SPACES_REGION   string
	DO_SPACES_ENDPOINT string
	MODEL_ACCESS_KEY   string

	// Extraction Retry Configuration
	EXTRACTION_MAX_RETRIES              int
	EXTRACTION_RETRY_DELAY_SECONDS      int
	EXTRACTION_RETRY_BACKOFF_MULTIPLIER float64
	EXTRACTION_MAX_BACKOFF_SECONDS      int
	EXTRACTION_CHUNK_TIMEOUT_SECONDS    int

	// Job State Configuration
	EXTRACTION_JOB_TTL_SUCCESS_HOURS int
	EXTRACTION_JOB_TTL_FAILURE_HOURS int

	// Job Engine Configuration
	WORKER_CONCURRENCY     int
	CHUNK_MAX_RETRIES      int
	CHUNK_RETRY_BASE_DELAY int // seconds
	CHUNK_STUCK_THRESHOLD  int // seconds
	JOB_SOFT_TIMEOUT       int // seconds
	JOB_HARD_TIMEOUT       int // seconds
	NORMALIZE_CALL_TIMEOUT int // seconds

	// Validation Configuration
	VALIDATION_MIN_WORDS     int
	VALIDATION_MAX_WORDS     int
	VALIDATION_MIN_PASS_RATE float64

	// Credit Configuration
	CREDIT_OVERDRAFT_FLOOR    int
	CREDIT_SAFETY_MULTIPLIER  float64
	MONTHLY_GRANT             int
	PRICING_VERSION           string

	// Watchdog Configuration
	WATCHDOG_TICK_INTERVAL_SECONDS int
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  os.Getenv("DB_SSL_MODE"),
		PORT:         port,
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: os.Getenv("JWT_ISSUER"),
		// Redis
		REDIS_URL:      os.Getenv("REDIS_URL"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),
		REDIS_DB:       os.Getenv("REDIS_DB"),
		// DigitalOcean
		DIGITALOCEAN_TOKEN: os.Getenv("DIGITALOCEAN_TOKEN"),
		DO_SPACES_BUCKET:   os.Getenv("DO_SPACES_BUCKET"),
		DO_SPACES_REGION:   os.Getenv("DO_SPACES_REGION"),
		DO_SPACES_ENDPOINT: os.Getenv("DO_SPACES_ENDPOINT"),
		MODEL_ACCESS_KEY:   os.Getenv("MODEL_ACCESS_KEY"),

		// Extraction Retry Configuration (with defaults)
		EXTRACTION_MAX_RETRIES:              getEnvInt("EXTRACTION_MAX_RETRIES", 3),
		EXTRACTION_RETRY_DELAY_SECONDS:      getEnvInt("EXTRACTION_RETRY_DELAY_SECONDS", 5),
		EXTRACTION_RETRY_BACKOFF_MULTIPLIER: getEnvFloat("EXTRACTION_RETRY_BACKOFF_MULTIPLIER", 1.5),
		EXTRACTION_MAX_BACKOFF_SECONDS:      getEnvInt("EXTRACTION_MAX_BACKOFF_SECONDS", 30),
		EXTRACTION_CHUNK_TIMEOUT_SECONDS:    getEnvInt("EXTRACTION_CHUNK_TIMEOUT_SECONDS", 180),

		// Job State Configuration (with defaults)
		EXTRACTION_JOB_TTL_SUCCESS_HOURS: getEnvInt("EXTRACTION_JOB_TTL_SUCCESS_HOURS", 1),
		EXTRACTION_JOB_TTL_FAILURE_HOURS: getEnvInt("EXTRACTION_JOB_TTL_FAILURE_HOURS", 24),

		// Job Engine Configuration (with defaults)
		WORKER_CONCURRENCY:     getEnvInt("WORKER_CONCURRENCY", 4),
		CHUNK_MAX_RETRIES:      getEnvInt("CHUNK_MAX_RETRIES", 3),
		CHUNK_RETRY_BASE_DELAY: getEnvInt("CHUNK_RETRY_BASE_DELAY", 5),
		CHUNK_STUCK_THRESHOLD:  getEnvInt("CHUNK_STUCK_THRESHOLD", 720),
		JOB_SOFT_TIMEOUT:       getEnvInt("JOB_SOFT_TIMEOUT", 600),
		JOB_HARD_TIMEOUT:       getEnvInt("JOB_HARD_TIMEOUT", 900),
		NORMALIZE_CALL_TIMEOUT: getEnvInt("NORMALIZE_CALL_TIMEOUT", 30),

		// Validation Configuration (with defaults)
		VALIDATION_MIN_WORDS:     getEnvInt("VALIDATION_MIN_WORDS", 4),
		VALIDATION_MAX_WORDS:     getEnvInt("VALIDATION_MAX_WORDS", 8),
		VALIDATION_MIN_PASS_RATE: getEnvFloat("VALIDATION_MIN_PASS_RATE", 0.30),

		// Credit Configuration (with defaults)
		CREDIT_OVERDRAFT_FLOOR:   getEnvInt("CREDIT_OVERDRAFT_FLOOR", -100),
		CREDIT_SAFETY_MULTIPLIER: getEnvFloat("CREDIT_SAFETY_MULTIPLIER", 1.10),
		MONTHLY_GRANT:            getEnvInt("MONTHLY_GRANT", 10000),
		PRICING_VERSION:          envOrDefault("PRICING_VERSION", "v1"),

		// Watchdog Configuration (with defaults)
		WATCHDOG_TICK_INTERVAL_SECONDS: getEnvInt("WATCHDOG_TICK_INTERVAL_SECONDS", 60),
	}

	return envVariables, nil
}

// getEnvInt returns an integer environment variable or a default value
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

// envOrDefault returns a string environment variable or a default value
func envOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvFloat returns a float64 environment variable or a default value
func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	floatVal, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return floatVal
}
