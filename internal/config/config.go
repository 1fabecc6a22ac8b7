package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string
	Port     string
	GinMode  string

	CORSOrigins  []string
	MaxFileSize  int64
	AllowedTypes []string

	FileStorageDir string

	// JWT secret for API and websocket token validation
	AccessSecret string

	// Redis configuration (broker, cache, locks, pub/sub)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Routing and chunking of uploaded PDFs
	PDFChunkThresholdPages int
	PDFChunkSizePages      int
	MaxPDFPages            int

	// Worker pool
	WorkerConcurrency int
	TaskHardTimeoutS  int
	TaskSoftTimeoutS  int

	// Recovery sweepers
	JobStaleTimeoutMinutes   int
	ChunkStaleTimeoutMinutes int
	JobMaxRecoveryRetries    int
	ChunkResultRetentionH    int

	// Distributed chunk lock
	ChunkLockTTLS int

	// Query cache
	CacheQueryTTLS int

	// Semantic chunking (token targets; tokens estimated at ~4 chars each)
	ChunkParentTokens  int
	ChunkChildTokens   int
	ChunkChildOverlap  int
	ChunkMinSizeTokens int

	// Bounding-box linking and deduplication thresholds (0..100)
	BBoxLinkThreshold   int
	ActNameDedupeThresh int

	// OCR provider
	OCRServiceURL     string
	OCRMaxConcurrent  int
	OCRMinDelayMs     int
	OCRRequestsPerMin int

	// Embedding / extraction providers (Google Generative AI)
	GeminiAPIKey          string
	GoogleEmbeddingsModel string
	ExtractionModel       string
	EmbedBatchSize        int
	EmbedMaxConcurrent    int
	EmbedRequestsPerMin   int
	ExtractMaxConcurrent  int
	ExtractRequestsPerMin int

	// Realtime fan-out
	WebsocketPingIntervalS int

	// API rate limiting (requests per window seconds, per IP and endpoint)
	RateLimitReqs   int
	RateLimitWindow int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/legal_intel"),
		DBName:   getEnv("DB_NAME", "legal_intel"),
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),

		CORSOrigins:  strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		MaxFileSize:  getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		AllowedTypes: strings.Split(getEnv("ALLOWED_FILE_TYPES", "application/pdf"), ","),

		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),

		AccessSecret: getEnv("ACCESS_SECRET", ""),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		PDFChunkThresholdPages: getEnvInt("PDF_CHUNK_THRESHOLD_PAGES", 15),
		PDFChunkSizePages:      getEnvInt("PDF_CHUNK_SIZE_PAGES", 15),
		MaxPDFPages:            getEnvInt("MAX_PDF_PAGES", 10000),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 50),
		TaskHardTimeoutS:  getEnvInt("TASK_HARD_TIMEOUT_S", 3600),
		TaskSoftTimeoutS:  getEnvInt("TASK_SOFT_TIMEOUT_S", 3300),

		JobStaleTimeoutMinutes:   getEnvInt("JOB_STALE_TIMEOUT_MINUTES", 30),
		ChunkStaleTimeoutMinutes: getEnvInt("CHUNK_STALE_TIMEOUT_MINUTES", 5),
		JobMaxRecoveryRetries:    getEnvInt("JOB_MAX_RECOVERY_RETRIES", 3),
		ChunkResultRetentionH:    getEnvInt("CHUNK_RESULT_RETENTION_H", 24),

		ChunkLockTTLS: getEnvInt("CHUNK_LOCK_TTL_S", 120),

		CacheQueryTTLS: getEnvInt("CACHE_QUERY_TTL_S", 3600),

		ChunkParentTokens:  getEnvInt("CHUNK_PARENT_TOKENS", 1750),
		ChunkChildTokens:   getEnvInt("CHUNK_CHILD_TOKENS", 550),
		ChunkChildOverlap:  getEnvInt("CHUNK_CHILD_OVERLAP", 75),
		ChunkMinSizeTokens: getEnvInt("CHUNK_MIN_SIZE_TOKENS", 50),

		BBoxLinkThreshold:   getEnvInt("BBOX_LINK_THRESHOLD", 80),
		ActNameDedupeThresh: getEnvInt("ACT_NAME_DEDUPE_THRESHOLD", 85),

		OCRServiceURL:     getEnv("OCR_SERVICE_URL", "http://localhost:8001"),
		OCRMaxConcurrent:  getEnvInt("OCR_MAX_CONCURRENT", 8),
		OCRMinDelayMs:     getEnvInt("OCR_MIN_DELAY_MS", 200),
		OCRRequestsPerMin: getEnvInt("OCR_RPM", 60),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		ExtractionModel:       getEnv("EXTRACTION_MODEL", "gemini-2.0-flash"),
		EmbedBatchSize:        getEnvInt("EMBED_BATCH_SIZE", 32),
		EmbedMaxConcurrent:    getEnvInt("EMBED_MAX_CONCURRENT", 4),
		EmbedRequestsPerMin:   getEnvInt("EMBED_RPM", 300),
		ExtractMaxConcurrent:  getEnvInt("EXTRACT_MAX_CONCURRENT", 4),
		ExtractRequestsPerMin: getEnvInt("EXTRACT_RPM", 60),

		WebsocketPingIntervalS: getEnvInt("WEBSOCKET_PING_INTERVAL_S", 30),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW_S", 60),
	}

	// Validate required fields
	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("ACCESS_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.PDFChunkSizePages <= 0 {
		return nil, fmt.Errorf("PDF_CHUNK_SIZE_PAGES must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
