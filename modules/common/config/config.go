package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Redis (비어 있으면 메모리 저장소 사용)
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Gemini API
	GeminiAPIKey string
	GeminiModel  string

	// History
	HistoryKey string

	// Presets (비어 있으면 내장 카탈로그 사용)
	PresetsFile string

	// Session / Generation
	SessionTTL        time.Duration
	GenerationTimeout time.Duration

	// 원격 이미지 로딩
	ImageFetchTimeout      time.Duration
	ImageFetchAllowPrivate bool

	// 결과 다운로드
	WebPQuality float32

	// Server
	Port string
}

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	if cfg.UseRedis() {
		log.Printf("   Redis: %s (TLS: %v)", cfg.GetRedisAddr(), cfg.RedisUseTLS)
	} else {
		log.Printf("   Redis: disabled, history kept in memory")
	}
	log.Printf("   Gemini: %s", cfg.GeminiModel)
	log.Printf("   History key: %s", cfg.HistoryKey)

	return cfg, nil
}

// FromEnv - .env 로드 없이 현재 환경변수만으로 Config 생성
func FromEnv() (*Config, error) {
	cfg := &Config{
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getBool("REDIS_USE_TLS", false),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),

		HistoryKey:  getEnv("HISTORY_KEY", "tryon_history"),
		PresetsFile: getEnv("PRESETS_FILE", ""),

		SessionTTL:        time.Duration(getInt("SESSION_TTL_MINUTES", 120)) * time.Minute,
		GenerationTimeout: time.Duration(getInt("GENERATION_TIMEOUT_SECONDS", 180)) * time.Second,

		ImageFetchTimeout:      time.Duration(getInt("IMAGE_FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		ImageFetchAllowPrivate: getBool("IMAGE_FETCH_ALLOW_PRIVATE", false),

		WebPQuality: float32(getInt("WEBP_QUALITY", 90)),

		Port: getEnv("PORT", "8080"),
	}

	// 필수 환경변수 검증
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.HistoryKey == "" {
		return fmt.Errorf("HISTORY_KEY must not be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT_SECONDS must be positive")
	}
	if c.WebPQuality < 0 || c.WebPQuality > 100 {
		return fmt.Errorf("WEBP_QUALITY must be between 0 and 100")
	}
	return nil
}

// UseRedis - Redis 호스트가 설정되어 있는지
func (c *Config) UseRedis() bool {
	return c.RedisHost != ""
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using default %v", key, value, defaultValue)
	}
	return defaultValue
}
