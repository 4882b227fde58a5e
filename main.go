package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"tryon-server/modules/common/config"
	"tryon-server/modules/common/gemini"
	"tryon-server/modules/common/kvstore"
	redisclient "tryon-server/modules/common/redis"
	"tryon-server/modules/gallery"
	"tryon-server/modules/generation"
	"tryon-server/modules/history"
	"tryon-server/modules/presets"
	"tryon-server/modules/wizard"
)

const cleanupInterval = 5 * time.Minute

var startTime = time.Now()

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "tryon-server",
	})
}

// 서버 메트릭 조회 엔드포인트
func getMetrics(manager *wizard.Manager, historyStore *history.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics := manager.Metrics()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"server": map[string]interface{}{
				"uptime":          time.Since(startTime).String(),
				"startTime":       metrics.StartTime,
				"totalSessions":   metrics.TotalSessions,
				"activeSessions":  metrics.ActiveSessions,
				"expiredSessions": metrics.ExpiredSessions,
				"historyRecords":  historyStore.Len(),
			},
		})
	}
}

// 만료 세션 강제 정리 (관리자용)
func forceCleanupSessions(manager *wizard.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cleaned := manager.CleanupExpired()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "Cleanup completed",
			"cleaned": cleaned,
		})
	}
}

// newKVStore - Redis 설정이 있으면 Redis, 없으면 메모리
func newKVStore(cfg *config.Config) (kvstore.Store, error) {
	if !cfg.UseRedis() {
		log.Println("⚠️  REDIS_HOST not set, history is kept in memory only")
		return kvstore.NewMemoryStore(), nil
	}
	rdb, err := redisclient.Connect(cfg)
	if err != nil {
		return nil, err
	}
	return kvstore.NewRedisStore(rdb), nil
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// History 저장소 (시작 시 1회 로드)
	kv, err := newKVStore(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect key-value store: %v", err)
	}
	historyStore := history.NewStore(kv, cfg.HistoryKey)
	if err := historyStore.Load(ctx); err != nil {
		log.Fatalf("❌ Failed to load history: %v", err)
	}

	catalog, err := presets.Load(cfg.PresetsFile)
	if err != nil {
		log.Fatalf("❌ Failed to load presets: %v", err)
	}

	// Gemini 클라이언트
	genaiClient, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatalf("❌ Failed to create Gemini client: %v", err)
	}
	resolver := generation.NewResolver(cfg.ImageFetchTimeout, cfg.ImageFetchAllowPrivate)
	generator := generation.NewService(genaiClient.Models, resolver, cfg.GeminiModel)

	// 세션 매니저 + 이벤트 허브
	hub := wizard.NewHub()
	manager := wizard.NewManager(wizard.Deps{
		Generator:     generator,
		History:       historyStore,
		PresetPeople:  catalog.People,
		PresetClothes: catalog.Clothes,
		ResultTimeout: cfg.GenerationTimeout,
		BackgroundCtx: ctx,
	}, cfg.SessionTTL, hub)

	// 정리 루틴 시작
	manager.StartCleanupRoutine(ctx, cleanupInterval)

	// 라우터 설정
	r := mux.NewRouter()

	// CORS 미들웨어 적용
	r.Use(enableCORS)

	// 라우트 설정
	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/metrics", getMetrics(manager, historyStore)).Methods("GET")
	r.HandleFunc("/admin/cleanup", forceCleanupSessions(manager)).Methods("POST")

	presets.NewHandler(catalog).RegisterRoutes(r)
	gallery.NewHandler(historyStore).RegisterRoutes(r)
	wizard.NewHandler(manager, hub, cfg.GenerationTimeout, cfg.WebPQuality).RegisterRoutes(r)

	port := cfg.Port

	log.Printf("🚀 Try-On Server starting on port %s", port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws?sessionId=<id>", port)
	log.Printf("❤️  Health check: http://localhost:%s/health", port)
	log.Printf("🖼️  Gallery: http://localhost:%s/api/gallery", port)
	log.Printf("📊 Metrics: http://localhost:%s/metrics", port)

	// 서버 시작
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
