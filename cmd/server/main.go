package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/wooogler/swag/internal/cache"
	"github.com/wooogler/swag/internal/config"
	"github.com/wooogler/swag/internal/database"
	"github.com/wooogler/swag/internal/handler"
	"github.com/wooogler/swag/internal/limiter"
	"github.com/wooogler/swag/internal/store"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize Redis cache
	var (
		redisCache  *cache.RedisCache
		rateLimiter *limiter.Limiter
	)
	redisCache, err = cache.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		// Continue without replay cache or rate limits (fail-open)
		redisCache = nil
	} else {
		defer redisCache.Close()
		rateLimiter = limiter.NewLimiter(redisCache, handler.RateLimits(cfg))
	}

	r := handler.NewRouter(cfg, store.New(db), redisCache, rateLimiter)

	log.Printf("API server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
