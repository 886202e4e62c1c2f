package main

import (
	"context"
	"log"
	"os"
	"time"

	"mentora/internal/api"
	"mentora/internal/auth"
	"mentora/internal/config"
	"mentora/internal/credstore"
	"mentora/internal/history"
	"mentora/internal/llm"
	"mentora/internal/mentor"
	"mentora/internal/prompt"
	"mentora/internal/redis"
	"mentora/internal/session"
	"mentora/internal/speech"
	"mentora/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; env vars set by the process manager win either way.
	_ = godotenv.Load()

	cfgPath := os.Getenv("MENTORA_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("MENTORA_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// The summary cache is best-effort; run without it when redis is down.
	cache, err := redis.NewClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, summaries will not be cached: %v", err)
		cache = nil
	} else {
		defer cache.Close()
	}

	promptsPath := cfg.BasicConfig.PromptsPath
	if promptsPath == "" {
		promptsPath = "prompts.yaml"
	}
	prompts, err := prompt.Load(promptsPath)
	if err != nil {
		log.Fatalf("load prompts: %v", err)
	}

	completer, err := llm.NewClient(context.Background(), cfg)
	if err != nil {
		log.Fatalf("init llm client: %v", err)
	}

	creds := credstore.New(db)
	sessions := session.New(db)
	hist := history.New(db)
	speaker := speech.NewClient(cfg.Speech)
	mentorService := mentor.NewService(creds, sessions, hist, prompts, completer, speaker, cache)

	authService := auth.NewService(db, 24*time.Hour)
	handlers := api.NewHandler(mentorService, creds, authService)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
