package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"quizmaster"
	"quizmaster/internal/config"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.FromEnv()
	quizmaster.SetVerbose(cfg.Verbose)

	ctx := context.Background()
	store, err := quizmaster.OpenStore(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	var gen quizmaster.Generator
	if cfg.OpenAIAPIKey != "" {
		gen = quizmaster.NewQuestionMaker(quizmaster.MakerConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
		})
	} else {
		log.Printf("OPENAI_API_KEY not set, every quiz will use sample questions")
	}

	opts := []quizmaster.Option{
		quizmaster.WithLLMLogDir(cfg.LLMLogDir),
		quizmaster.WithGenerationTimeout(cfg.GenerationTimeout),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		opts = append(opts, quizmaster.WithLocker(quizmaster.NewRedisLocker(rdb, 0)))
		log.Printf("Using redis locks at %s", cfg.RedisAddr)
	}

	engine := quizmaster.NewEngine(store, quizmaster.NewQuizGenerator(gen), opts...)

	server, err := newServer(engine, cfg.SessionSecret, cfg.CORSOrigins, cfg.GenerationTimeout+30*time.Second)
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	log.Printf("Starting server on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, server.routes()))
}
