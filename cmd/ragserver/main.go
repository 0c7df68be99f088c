// Command ragserver wires every component (C1-C12) into one process and
// serves the HTTP Facade. Mirrors the teacher's own main.go shape —
// godotenv.Load, build the router, router.Run(":"+PORT) — generalized
// from a single gin.Default()+RegisterRoutes call to the full
// dependency graph SPEC_FULL.md's components require.
package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"ragbackend/answer"
	"ragbackend/cache"
	"ragbackend/chunking"
	"ragbackend/config"
	"ragbackend/embedding"
	"ragbackend/eventbus"
	"ragbackend/httpapi"
	"ragbackend/jobs"
	"ragbackend/llm"
	"ragbackend/metadata"
	"ragbackend/objectstore"
	"ragbackend/parsing"
	"ragbackend/realtime"
	"ragbackend/retrieval"
	"ragbackend/tenant"
	"ragbackend/vectorindex"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("ragserver: config: %v", err)
	}

	db, err := metadata.OpenDatabase(cfg.DBURL)
	if err != nil {
		log.Fatalf("ragserver: open database: %v", err)
	}
	if err := metadata.AutoMigrate(db); err != nil {
		log.Fatalf("ragserver: migrate: %v", err)
	}
	store := metadata.New(db)

	objects, err := objectstore.New(cfg)
	if err != nil {
		log.Fatalf("ragserver: object store: %v", err)
	}

	redisClient, err := cache.GetRedisClient()
	if err != nil {
		log.Printf("ragserver: redis unavailable, bus/rate-limit/cache features degrade: %v", err)
	}

	embedder, err := embedding.New(cfg)
	if err != nil {
		log.Fatalf("ragserver: embedding provider: %v", err)
	}

	index, err := vectorindex.New(cfg)
	if err != nil {
		log.Fatalf("ragserver: vector index: %v", err)
	}
	if err := index.EnsureCollection(context.Background()); err != nil {
		log.Printf("ragserver: ensure collection: %v", err)
	}

	dispatcher := parsing.NewDispatcher()

	var reranker retrieval.Reranker
	if cfg.RerankEnabled {
		reranker, err = retrieval.NewHTTPReranker(cfg)
		if err != nil {
			log.Fatalf("ragserver: reranker: %v", err)
		}
	}
	retriever := retrieval.New(store, embedder, index, reranker, cfg)

	llmClient, err := llm.NewFromConfig(cfg, os.Getenv("LLM_API_KEY"), os.Getenv("LLM_BASE_URL"))
	if err != nil {
		log.Fatalf("ragserver: llm client: %v", err)
	}
	answerCache := answer.NewCache(redisClient, cfg.AnswerCacheTTL)
	orchestrator := answer.New(retriever, llmClient, answerCache, cfg)

	bus := eventbus.New(redisClient)
	gateway := realtime.New(bus, cfg.WSBufferLimit, cfg.PingInterval, cfg.PingTimeout)

	runner := jobs.New(store, bus, cfg, 2)
	runner.Register(metadata.JobParse, jobs.ParseStage(store, objects, dispatcher))
	runner.Register(metadata.JobChunk, jobs.ChunkStage(store, chunking.DefaultConfig()))
	runner.Register(metadata.JobEmbed, jobs.EmbedStage(store, embedder, index))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	auth := tenant.NewAuthenticator(cfg)
	limiter := tenant.NewLimiter(redisClient, cfg.RateLimitPerMin, cfg.DailyTokenQuota)

	server := httpapi.New(cfg, store, objects, dispatcher, retriever, orchestrator, answerCache, auth, limiter, gateway)
	router := server.Router()

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("ragserver: serve: %v", err)
	}
}
