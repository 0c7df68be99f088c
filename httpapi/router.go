// Package httpapi is the HTTP Facade (C12): a thin gin-gonic boundary
// that authenticates, resolves tenant_id, enforces rate/quota limits,
// validates request shape, and delegates to the Metadata Store,
// Retriever, and Answer Orchestrator (spec §4.12, endpoints in §6.1).
// Grounded on the teacher's own gin.Engine + gin-contrib/cors router
// assembly (formerly authorization.RegisterRoutes), generalized from a
// single-tenant user/role API to the multi-tenant surface spec §6.1
// names.
package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"ragbackend/answer"
	"ragbackend/config"
	"ragbackend/metadata"
	"ragbackend/objectstore"
	"ragbackend/parsing"
	"ragbackend/realtime"
	"ragbackend/retrieval"
	"ragbackend/tenant"
)

// Server holds every dependency the HTTP Facade delegates to.
type Server struct {
	cfg          *config.Config
	store        *metadata.Store
	objects      *objectstore.Store
	dispatcher   *parsing.Dispatcher
	retriever    *retrieval.Retriever
	orchestrator *answer.Orchestrator
	cache        *answer.Cache
	auth         *tenant.Authenticator
	limiter      *tenant.Limiter
	gateway      *realtime.Gateway
}

func New(
	cfg *config.Config,
	store *metadata.Store,
	objects *objectstore.Store,
	dispatcher *parsing.Dispatcher,
	retriever *retrieval.Retriever,
	orchestrator *answer.Orchestrator,
	cache *answer.Cache,
	auth *tenant.Authenticator,
	limiter *tenant.Limiter,
	gateway *realtime.Gateway,
) *Server {
	return &Server{
		cfg: cfg, store: store, objects: objects, dispatcher: dispatcher,
		retriever: retriever, orchestrator: orchestrator, cache: cache,
		auth: auth, limiter: limiter, gateway: gateway,
	}
}

// Router builds the gin.Engine, mirroring the teacher's
// RegisterRoutes shape: CORS, then auth+rate-limit middleware, then
// route registration.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-API-Key", "X-Tenant-ID"}
	corsCfg.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", s.handleHealthz)
	router.GET("/ws", s.handleWebSocket) // auth resolved from query/header inside the handler

	authed := router.Group("/")
	authed.Use(s.auth.Middleware(), s.limiter.Middleware())
	{
		authed.POST("/ingest", s.handleIngest)
		authed.GET("/ingest/:job_id", s.handleJobStatus)
		authed.GET("/ingest/document/:document_id", s.handleDocumentJobs)
		authed.POST("/query", s.handleQuery)
		authed.POST("/answer", s.handleAnswer)
		authed.POST("/answer/stream", s.handleAnswerStream)
		authed.GET("/chunks/:id", s.handleGetChunk)
		authed.GET("/answer/cache/stats", s.handleCacheStats)
		authed.DELETE("/answer/cache", s.handleCacheInvalidate)
	}

	return router
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
