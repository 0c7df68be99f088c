package httpapi

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ragbackend/answer"
	"ragbackend/metadata"
	"ragbackend/ragerrors"
	"ragbackend/retrieval"
	"ragbackend/tenant"
)

// allowedMimePrefixes must stay in sync with parsing.NewDispatcher's
// strategy table: accepting a mime type here that has no real
// extraction strategy there guarantees a parse failure downstream.
// application/msword (legacy binary .doc) is deliberately absent for
// that reason.
var allowedMimePrefixes = []string{
	"text/",
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

func mimeAllowed(mime string) bool {
	for _, prefix := range allowedMimePrefixes {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}

func sniffMime(header string, data []byte) string {
	mime := strings.TrimSpace(strings.SplitN(header, ";", 2)[0])
	if mime != "" && mime != "application/octet-stream" {
		return mime
	}
	return strings.SplitN(http.DetectContentType(data), ";", 2)[0]
}

// handleIngest implements `POST /ingest` (spec §6.1): stores the
// uploaded file in the Object Store, creates the Document + parse Job
// inside one transaction, and returns immediately — the Job Runner
// picks the work up asynchronously (spec §4.1/§4.2).
func (s *Server) handleIngest(c *gin.Context) {
	tenantID := tenant.FromContext(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not open uploaded file"})
		return
	}
	defer file.Close()

	if fileHeader.Size > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds upload size limit"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds upload size limit"})
		return
	}

	mime := sniffMime(fileHeader.Header.Get("Content-Type"), data)
	if !mimeAllowed(mime) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported mime type: " + mime})
		return
	}

	doc, job, err := s.store.CreateDocument(c.Request.Context(), tenantID, fileHeader.Filename, mime, "", fileHeader.Size)
	if err != nil {
		respondError(c, err)
		return
	}

	ext := strings.TrimPrefix(filepath.Ext(fileHeader.Filename), ".")
	uri, err := s.objects.Put(c.Request.Context(), tenantID, doc.ID, data, mime, ext)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.store.DB().Model(&metadata.Document{}).Where("id = ?", doc.ID).Update("storage_uri", uri).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "document_id": doc.ID, "status": "queued"})
}

func (s *Server) handleJobStatus(c *gin.Context) {
	jobID, err := strconv.ParseUint(c.Param("job_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job_id"})
		return
	}
	job, err := s.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id": job.ID, "kind": job.Kind, "status": job.Status, "progress": job.Progress,
		"document_id": job.DocumentID, "created_at": job.CreatedAt, "updated_at": job.UpdatedAt, "error": job.Error,
	})
}

func (s *Server) handleDocumentJobs(c *gin.Context) {
	tenantID := tenant.FromContext(c)
	documentID, err := strconv.ParseUint(c.Param("document_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document_id"})
		return
	}
	doc, err := s.store.GetDocument(c.Request.Context(), tenantID, documentID)
	if err != nil {
		respondError(c, err)
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	jobs, err := s.store.JobsForDocument(c.Request.Context(), documentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": doc.ID, "status": doc.AggregateStatus, "jobs": jobs})
}

type queryRequest struct {
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
	Rerank bool   `json:"rerank"`
	MaxCtx int    `json:"max_ctx"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateQueryBounds(req.TopK, req.MaxCtx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.retriever.Retrieve(c.Request.Context(), retrieval.Request{
		TenantID: tenant.FromContext(c), Query: req.Query, TopK: req.TopK, Rerank: req.Rerank, MaxCtxTokens: req.MaxCtx,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matchesToJSON(result.Matches)})
}

func matchesToJSON(matches []retrieval.Match) []gin.H {
	out := make([]gin.H, len(matches))
	for i, m := range matches {
		out[i] = gin.H{
			"doc_id": m.DocumentID, "chunk_id": m.ChunkID, "page": m.Page,
			"score": m.Score, "snippet": m.Snippet, "breadcrumbs": m.Breadcrumbs,
		}
	}
	return out
}

type answerRequest struct {
	queryRequest
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

func (s *Server) handleAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateAnswerBounds(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.orchestrator.Answer(c.Request.Context(), answer.Request{
		TenantID: tenant.FromContext(c), Query: req.Query, TopK: req.TopK, Rerank: req.Rerank,
		MaxCtxTokens: req.MaxCtx, Temperature: req.Temperature, MaxTokens: req.MaxTokens,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	s.limiter.ChargeTokens(c.Request.Context(), tenant.FromContext(c), resp.Usage.PromptTokens+resp.Usage.CompletionTokens)
	c.JSON(http.StatusOK, resp)
}

// handleAnswerStream implements `POST /answer/stream` as Server-Sent
// Events: each StreamEvent is written with writeSSEEvent and flushed
// through http.Flusher, since gin has no first-class SSE response type.
// No mutex guards the response writer.
func (s *Server) handleAnswerStream(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateAnswerBounds(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	var totalTokens int
	err := s.orchestrator.AnswerStream(c.Request.Context(), answer.Request{
		TenantID: tenant.FromContext(c), Query: req.Query, TopK: req.TopK, Rerank: req.Rerank,
		MaxCtxTokens: req.MaxCtx, Temperature: req.Temperature, MaxTokens: req.MaxTokens,
	}, func(ev answer.StreamEvent) error {
		if ev.Usage != nil {
			totalTokens = ev.Usage.PromptTokens + ev.Usage.CompletionTokens
		}
		if err := writeSSEEvent(c.Writer, ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		_ = writeSSEEvent(c.Writer, answer.StreamEvent{Event: "error", Error: err.Error()})
		flusher.Flush()
		return
	}
	if totalTokens > 0 {
		s.limiter.ChargeTokens(c.Request.Context(), tenant.FromContext(c), totalTokens)
	}
}

func (s *Server) handleGetChunk(c *gin.Context) {
	chunkID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chunk id"})
		return
	}
	chunk, err := s.store.GetChunk(c.Request.Context(), chunkID)
	if err != nil {
		respondError(c, err)
		return
	}
	if chunk != nil {
		doc, err := s.store.GetDocument(c.Request.Context(), tenant.FromContext(c), chunk.DocumentID)
		if err != nil {
			respondError(c, err)
			return
		}
		if doc == nil {
			chunk = nil
		}
	}
	if chunk == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chunk not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id": chunk.ID, "doc_id": chunk.DocumentID, "page": chunk.Page,
		"text": chunk.Text, "header_path": chunk.HeaderPath,
	})
}

// handleCacheStats implements the supplemented cache statistics
// endpoint (SPEC_FULL.md SUPPLEMENTED FEATURES).
func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.Stats())
}

// handleCacheInvalidate implements the supplemented pattern-based cache
// invalidation endpoint.
func (s *Server) handleCacheInvalidate(c *gin.Context) {
	pattern := c.DefaultQuery("pattern", "*")
	deleted, err := s.cache.Invalidate(c.Request.Context(), pattern)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func respondError(c *gin.Context, err error) {
	kind := ragerrors.KindOf(err)
	status := ragerrors.HTTPStatus(kind)
	c.JSON(status, gin.H{"error": err.Error()})
}
