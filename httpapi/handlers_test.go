package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbackend/answer"
	"ragbackend/metadata"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := metadata.OpenDatabase(dsn)
	require.NoError(t, err)
	require.NoError(t, metadata.AutoMigrate(db))
	store := metadata.New(db)

	mr := miniredis.RunT(t)
	cache := answer.NewCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)

	return &Server{store: store, cache: cache}
}

func httpBody(s string) *strings.Reader {
	return strings.NewReader(s)
}

func testContext(t *testing.T, method, target string, tenantID string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, nil)
	if tenantID != "" {
		c.Set("tenant_id", tenantID)
	}
	return c, rec
}

func TestHandleHealthz_ReportsOK(t *testing.T) {
	s := newTestServer(t)
	c, rec := testContext(t, http.MethodGet, "/healthz", "")

	s.handleHealthz(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestHandleJobStatus_NotFound(t *testing.T) {
	s := newTestServer(t)
	c, rec := testContext(t, http.MethodGet, "/ingest/999", "tenant-1")
	c.Params = gin.Params{{Key: "job_id", Value: "999"}}

	s.handleJobStatus(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleJobStatus_InvalidID(t *testing.T) {
	s := newTestServer(t)
	c, rec := testContext(t, http.MethodGet, "/ingest/abc", "tenant-1")
	c.Params = gin.Params{{Key: "job_id", Value: "abc"}}

	s.handleJobStatus(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleJobStatus_ReturnsJob(t *testing.T) {
	s := newTestServer(t)
	_, job, err := s.store.CreateDocument(context.Background(), "tenant-1", "a.txt", "text/plain", "", 10)
	require.NoError(t, err)

	c, rec := testContext(t, http.MethodGet, fmt.Sprintf("/ingest/%d", job.ID), "tenant-1")
	c.Params = gin.Params{{Key: "job_id", Value: fmt.Sprint(job.ID)}}

	s.handleJobStatus(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "queued")
}

func TestHandleDocumentJobs_WrongTenantIsNotFound(t *testing.T) {
	s := newTestServer(t)
	doc, _, err := s.store.CreateDocument(context.Background(), "tenant-1", "a.txt", "text/plain", "", 10)
	require.NoError(t, err)

	c, rec := testContext(t, http.MethodGet, fmt.Sprintf("/ingest/document/%d", doc.ID), "tenant-2")
	c.Params = gin.Params{{Key: "document_id", Value: fmt.Sprint(doc.ID)}}

	s.handleDocumentJobs(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDocumentJobs_Found(t *testing.T) {
	s := newTestServer(t)
	doc, _, err := s.store.CreateDocument(context.Background(), "tenant-1", "a.txt", "text/plain", "", 10)
	require.NoError(t, err)

	c, rec := testContext(t, http.MethodGet, fmt.Sprintf("/ingest/document/%d", doc.ID), "tenant-1")
	c.Params = gin.Params{{Key: "document_id", Value: fmt.Sprint(doc.ID)}}

	s.handleDocumentJobs(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetChunk_NotFound(t *testing.T) {
	s := newTestServer(t)
	c, rec := testContext(t, http.MethodGet, "/chunks/1", "tenant-1")
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	s.handleGetChunk(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCacheStats_ReturnsStats(t *testing.T) {
	s := newTestServer(t)
	c, rec := testContext(t, http.MethodGet, "/answer/cache/stats", "tenant-1")

	s.handleCacheStats(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCacheInvalidate_DefaultPattern(t *testing.T) {
	s := newTestServer(t)
	c, rec := testContext(t, http.MethodDelete, "/answer/cache", "tenant-1")

	s.handleCacheInvalidate(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleQuery_RejectsMalformedJSON(t *testing.T) {
	s := newTestServer(t)
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/query", httpBody("not json"))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("tenant_id", "tenant-1")

	s.handleQuery(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQuery_RejectsOutOfRangeBounds(t *testing.T) {
	s := newTestServer(t)
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/query", httpBody(`{"query":"hi","top_k":999}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("tenant_id", "tenant-1")

	s.handleQuery(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
