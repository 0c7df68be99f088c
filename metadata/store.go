package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the transactional facade over the metadata tables, grounded
// on knowledge.Service's create/update-inside-a-transaction pattern
// (knowledge/service.go CreateDocument/UpdateDocument), generalized
// from a single Document+Chunk write to the full staged pipeline.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying *gorm.DB for callers (the HTTP Facade's
// post-upload storage_uri patch) that need a query shape this facade
// doesn't otherwise provide.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// CreateDocument inserts a Document row and its parse Job inside one
// transaction, so a caller never observes a Document with no pending
// work.
func (s *Store) CreateDocument(ctx context.Context, tenantID, name, mime, storageURI string, sizeBytes int64) (*Document, *Job, error) {
	var doc Document
	var job Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc = Document{
			TenantID:        tenantID,
			Name:            name,
			Mime:            mime,
			SizeBytes:       sizeBytes,
			StorageURI:      storageURI,
			AggregateStatus: StatusUploaded,
		}
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		job = Job{DocumentID: doc.ID, Kind: JobParse, Status: JobQueued}
		return tx.Create(&job).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &doc, &job, nil
}

// EnqueueJob queues the next stage's Job. Called by the Job Runner on
// successful completion of the previous stage. If a queued or running
// Job of the same kind already exists for the document, that Job is
// returned and no new row is created.
func (s *Store) EnqueueJob(ctx context.Context, documentID uint64, kind JobKind) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("document_id = ? AND kind = ? AND status IN ?", documentID, kind, []JobStatus{JobQueued, JobRunning}).
			Take(&job).Error
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		job = Job{DocumentID: documentID, Kind: kind, Status: JobQueued}
		return tx.Create(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimJob atomically claims one queued job of the given kind using
// SELECT ... FOR UPDATE SKIP LOCKED, so concurrent Job Runner workers
// never execute the same job twice (spec §4.2/§4.7). A job whose
// next_attempt_at is still in the future is not yet visible to claim,
// which is what makes RequeueJob's backoff delay actually take effect
// rather than being reclaimed on the very next poll tick. Returns
// (nil, nil) when no job is available.
func (s *Store) ClaimJob(ctx context.Context, kind JobKind) (*Job, error) {
	var job Job
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("kind = ? AND status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", kind, JobQueued, now).
			Order("created_at asc").
			Limit(1).
			Take(&job).Error
		if err != nil {
			return err
		}
		job.Status = JobRunning
		job.Progress = 0
		return tx.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]any{
			"status":   JobRunning,
			"progress": 0,
		}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobProgress advances a running job's progress counter.
func (s *Store) UpdateJobProgress(ctx context.Context, jobID uint64, progress int) error {
	return s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).
		Update("progress", progress).Error
}

// FinalizeJob marks a job done or failed. On success it advances
// Document.aggregate_status past the stage that just completed
// (chunking after parse, embedding after chunk, ready after embed); on
// failure it sets aggregate_status to failed. Both writes happen in one transaction per spec §4.2's
// "all write operations for a document MUST run inside a single
// transaction that also updates Document.aggregate_status".
func (s *Store) FinalizeJob(ctx context.Context, jobID uint64, ok bool, errMsg string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job Job
		if err := tx.First(&job, jobID).Error; err != nil {
			return err
		}

		updates := map[string]any{}
		if ok {
			updates["status"] = JobDone
			updates["progress"] = 100
			updates["error"] = nil
		} else {
			updates["status"] = JobFailed
			updates["error"] = errMsg
			updates["attempts"] = job.Attempts + 1
		}
		if err := tx.Model(&Job{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
			return err
		}

		if !ok {
			return tx.Model(&Document{}).Where("id = ?", job.DocumentID).
				Update("aggregate_status", StatusFailed).Error
		}

		var next AggregateStatus
		switch job.Kind {
		case JobParse:
			next = StatusChunking
		case JobChunk:
			next = StatusEmbedding
		case JobEmbed:
			next = StatusReady
		}
		if next == "" {
			return nil
		}
		return tx.Model(&Document{}).Where("id = ?", job.DocumentID).
			Update("aggregate_status", next).Error
	})
}

// RequeueJob resets a failed job back to queued for a retry attempt,
// incrementing its attempt counter so the Job Runner's MaxAttempts
// cap (spec §4.7) eventually terminates a job that keeps hitting a
// retryable error, and stamping next_attempt_at so ClaimJob won't pick
// it back up until the caller's computed backoff delay has elapsed.
func (s *Store) RequeueJob(ctx context.Context, jobID uint64, notBefore time.Time) error {
	return s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).
		Updates(map[string]any{
			"status":          JobQueued,
			"progress":        0,
			"attempts":        gorm.Expr("attempts + 1"),
			"next_attempt_at": notBefore.UTC(),
		}).Error
}

// UpsertElements replaces all Elements for a document inside a
// transaction, the idempotent-replace mechanism re-ingest relies on
// (spec §3 Lifecycle, §8 "idempotent re-ingest").
func (s *Store) UpsertElements(ctx context.Context, documentID uint64, elems []Element) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&Element{}).Error; err != nil {
			return err
		}
		if len(elems) == 0 {
			return nil
		}
		for i := range elems {
			elems[i].ID = 0
			elems[i].DocumentID = documentID
		}
		return tx.Create(&elems).Error
	})
}

// ReplaceChunks replaces all Chunks for a document inside a transaction.
func (s *Store) ReplaceChunks(ctx context.Context, documentID uint64, chunks []Chunk) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&Chunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		for i := range chunks {
			chunks[i].ID = 0
			chunks[i].DocumentID = documentID
		}
		return tx.Create(&chunks).Error
	})
}

// UpsertEmbeddings replaces the Embedding row for each chunk id
// (idempotent-replace on conflict, mirroring the Vector Index's own
// upsert contract in §4.6).
func (s *Store) UpsertEmbeddings(ctx context.Context, chunkIDs []uint64, vectors [][]float32, providerTag string) error {
	if len(chunkIDs) != len(vectors) {
		return fmt.Errorf("metadata: chunk id / vector count mismatch (%d vs %d)", len(chunkIDs), len(vectors))
	}
	now := time.Now().UTC()
	rows := make([]Embedding, len(chunkIDs))
	for i, id := range chunkIDs {
		raw, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("metadata: marshal vector: %w", err)
		}
		rows[i] = Embedding{
			ChunkID:     id,
			Vector:      datatypes.JSON(raw),
			ProviderTag: providerTag,
			Dim:         len(vectors[i]),
			UpdatedAt:   now,
		}
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chunk_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vector", "provider_tag", "dim", "updated_at"}),
	}).Create(&rows).Error
}

// GetChunksByIDs hydrates Chunk rows for the given ids, preserving no
// particular order (callers reorder by their own ranking).
func (s *Store) GetChunksByIDs(ctx context.Context, ids []uint64) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var chunks []Chunk
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

// GetElements returns all Elements for a document in reading order.
func (s *Store) GetElements(ctx context.Context, documentID uint64) ([]Element, error) {
	var elems []Element
	err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Order("ordinal asc").Find(&elems).Error
	return elems, err
}

// GetDocument fetches a Document scoped to a tenant (tenant isolation,
// spec §8).
func (s *Store) GetDocument(ctx context.Context, tenantID string, documentID uint64) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", documentID, tenantID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetChunk fetches a single Chunk, with its owning document's tenant
// checked by the caller via GetDocument (chunks carry no tenant_id of
// their own — see TenantScope in spec §3).
func (s *Store) GetChunk(ctx context.Context, chunkID uint64) (*Chunk, error) {
	var chunk Chunk
	err := s.db.WithContext(ctx).First(&chunk, chunkID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// JobsForDocument returns every Job recorded for a document, most
// recent first, for the GET /ingest/document/{id} endpoint.
func (s *Store) JobsForDocument(ctx context.Context, documentID uint64) ([]Job, error) {
	var jobs []Job
	err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Order("created_at desc").Find(&jobs).Error
	return jobs, err
}

// GetDocumentUnscoped fetches a Document by id with no tenant filter,
// for internal callers (the Job Runner) that already hold a trusted id.
func (s *Store) GetDocumentUnscoped(ctx context.Context, documentID uint64) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).First(&doc, documentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetChunksForDocument returns all Chunks for a document in chunk
// order, for the Embed stage.
func (s *Store) GetChunksForDocument(ctx context.Context, documentID uint64) ([]Chunk, error) {
	var chunks []Chunk
	err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Order("ordinal asc").Find(&chunks).Error
	return chunks, err
}

// TenantForDocument resolves a document's owning tenant without a
// tenant filter, for internal callers (the Job Runner) that already
// have a trusted document id and need only the tenant label to stamp
// on outgoing events.
func (s *Store) TenantForDocument(ctx context.Context, documentID uint64) (string, error) {
	var doc Document
	if err := s.db.WithContext(ctx).Select("tenant_id").First(&doc, documentID).Error; err != nil {
		return "", err
	}
	return doc.TenantID, nil
}

// GetJob fetches a single Job by id.
func (s *Store) GetJob(ctx context.Context, jobID uint64) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).First(&job, jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
