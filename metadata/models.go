package metadata

import (
	"time"

	"gorm.io/datatypes"
)

// AggregateStatus mirrors Document.aggregate_status's finite set of
// values (spec §3).
type AggregateStatus string

const (
	StatusUploaded  AggregateStatus = "uploaded"
	StatusParsing   AggregateStatus = "parsing"
	StatusChunking  AggregateStatus = "chunking"
	StatusEmbedding AggregateStatus = "embedding"
	StatusReady     AggregateStatus = "ready"
	StatusFailed    AggregateStatus = "failed"
)

// JobKind is one stage of the ingest pipeline.
type JobKind string

const (
	JobParse JobKind = "parse"
	JobChunk JobKind = "chunk"
	JobEmbed JobKind = "embed"
)

// JobStatus is a Job's position in its state machine.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// ElementKind is the typed kind of a Parser output element.
type ElementKind string

const (
	ElementHeading  ElementKind = "heading"
	ElementParagraph ElementKind = "paragraph"
	ElementListItem ElementKind = "list_item"
	ElementTable    ElementKind = "table"
	ElementCode     ElementKind = "code"
	ElementOther    ElementKind = "other"
)

// Document is the identity of an uploaded artifact (spec §3).
type Document struct {
	ID              uint64          `gorm:"primaryKey"`
	TenantID        string          `gorm:"column:tenant_id;index:idx_documents_tenant;not null"`
	Name            string          `gorm:"column:name;not null"`
	Mime            string          `gorm:"column:mime;not null"`
	SizeBytes       int64           `gorm:"column:size_bytes"`
	StorageURI      string          `gorm:"column:storage_uri;not null"`
	AggregateStatus AggregateStatus `gorm:"column:aggregate_status;type:varchar(32);not null;default:'uploaded'"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
}

func (Document) TableName() string { return "documents" }

// Job is a unit of deferred pipeline work (spec §3). At most one
// non-terminal Job may exist per (document_id, kind) — checked by
// EnqueueJob, not by a DB constraint, since "non-terminal" is
// not expressible as a unique index without a partial-index dialect
// extension the module doesn't depend on.
type Job struct {
	ID            uint64     `gorm:"primaryKey"`
	DocumentID    uint64     `gorm:"column:document_id;index:idx_jobs_document_kind"`
	Kind          JobKind    `gorm:"column:kind;type:varchar(16);index:idx_jobs_document_kind"`
	Status        JobStatus  `gorm:"column:status;type:varchar(16);index:idx_jobs_status_kind"`
	Progress      int        `gorm:"column:progress;not null;default:0"`
	Error         *string    `gorm:"column:error"`
	Attempts      int        `gorm:"column:attempts;not null;default:0"`
	NextAttemptAt *time.Time `gorm:"column:next_attempt_at;index:idx_jobs_status_kind"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

func (Job) TableName() string { return "jobs" }

// Element is one piece of Parser output (spec §3).
type Element struct {
	ID            uint64      `gorm:"primaryKey"`
	DocumentID    uint64      `gorm:"column:document_id;index:idx_elements_document"`
	Ordinal       int         `gorm:"column:ordinal"`
	Kind          ElementKind `gorm:"column:kind;type:varchar(16)"`
	Page          *int        `gorm:"column:page"`
	Level         *int        `gorm:"column:level"`
	Text          string      `gorm:"column:text;type:text"`
	TableMarkdown *string     `gorm:"column:table_markdown;type:text"`
}

func (Element) TableName() string { return "elements" }

// Chunk is the unit of retrieval (spec §3). HeaderPath is stored as a
// JSON array the way the teacher's knowledge package stores tags, via
// gorm.io/datatypes.
type Chunk struct {
	ID         uint64         `gorm:"primaryKey"`
	DocumentID uint64         `gorm:"column:document_id;index:idx_chunks_document"`
	Ordinal    int            `gorm:"column:ordinal"`
	Page       *int           `gorm:"column:page"`
	TokenCount int            `gorm:"column:token_count"`
	Text       string         `gorm:"column:text;type:text"`
	HeaderPath datatypes.JSON `gorm:"column:header_path"`
	IsTable    bool           `gorm:"column:is_table;not null;default:false"`
}

func (Chunk) TableName() string { return "chunks" }

// Embedding is the vector attached to a Chunk (spec §3). Vector storage
// here is the metadata row's provenance record; the vector itself also
// lives in the Vector Index (C6), which is the query path.
type Embedding struct {
	ChunkID     uint64         `gorm:"column:chunk_id;primaryKey"`
	Vector      datatypes.JSON `gorm:"column:vector"`
	ProviderTag string         `gorm:"column:provider_tag"`
	Dim         int            `gorm:"column:dim"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (Embedding) TableName() string { return "embeddings" }
