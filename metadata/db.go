// Package metadata is the system of record (C2): Documents, Jobs,
// Elements, Chunks, and Embeddings, plus the transactional operations
// every other package uses to read and mutate them. No package outside
// metadata issues raw SQL against these tables.
package metadata

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenDatabase dispatches on the DSN scheme the way authorization's
// inferDriverFromDSN/openDatabase pair did for the teacher's single user
// database, generalized to the three drivers the module still depends on.
func OpenDatabase(dsn string) (*gorm.DB, error) {
	driver, rest := splitDSN(dsn)
	cfg := &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }}

	switch driver {
	case "postgres", "postgresql":
		return gorm.Open(postgres.Open(rest), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(rest), cfg)
	case "sqlite", "sqlite3", "":
		return gorm.Open(sqlite.Open(rest), cfg)
	default:
		return nil, fmt.Errorf("metadata: unsupported database driver %q", driver)
	}
}

func splitDSN(dsn string) (driver, rest string) {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres", dsn
	case strings.HasPrefix(lower, "mysql://"):
		return "mysql", strings.TrimPrefix(dsn, "mysql://")
	case strings.HasPrefix(lower, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return "sqlite", dsn
	default:
		return "", dsn
	}
}

// AutoMigrate creates/updates all metadata tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Document{}, &Job{}, &Element{}, &Chunk{}, &Embedding{})
}
