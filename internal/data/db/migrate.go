package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/skillgraph-backend/internal/types"
)

// AutoMigrateAll creates or updates the persistence schema.
func (s *PostgresService) AutoMigrateAll() error {
	return AutoMigrate(s.db)
}

// AutoMigrate runs schema migration against an arbitrary gorm handle.
// Shared with the repo test harness.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.KnowledgeGraph{},
		&types.PracticeRecord{},
	)
}
