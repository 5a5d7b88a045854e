// Package maintenance provides ledger housekeeping: backups, integrity
// checks and size statistics.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"scenereview/internal/repository/sqlite"
)

// Service runs maintenance operations against the ledger database.
type Service struct {
	db        *sqlite.DB
	backupDir string
	logger    zerolog.Logger
}

// New creates a maintenance service writing backups into backupDir.
func New(db *sqlite.DB, backupDir string, logger zerolog.Logger) *Service {
	return &Service{
		db:        db,
		backupDir: backupDir,
		logger:    logger.With().Str("service", "maintenance").Logger(),
	}
}

// Backup writes a consistent copy of the database into the backup
// directory and returns its path.
func (s *Service) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	target := filepath.Join(s.backupDir, fmt.Sprintf("backup_%s.db", timestamp))

	s.db.Lock()
	defer s.db.Unlock()

	ctx, cancel := s.db.OpContext(ctx)
	defer cancel()

	if _, err := s.db.Conn().ExecContext(ctx, `VACUUM INTO ?`, target); err != nil {
		return "", sqlite.WrapErr("backup database", err)
	}

	s.logger.Info().Str("path", target).Msg("backup created")
	return target, nil
}

// IntegrityCheck runs SQLite's integrity check and reports any problem
// as an error.
func (s *Service) IntegrityCheck(ctx context.Context) error {
	s.db.RLock()
	defer s.db.RUnlock()

	ctx, cancel := s.db.OpContext(ctx)
	defer cancel()

	var result string
	if err := s.db.Conn().QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return sqlite.WrapErr("integrity check", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Stats reports database size and per-table row counts.
func (s *Service) Stats(ctx context.Context) (map[string]interface{}, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	ctx, cancel := s.db.OpContext(ctx)
	defer cancel()

	stats := make(map[string]interface{})

	var pageCount, pageSize int64
	if err := s.db.Conn().QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return nil, sqlite.WrapErr("page count", err)
	}
	if err := s.db.Conn().QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return nil, sqlite.WrapErr("page size", err)
	}
	stats["database_size_bytes"] = pageCount * pageSize

	tables := []string{"scenes", "components", "scene_stats", "global_stats"}
	rowCounts := make(map[string]int)
	for _, table := range tables {
		var count int
		if err := s.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
			return nil, sqlite.WrapErr("count "+table, err)
		}
		rowCounts[table] = count
	}
	stats["tables"] = rowCounts

	return stats, nil
}
