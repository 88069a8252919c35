package trigger

import (
	"fmt"
	"log"
	"time"

	"github.com/zulandar/switchyard/internal/models"
	"gorm.io/gorm"
)

// Store manages durable pending-command markers, with an append-only
// plain-text fallback file for when even the marker row cannot be written.
// It implements input.PendingSource.
type Store struct {
	db           *gorm.DB
	fallbackPath string
}

// NewStore creates a Store. fallbackPath may be empty to disable the file
// fallback.
func NewStore(db *gorm.DB, fallbackPath string) *Store {
	return &Store{db: db, fallbackPath: fallbackPath}
}

// Write records a pending command for the project. On a DB failure the
// command is appended to the fallback file instead, so the dispatch intent
// is never dropped.
func (s *Store) Write(projectDir, command, reason string) error {
	row := models.PendingCommand{
		ProjectDir: projectDir,
		Command:    command,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		if s.fallbackPath != "" {
			if ferr := AppendFallback(s.fallbackPath, projectDir, command); ferr == nil {
				log.Printf("trigger: marker write failed (%v); queued to %s", err, s.fallbackPath)
				return nil
			}
		}
		return fmt.Errorf("trigger: write pending marker for %s: %w", projectDir, err)
	}
	return nil
}

// Consume removes and returns the oldest pending command for the project.
// One-shot across processes: the DELETE by primary key decides the winner,
// so two concurrent consumers cannot both inject the same command.
func (s *Store) Consume(projectDir string) (string, bool) {
	for {
		var row models.PendingCommand
		err := s.db.Where("project_dir = ?", projectDir).
			Order("id ASC").First(&row).Error
		if err != nil {
			return "", false
		}
		result := s.db.Delete(&models.PendingCommand{}, row.ID)
		if result.Error != nil {
			log.Printf("trigger: consume pending marker %d: %v", row.ID, result.Error)
			return "", false
		}
		if result.RowsAffected > 0 {
			return row.Command, true
		}
		// Lost the race for this row; try the next one.
	}
}

// Restore re-queues a command whose injection failed after consumption.
func (s *Store) Restore(projectDir, command string) {
	if err := s.Write(projectDir, command, "restored after failed injection"); err != nil {
		log.Printf("trigger: restore pending command for %s: %v", projectDir, err)
	}
}

// List returns all pending markers, oldest first.
func (s *Store) List() ([]models.PendingCommand, error) {
	var rows []models.PendingCommand
	if err := s.db.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("trigger: list pending markers: %w", err)
	}
	return rows, nil
}
