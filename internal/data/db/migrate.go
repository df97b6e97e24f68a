package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&batch.Client{},
		&batch.Input{},
		&batch.Result{},
	); err != nil {
		return err
	}

	// The lease claim scans Ready rows in id order.
	readyIdx := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_inputs_ready_id ON inputs (id) WHERE status = %d`,
		int(batch.InputStatusReady),
	)
	if err := db.Exec(readyIdx).Error; err != nil {
		return fmt.Errorf("create idx_inputs_ready_id: %w", err)
	}
	if err := db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_inputs_assignee_status ON inputs (assigned_client_id, status)`,
	).Error; err != nil {
		return fmt.Errorf("create idx_inputs_assignee_status: %w", err)
	}
	return nil
}
